package spec

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/kuberlab/mlspec/pkg/errors"
	"github.com/kuberlab/mlspec/pkg/schema"
	"github.com/kuberlab/mlspec/pkg/tree"
)

// Cache keeps compiled specifications by document fingerprint. Concurrent
// calls for the same document share one compilation; failures are not kept.
// Every caller gets its own copy of the result.
type Cache struct {
	compiler *Compiler
	group    singleflight.Group

	mu      sync.RWMutex
	entries map[string]*Specification
}

func NewCache(c *Compiler) *Cache {
	if c == nil {
		c = NewCompiler()
	}
	return &Cache{compiler: c, entries: make(map[string]*Specification)}
}

func (c *Cache) Compile(doc interface{}) (*Specification, error) {
	norm, err := tree.Normalize(doc)
	if err == nil {
		var fp string
		if fp, err = tree.Fingerprint(norm); err == nil {
			return c.compile(fp, norm)
		}
	}
	l := errors.NewList(schema.HeaderSection)
	l.Add(errors.Smart(errors.ReasonSchema, err))
	return nil, l
}

func (c *Cache) compile(fp string, doc interface{}) (*Specification, error) {
	c.mu.RLock()
	s, ok := c.entries[fp]
	c.mu.RUnlock()
	if ok {
		logrus.Debugf("Specification cache hit %s", fp)
		return s.DeepCopy(), nil
	}
	v, err, shared := c.group.Do(fp, func() (interface{}, error) {
		s, err := c.compiler.Compile(doc)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[fp] = s
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logrus.Debugf("Shared compilation of %s", fp)
	}
	return v.(*Specification).DeepCopy(), nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Forget drops the entry of a fingerprint.
func (c *Cache) Forget(fingerprint string) {
	c.mu.Lock()
	delete(c.entries, fingerprint)
	c.mu.Unlock()
	c.group.Forget(fingerprint)
}
