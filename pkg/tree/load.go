package tree

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"reflect"

	"github.com/ghodss/yaml"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/crypto/blake2b"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type number interface {
	String() string
	Int64() (int64, error)
	Float64() (float64, error)
}

// Load parses YAML or JSON text into a normalized tree. Integers keep their
// integral type instead of collapsing into float64.
func Load(data []byte) (interface{}, error) {
	raw, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("Failed parse document: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("Failed decode document: %v", err)
	}
	return Normalize(v)
}

// Normalize converts values produced by common decoders into the tree model.
func Normalize(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil, bool, int64, float64, string:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", t)
		}
		return int64(t), nil
	case float32:
		return float64(t), nil
	case number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %v", t.String(), err)
		}
		return f, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			n, err := Normalize(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %v", i, err)
			}
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for _, k := range SortedKeys(t) {
			n, err := Normalize(t[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %v", k, err)
			}
			out[k] = n
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			n, err := Normalize(item)
			if err != nil {
				return nil, fmt.Errorf("%v: %v", k, err)
			}
			out[fmt.Sprintf("%v", k)] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %v", reflect.TypeOf(v))
}

// Canonical encodes v as JSON with sorted mapping keys.
func Canonical(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Fingerprint is the hex blake2b-256 digest of the canonical encoding.
func Fingerprint(v interface{}) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Decode converts a tree into a typed value through its JSON tags.
func Decode(v interface{}, out interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
