package tree

import (
	"github.com/mitchellh/copystructure"
)

// Strategy tells Merge how a top level field of an override is applied.
type Strategy int

const (
	// Replace takes the override value as is, whatever its kind.
	Replace Strategy = iota
	// MergeMapping merges mappings key by key, recursively. Sequences and
	// scalars found inside are replaced wholesale, never concatenated.
	MergeMapping
)

// Policy maps field names to their strategy. Fields missing from the policy
// are replaced.
type Policy map[string]Strategy

// Copy returns a deep copy of a tree.
func Copy(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	c, err := copystructure.Copy(v)
	if err != nil {
		// Trees hold only maps, slices and scalars, which always copy.
		panic(err)
	}
	return c
}

// Merge applies override on top of a copy of base following the policy.
// Neither input is modified.
func Merge(base, override map[string]interface{}, policy Policy) map[string]interface{} {
	out, _ := Copy(base).(map[string]interface{})
	if out == nil {
		out = make(map[string]interface{}, len(override))
	}
	for _, k := range SortedKeys(override) {
		v := override[k]
		if policy[k] == MergeMapping {
			out[k] = mergeValue(out[k], v)
			continue
		}
		out[k] = Copy(v)
	}
	return out
}

func mergeValue(base, override interface{}) interface{} {
	bm, ok := base.(map[string]interface{})
	om, ok2 := override.(map[string]interface{})
	if !ok || !ok2 {
		return Copy(override)
	}
	for _, k := range SortedKeys(om) {
		bm[k] = mergeValue(bm[k], om[k])
	}
	return bm
}
