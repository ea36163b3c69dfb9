package primitives

import "sort"

// sortedKeys returns the keys of m in ascending order, giving validation
// and rendering code (status messages, error aggregation) a deterministic
// iteration order over otherwise-unordered maps.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
