package features

import "sort"

// LabelEncoder maps categorical values to stable numeric codes. Classes
// are sorted at fit time so the mapping is deterministic for a given
// snapshot. Unknown categories at transform time code to -1.
type LabelEncoder struct {
	Classes []string `msgpack:"classes"`

	index map[string]int
}

// Fit assigns codes to the distinct values in the input.
func (e *LabelEncoder) Fit(values []string) {
	seen := make(map[string]struct{})
	for _, v := range values {
		seen[v] = struct{}{}
	}
	e.Classes = make([]string, 0, len(seen))
	for v := range seen {
		e.Classes = append(e.Classes, v)
	}
	sort.Strings(e.Classes)
	e.index = nil
}

// Transform returns the code for a value, or -1 for a category unseen at
// fit time.
func (e *LabelEncoder) Transform(value string) float64 {
	if e.index == nil {
		e.index = make(map[string]int, len(e.Classes))
		for i, c := range e.Classes {
			e.index[c] = i
		}
	}
	if code, ok := e.index[value]; ok {
		return float64(code)
	}
	return -1
}
