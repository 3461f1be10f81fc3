package inference

import (
	"fmt"
)

// Class labels of the default mapping.
const (
	LabelNormal       = "Normal"
	LabelPrecancerous = "Precancerous"
	LabelCancerous    = "Cancerous"
)

// ClassGroup folds one or more raw model outputs into a reported class.
type ClassGroup struct {
	Label   string `json:"label"`
	Indices []int  `json:"indices"`
}

// ClassMapping turns the model's raw class distribution into the reported
// one. It is collaborator configuration: which raw class counts as
// precancerous or cancerous belongs to the model, not to the service.
type ClassMapping struct {
	Groups []ClassGroup `json:"groups"`
}

// DefaultMapping folds the seven classes of the cytology model into three.
func DefaultMapping() ClassMapping {
	return ClassMapping{Groups: []ClassGroup{
		{Label: LabelNormal, Indices: []int{0}},
		{Label: LabelPrecancerous, Indices: []int{1, 2}},
		{Label: LabelCancerous, Indices: []int{3, 4, 5, 6}},
	}}
}

// Labels returns the reported class names in order.
func (m ClassMapping) Labels() []string {
	out := make([]string, len(m.Groups))
	for i, g := range m.Groups {
		out[i] = g.Label
	}
	return out
}

// Validate checks that every group is labelled and non-empty and that no raw
// index is used twice.
func (m ClassMapping) Validate() error {
	if len(m.Groups) == 0 {
		return fmt.Errorf("class mapping has no groups")
	}
	seen := make(map[int]string)
	for _, g := range m.Groups {
		if g.Label == "" {
			return fmt.Errorf("class mapping: unlabelled group")
		}
		if len(g.Indices) == 0 {
			return fmt.Errorf("class mapping: group %q has no indices", g.Label)
		}
		for _, i := range g.Indices {
			if i < 0 {
				return fmt.Errorf("class mapping: group %q: negative index %d", g.Label, i)
			}
			if other, ok := seen[i]; ok {
				return fmt.Errorf("class mapping: index %d in both %q and %q", i, other, g.Label)
			}
			seen[i] = g.Label
		}
	}
	return nil
}

// Remap sums raw probabilities per group and normalises the result. A zero
// total yields a uniform distribution.
func (m ClassMapping) Remap(raw []float64) ([]float64, error) {
	out := make([]float64, len(m.Groups))
	var total float64
	for gi, g := range m.Groups {
		for _, i := range g.Indices {
			if i >= len(raw) {
				return nil, fmt.Errorf("model returned %d classes, mapping needs index %d", len(raw), i)
			}
			if raw[i] < 0 {
				return nil, fmt.Errorf("negative probability %v at index %d", raw[i], i)
			}
			out[gi] += raw[i]
		}
		total += out[gi]
	}

	if total == 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out, nil
	}
	for i := range out {
		out[i] /= total
	}
	return out, nil
}
