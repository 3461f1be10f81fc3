package inference

import "time"

// Diagnosis is the outcome of one analysis.
type Diagnosis struct {
	Label string
	// Confidence is the probability of Label, in percent.
	Confidence    float64
	Probabilities []float64
	Timestamp     time.Time
}

// Diagnose picks the most probable class. Ties go to the lower index.
func Diagnose(probs []float64, labels []string, now time.Time) Diagnosis {
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}

	d := Diagnosis{
		Probabilities: append([]float64(nil), probs...),
		Timestamp:     now,
	}
	if len(probs) > 0 {
		d.Confidence = probs[best] * 100
	}
	if best < len(labels) {
		d.Label = labels[best]
	}
	return d
}
