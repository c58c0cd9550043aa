// Package knn provides the lazily-trained nearest-neighbor classifier used to
// recognize user-recorded hand signs.
package knn

import (
	"github.com/ayusman/handsign/internal/landmark"
)

// Sample is one labeled training example.
type Sample struct {
	Label    string                 `json:"label"`
	Features landmark.FeatureVector `json:"features"`
}

// LabelCount is the number of samples recorded for a label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Dataset is the ordered sample collection owned by one user. Sample order is
// training order and is significant for tie-breaking in Predict.
//
// A Dataset is not safe for concurrent use; callers sharing one must
// serialize access.
type Dataset struct {
	samples []Sample
}

// NewDataset returns a Dataset holding the given samples in order.
func NewDataset(samples ...Sample) *Dataset {
	d := &Dataset{samples: make([]Sample, 0, len(samples))}
	d.samples = append(d.samples, samples...)
	return d
}

// Train appends a sample. Labels are not validated and duplicates are kept;
// each copy counts in voting.
func (d *Dataset) Train(label string, features landmark.FeatureVector) {
	d.samples = append(d.samples, Sample{Label: label, Features: features})
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.samples)
}

// Samples returns a copy of the samples in training order.
func (d *Dataset) Samples() []Sample {
	if d == nil {
		return nil
	}
	out := make([]Sample, len(d.samples))
	copy(out, d.samples)
	return out
}

// Clear removes every sample and returns how many were removed.
func (d *Dataset) Clear() int {
	n := len(d.samples)
	d.samples = nil
	return n
}

// DeleteLabel removes every sample with the given label, keeping the order
// of the rest, and returns how many were removed.
func (d *Dataset) DeleteLabel(label string) int {
	kept := make([]Sample, 0, len(d.samples))
	for _, s := range d.samples {
		if s.Label != label {
			kept = append(kept, s)
		}
	}
	removed := len(d.samples) - len(kept)
	d.samples = kept
	return removed
}

// Labels returns per-label sample counts in order of first appearance.
func (d *Dataset) Labels() []LabelCount {
	if d == nil {
		return nil
	}
	index := make(map[string]int)
	var counts []LabelCount
	for _, s := range d.samples {
		i, ok := index[s.Label]
		if !ok {
			i = len(counts)
			index[s.Label] = i
			counts = append(counts, LabelCount{Label: s.Label})
		}
		counts[i].Count++
	}
	return counts
}
