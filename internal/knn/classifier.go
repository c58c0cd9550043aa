package knn

import (
	"errors"
	"math"
	"sort"

	"github.com/ayusman/handsign/internal/landmark"
)

// DefaultK is the neighbor count used when none is given. Smaller values
// suit datasets of 5-10 samples per label.
const DefaultK = 5

// ErrNoData is returned by Predict when the dataset is empty.
var ErrNoData = errors.New("no training data available")

// Prediction is the result of classifying one feature vector.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // percent of neighbors agreeing, 0-100
	Votes      int     `json:"votes"`
	Neighbors  int     `json:"neighbors"`
}

// Neighbor is a dataset sample together with its distance to a query.
type Neighbor struct {
	Sample   Sample
	Index    int     // position in the dataset
	Distance float64 // Euclidean distance to the query
}

// Classifier binds a Dataset to a neighbor count for one session. It is not
// safe for concurrent use.
type Classifier struct {
	dataset *Dataset
	k       int
}

// NewClassifier creates a Classifier over dataset. A nil dataset starts empty
// and a k of zero or less means DefaultK.
func NewClassifier(dataset *Dataset, k int) *Classifier {
	if dataset == nil {
		dataset = NewDataset()
	}
	if k <= 0 {
		k = DefaultK
	}
	return &Classifier{dataset: dataset, k: k}
}

// Train records a labeled sample.
func (c *Classifier) Train(label string, features landmark.FeatureVector) {
	c.dataset.Train(label, features)
}

// Predict classifies features with k neighbors, or the classifier's k when
// k is zero or less.
func (c *Classifier) Predict(features landmark.FeatureVector, k int) (Prediction, error) {
	if k <= 0 {
		k = c.k
	}
	return Predict(features, c.dataset, k)
}

// Dataset returns the underlying dataset.
func (c *Classifier) Dataset() *Dataset {
	return c.dataset
}

// K returns the configured neighbor count.
func (c *Classifier) K() int {
	return c.k
}

// SetK changes the neighbor count. Values <= 0 are ignored.
func (c *Classifier) SetK(k int) {
	if k > 0 {
		c.k = k
	}
}

// Predict labels features by majority vote among its k nearest samples.
//
// Samples at equal distance keep training order, and labels with equal vote
// counts are won by the one whose nearest sample comes first. A k of zero or
// less means DefaultK. The dataset is not modified.
func Predict(features landmark.FeatureVector, dataset *Dataset, k int) (Prediction, error) {
	if dataset.Len() == 0 {
		return Prediction{}, ErrNoData
	}
	if k <= 0 {
		k = DefaultK
	}

	neighbors := Nearest(features, dataset, k)

	// Iterating neighbors nearest-first, a label only takes the lead with a
	// strictly higher count, so earlier labels win ties.
	votes := make(map[string]int, len(neighbors))
	var best string
	var bestVotes int
	for _, n := range neighbors {
		label := n.Sample.Label
		votes[label]++
		if votes[label] > bestVotes {
			best, bestVotes = label, votes[label]
		}
	}

	return Prediction{
		Label:      best,
		Confidence: float64(bestVotes) / float64(len(neighbors)) * 100,
		Votes:      bestVotes,
		Neighbors:  len(neighbors),
	}, nil
}

// Nearest returns the min(k, dataset size) samples closest to features,
// nearest first, ties in training order.
func Nearest(features landmark.FeatureVector, dataset *Dataset, k int) []Neighbor {
	n := dataset.Len()
	if n == 0 || k <= 0 {
		return nil
	}

	all := make([]Neighbor, n)
	for i, s := range dataset.samples {
		all[i] = Neighbor{
			Sample:   s,
			Index:    i,
			Distance: euclideanDistance(&features, &s.Features),
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Distance < all[j].Distance
	})

	if k > n {
		k = n
	}
	return all[:k]
}

// euclideanDistance computes the L2 distance between two feature vectors.
func euclideanDistance(a, b *landmark.FeatureVector) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
