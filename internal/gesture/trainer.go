package gesture

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hearme/signbridge/internal/landmark"
)

// ErrNoSamples is returned when there is nothing to train or evaluate on.
var ErrNoSamples = errors.New("gesture: no samples provided")

// Sample is one labelled feature vector.
type Sample struct {
	Label    string
	Features []float32
}

// Trainer averages labelled samples into one template per class.
type Trainer struct {
	// Normalize makes templates and inputs wrist-relative and scale free.
	Normalize bool
}

// NewTrainer creates a Trainer that normalizes frames.
func NewTrainer() *Trainer {
	return &Trainer{Normalize: true}
}

// Train builds an artifact of the given kind. Classes are ordered by label so
// that class indices are stable across runs.
func (t *Trainer) Train(kind Kind, samples []Sample) (*Artifact, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	size := len(samples[0].Features)
	switch kind {
	case KindStatic:
		if size != landmark.FrameSize {
			return nil, fmt.Errorf("static samples need %d values, got %d", landmark.FrameSize, size)
		}
	case KindSequence:
		if size == 0 || size%landmark.FrameSize != 0 {
			return nil, fmt.Errorf("sequence samples need a multiple of %d values, got %d", landmark.FrameSize, size)
		}
	default:
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}

	byLabel := make(map[string][][]float32)
	for i, s := range samples {
		if len(s.Features) != size {
			return nil, fmt.Errorf("sample %d has %d values, expected %d", i, len(s.Features), size)
		}
		if s.Label == "" {
			return nil, fmt.Errorf("sample %d has no label", i)
		}
		byLabel[s.Label] = append(byLabel[s.Label], t.prepare(s.Features))
	}

	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	art := &Artifact{
		ID:        ulid.Make().String(),
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
		InputSize: size,
		Normalize: t.Normalize,
		Classes:   make([]Class, len(labels)),
	}
	for i, label := range labels {
		art.Classes[i] = Class{Label: label, Templates: [][]float32{average(byLabel[label])}}
	}
	return art, nil
}

// prepare normalizes every frame of a feature vector when enabled.
func (t *Trainer) prepare(v []float32) []float32 {
	if !t.Normalize {
		return v
	}
	seq, err := landmark.SequenceFromVector(v)
	if err != nil {
		return v
	}
	return seq.Normalize().Vector()
}

// average returns the element-wise mean of equally sized vectors.
func average(vectors [][]float32) []float32 {
	sums := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i, x := range v {
			sums[i] += float64(x)
		}
	}
	out := make([]float32, len(sums))
	n := float64(len(vectors))
	for i, s := range sums {
		out[i] = float32(s / n)
	}
	return out
}

// Evaluate returns the fraction of samples the classifier labels correctly.
func Evaluate(c Classifier, labels []string, samples []Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}
	correct := 0
	for _, s := range samples {
		scores, err := c.Predict(s.Features)
		if err != nil {
			return 0, err
		}
		if idx := ArgMax(scores); idx >= 0 && idx < len(labels) && labels[idx] == s.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(samples)), nil
}

// ArgMax returns the index of the largest score, or -1 for no scores. Ties
// resolve to the lowest index.
func ArgMax(scores []float64) int {
	best := -1
	for i, s := range scores {
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	return best
}

// Split performs a deterministic stratified train/test split. Each label
// contributes round(n*testFraction) samples to the test set, keeping at least
// one sample per label for training.
func Split(samples []Sample, testFraction float64, seed int64) (train, test []Sample) {
	byLabel := make(map[string][]Sample)
	var labels []string
	for _, s := range samples {
		if _, ok := byLabel[s.Label]; !ok {
			labels = append(labels, s.Label)
		}
		byLabel[s.Label] = append(byLabel[s.Label], s)
	}
	sort.Strings(labels)

	rng := rand.New(rand.NewSource(seed))
	for _, label := range labels {
		group := byLabel[label]
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })

		nTest := int(math.Round(float64(len(group)) * testFraction))
		if nTest >= len(group) {
			nTest = len(group) - 1
		}
		if nTest < 0 {
			nTest = 0
		}
		test = append(test, group[:nTest]...)
		train = append(train, group[nTest:]...)
	}
	return train, test
}
