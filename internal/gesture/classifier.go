// Package gesture implements the template classifiers that turn landmark
// vectors into per-class scores, and the trainer that builds them.
package gesture

import (
	"errors"
	"fmt"

	"github.com/hearme/signbridge/internal/landmark"
)

// ErrInputSize is returned when a feature vector does not match the model.
var ErrInputSize = errors.New("gesture: input size mismatch")

// Classifier maps a flat feature vector to one score per class. Higher is
// better; callers take the arg-max.
type Classifier interface {
	Predict(features []float32) ([]float64, error)
	Classes() int
	InputSize() int
}

// score turns a distance into a similarity in (0, 1].
func score(distance float64) float64 {
	return 1.0 / (1.0 + distance)
}

// StaticModel classifies a single frame by its distance to per-class
// template frames.
type StaticModel struct {
	templates [][]landmark.Frame
	normalize bool
}

// NewStaticModel builds a model from per-class template frames.
func NewStaticModel(templates [][]landmark.Frame, normalize bool) *StaticModel {
	return &StaticModel{templates: templates, normalize: normalize}
}

func (m *StaticModel) Classes() int   { return len(m.templates) }
func (m *StaticModel) InputSize() int { return landmark.FrameSize }

// Predict scores every class by its closest template.
func (m *StaticModel) Predict(features []float32) ([]float64, error) {
	frame, err := landmark.FrameFromVector(features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputSize, err)
	}
	if m.normalize {
		frame = frame.Normalize()
	}

	scores := make([]float64, len(m.templates))
	for class, templates := range m.templates {
		for _, tmpl := range templates {
			if s := score(landmark.Distance(frame, tmpl)); s > scores[class] {
				scores[class] = s
			}
		}
	}
	return scores, nil
}

// SequenceModel classifies a fixed-length run of frames with dynamic time
// warping against per-class template sequences.
type SequenceModel struct {
	templates [][]landmark.Sequence
	length    int
	normalize bool
}

// NewSequenceModel builds a model for sequences of length frames.
func NewSequenceModel(templates [][]landmark.Sequence, length int, normalize bool) *SequenceModel {
	return &SequenceModel{templates: templates, length: length, normalize: normalize}
}

func (m *SequenceModel) Classes() int   { return len(m.templates) }
func (m *SequenceModel) InputSize() int { return m.length * landmark.FrameSize }

// Predict scores every class by its closest template under DTW.
func (m *SequenceModel) Predict(features []float32) ([]float64, error) {
	if len(features) != m.InputSize() {
		return nil, fmt.Errorf("%w: want %d values, got %d", ErrInputSize, m.InputSize(), len(features))
	}
	seq, err := landmark.SequenceFromVector(features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputSize, err)
	}
	if m.normalize {
		seq = seq.Normalize()
	}

	scores := make([]float64, len(m.templates))
	for class, templates := range m.templates {
		for _, tmpl := range templates {
			if s := score(DTWDistance(seq, tmpl)); s > scores[class] {
				scores[class] = s
			}
		}
	}
	return scores, nil
}
