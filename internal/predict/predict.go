// Package predict validates landmark vectors and runs them through the
// loaded alphabet and word classifiers.
package predict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearme/signbridge/internal/gesture"
	"github.com/hearme/signbridge/internal/landmark"
	"github.com/hearme/signbridge/internal/metrics"
)

// Mode selects the classifier.
type Mode string

const (
	ModeAlphabet Mode = "alphabet"
	ModeWord     Mode = "word"
)

var (
	ErrUnknownMode    = errors.New("invalid mode, must be 'alphabet' or 'word'")
	ErrModelNotLoaded = errors.New("model not loaded")
	ErrNoLandmarks    = errors.New("no landmarks received")
)

// ShapeError reports a landmark vector of the wrong length.
type ShapeError struct {
	Mode Mode
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	if e.Mode == ModeWord {
		return fmt.Sprintf("word expects %d values (%d×%d), got %d",
			e.Want, landmark.SequenceLength, landmark.FrameSize, e.Got)
	}
	return fmt.Sprintf("%s expects %d values, got %d", e.Mode, e.Want, e.Got)
}

// InputSize returns the landmark count a mode accepts, or 0 for unknown modes.
func InputSize(mode Mode) int {
	switch mode {
	case ModeAlphabet:
		return landmark.FrameSize
	case ModeWord:
		return landmark.SequenceSize
	}
	return 0
}

// AlphabetLabels are the letters A to Z in class-index order.
var AlphabetLabels = func() []string {
	labels := make([]string, 26)
	for i := range labels {
		labels[i] = string(rune('A' + i))
	}
	return labels
}()

// Model is a loaded classifier with its labels.
type Model struct {
	ID         string
	Classifier gesture.Classifier
	Labels     []string
}

// LoadModel reads an artifact and checks that it accepts the input size of
// the given mode.
func LoadModel(mode Mode, path string) (*Model, error) {
	art, err := gesture.Load(path)
	if err != nil {
		return nil, err
	}
	c, err := art.Classifier()
	if err != nil {
		return nil, err
	}
	if want := InputSize(mode); c.InputSize() != want {
		return nil, fmt.Errorf("%s model at %s takes %d values, need %d", mode, path, c.InputSize(), want)
	}
	return &Model{ID: art.ID, Classifier: c, Labels: art.Labels()}, nil
}

// Result is the outcome of one prediction.
type Result struct {
	Prediction int    `json:"prediction"`
	Label      string `json:"label"`
}

// ModelStatus describes one classifier slot.
type ModelStatus struct {
	Loaded  bool   `json:"loaded"`
	ID      string `json:"id,omitempty"`
	Classes int    `json:"classes,omitempty"`
	Labels  int    `json:"labels,omitempty"`
}

// Status reports which classifiers are available.
type Status struct {
	Alphabet ModelStatus `json:"alphabet"`
	Word     ModelStatus `json:"word"`
}

// Service runs predictions. Either model may be nil, in which case that
// mode answers ErrModelNotLoaded.
type Service struct {
	alphabet *Model
	word     *Model
	logger   zerolog.Logger
}

// NewService creates a prediction service. An alphabet model without labels
// is labelled A to Z by class index.
func NewService(alphabet, word *Model, logger zerolog.Logger) *Service {
	if alphabet != nil && len(alphabet.Labels) == 0 {
		alphabet.Labels = AlphabetLabels
	}
	return &Service{alphabet: alphabet, word: word, logger: logger}
}

func (s *Service) model(mode Mode) (*Model, error) {
	switch mode {
	case ModeAlphabet:
		if s.alphabet == nil {
			return nil, fmt.Errorf("alphabet %w", ErrModelNotLoaded)
		}
		return s.alphabet, nil
	case ModeWord:
		if s.word == nil {
			return nil, fmt.Errorf("word %w", ErrModelNotLoaded)
		}
		return s.word, nil
	}
	return nil, ErrUnknownMode
}

// Predict classifies a landmark vector and maps the arg-max to its label.
func (s *Service) Predict(ctx context.Context, mode Mode, landmarks []float32) (Result, error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		metrics.Predictions.WithLabelValues(string(mode), outcome).Inc()
		if outcome == "ok" {
			metrics.PredictionDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
		}
	}()

	if len(landmarks) == 0 {
		outcome = "invalid"
		return Result{}, ErrNoLandmarks
	}

	m, err := s.model(mode)
	if err != nil {
		if errors.Is(err, ErrModelNotLoaded) {
			outcome = "unavailable"
		} else {
			outcome = "invalid"
			mode = "unknown"
		}
		return Result{}, err
	}

	if want := InputSize(mode); len(landmarks) != want {
		outcome = "invalid"
		return Result{}, &ShapeError{Mode: mode, Want: want, Got: len(landmarks)}
	}

	if err := ctx.Err(); err != nil {
		outcome = "canceled"
		return Result{}, err
	}

	scores, err := m.Classifier.Predict(landmarks)
	if err != nil {
		outcome = "error"
		return Result{}, err
	}

	idx := gesture.ArgMax(scores)
	if idx < 0 {
		outcome = "error"
		return Result{}, fmt.Errorf("%s model returned no scores", mode)
	}

	res := Result{Prediction: idx, Label: label(mode, m.Labels, idx)}
	s.logger.Debug().
		Str("mode", string(mode)).
		Int("prediction", idx).
		Str("label", res.Label).
		Msg("prediction")
	return res, nil
}

// label maps a class index to its label, falling back to a generated name
// when the label list is shorter than the model's class count.
func label(mode Mode, labels []string, idx int) string {
	if idx < len(labels) {
		return labels[idx]
	}
	if mode == ModeWord {
		return fmt.Sprintf("Word_%d", idx)
	}
	return fmt.Sprintf("Class_%d", idx)
}

// Status reports the loaded models.
func (s *Service) Status() Status {
	return Status{Alphabet: status(s.alphabet), Word: status(s.word)}
}

func status(m *Model) ModelStatus {
	if m == nil {
		return ModelStatus{}
	}
	return ModelStatus{
		Loaded:  true,
		ID:      m.ID,
		Classes: m.Classifier.Classes(),
		Labels:  len(m.Labels),
	}
}
