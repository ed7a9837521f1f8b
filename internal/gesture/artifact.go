package gesture

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hearme/signbridge/internal/landmark"
)

// Kind selects which classifier an artifact builds.
type Kind string

const (
	KindStatic   Kind = "static"
	KindSequence Kind = "sequence"
)

// ErrInvalidArtifact is returned for model files that cannot build a classifier.
var ErrInvalidArtifact = errors.New("gesture: invalid model artifact")

// Class is one output class and its template vectors.
type Class struct {
	Label     string      `json:"label"`
	Templates [][]float32 `json:"templates"`
}

// Artifact is the on-disk form of a trained model.
type Artifact struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	InputSize int       `json:"input_size"`
	Normalize bool      `json:"normalize"`
	Accuracy  float64   `json:"accuracy,omitempty"` // holdout accuracy at training time
	Classes   []Class   `json:"classes"`
}

// Load reads an artifact from a JSON file.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArtifact, path, err)
	}
	return &a, nil
}

// Save writes the artifact as JSON, creating the parent directory.
func (a *Artifact) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Labels returns the class labels in class-index order.
func (a *Artifact) Labels() []string {
	labels := make([]string, len(a.Classes))
	for i, c := range a.Classes {
		labels[i] = c.Label
	}
	return labels
}

// Classifier builds the model described by the artifact.
func (a *Artifact) Classifier() (Classifier, error) {
	if len(a.Classes) == 0 {
		return nil, fmt.Errorf("%w: no classes", ErrInvalidArtifact)
	}

	switch a.Kind {
	case KindStatic:
		if a.InputSize != landmark.FrameSize {
			return nil, fmt.Errorf("%w: static input size %d", ErrInvalidArtifact, a.InputSize)
		}
		templates := make([][]landmark.Frame, len(a.Classes))
		for i, c := range a.Classes {
			for j, v := range c.Templates {
				f, err := landmark.FrameFromVector(v)
				if err != nil {
					return nil, fmt.Errorf("%w: class %q template %d: %v", ErrInvalidArtifact, c.Label, j, err)
				}
				templates[i] = append(templates[i], f)
			}
		}
		return NewStaticModel(templates, a.Normalize), nil

	case KindSequence:
		if a.InputSize <= 0 || a.InputSize%landmark.FrameSize != 0 {
			return nil, fmt.Errorf("%w: sequence input size %d", ErrInvalidArtifact, a.InputSize)
		}
		templates := make([][]landmark.Sequence, len(a.Classes))
		for i, c := range a.Classes {
			for j, v := range c.Templates {
				if len(v) != a.InputSize {
					return nil, fmt.Errorf("%w: class %q template %d has %d values", ErrInvalidArtifact, c.Label, j, len(v))
				}
				seq, err := landmark.SequenceFromVector(v)
				if err != nil {
					return nil, fmt.Errorf("%w: class %q template %d: %v", ErrInvalidArtifact, c.Label, j, err)
				}
				templates[i] = append(templates[i], seq)
			}
		}
		return NewSequenceModel(templates, a.InputSize/landmark.FrameSize, a.Normalize), nil
	}

	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, a.Kind)
}

// LoadLabels reads one label per line, skipping blank lines.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if label := strings.TrimSpace(scanner.Text()); label != "" {
			labels = append(labels, label)
		}
	}
	return labels, scanner.Err()
}

// WriteLabels writes one label per line.
func WriteLabels(path string, labels []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.Join(labels, "\n")+"\n"), 0644)
}
