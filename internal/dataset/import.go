package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"

	"github.com/hearme/signbridge/internal/gesture"
	"github.com/hearme/signbridge/internal/landmark"
)

// ReadCSV reads alphabet samples from a CSV with a header row of
// x0,y0,z0,...,z20 columns and a label column.
func ReadCSV(r io.Reader) ([]gesture.Sample, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	labelCol := -1
	featureCols := make([]int, 0, landmark.FrameSize)
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "label") {
			labelCol = i
			continue
		}
		featureCols = append(featureCols, i)
	}
	if labelCol < 0 {
		return nil, errors.New("csv has no label column")
	}
	if len(featureCols) != landmark.FrameSize {
		return nil, fmt.Errorf("csv has %d feature columns, expected %d", len(featureCols), landmark.FrameSize)
	}

	var samples []gesture.Sample
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		features := make([]float32, len(featureCols))
		for i, col := range featureCols {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 32)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[col], err)
			}
			features[i] = float32(v)
		}
		samples = append(samples, gesture.Sample{Label: strings.TrimSpace(record[labelCol]), Features: features})
	}
	return samples, nil
}

// ReadSequencesNPY reads word samples from the X_dynamic.npy / y_dynamic.npy
// pair. X has shape (n, 30, 63) or (n, 1890); y holds class indices into
// labels. Indices past the end of labels are named Word_<index>.
func ReadSequencesNPY(xr, yr io.Reader, labels []string) ([]gesture.Sample, error) {
	x, shape, err := readFloats(xr)
	if err != nil {
		return nil, fmt.Errorf("read X: %w", err)
	}
	if len(shape) == 0 || shape[0] == 0 {
		return nil, errors.New("X is empty")
	}
	n := shape[0]
	size := len(x) / n
	if size != landmark.SequenceSize {
		return nil, fmt.Errorf("X rows have %d values, expected %d", size, landmark.SequenceSize)
	}

	y, err := readInts(yr)
	if err != nil {
		return nil, fmt.Errorf("read y: %w", err)
	}
	if len(y) != n {
		return nil, fmt.Errorf("X has %d rows but y has %d", n, len(y))
	}

	samples := make([]gesture.Sample, n)
	for i := range samples {
		idx := int(y[i])
		label := fmt.Sprintf("Word_%d", idx)
		if idx >= 0 && idx < len(labels) {
			label = labels[idx]
		}
		samples[i] = gesture.Sample{Label: label, Features: x[i*size : (i+1)*size]}
	}
	return samples, nil
}

func readFloats(r io.Reader) ([]float32, []int, error) {
	nr, err := npyio.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	shape := nr.Header.Descr.Shape
	n := 1
	for _, d := range shape {
		n *= d
	}

	switch dtype := strings.TrimLeft(nr.Header.Descr.Type, "<|="); dtype {
	case "f4":
		out := make([]float32, n)
		if err := nr.Read(&out); err != nil {
			return nil, nil, err
		}
		return out, shape, nil
	case "f8":
		raw := make([]float64, n)
		if err := nr.Read(&raw); err != nil {
			return nil, nil, err
		}
		out := make([]float32, n)
		for i, v := range raw {
			out[i] = float32(v)
		}
		return out, shape, nil
	default:
		return nil, nil, fmt.Errorf("unsupported dtype %q", nr.Header.Descr.Type)
	}
}

func readInts(r io.Reader) ([]int64, error) {
	nr, err := npyio.NewReader(r)
	if err != nil {
		return nil, err
	}
	n := 1
	for _, d := range nr.Header.Descr.Shape {
		n *= d
	}

	switch dtype := strings.TrimLeft(nr.Header.Descr.Type, "<|="); dtype {
	case "i8":
		out := make([]int64, n)
		err := nr.Read(&out)
		return out, err
	case "i4":
		raw := make([]int32, n)
		if err := nr.Read(&raw); err != nil {
			return nil, err
		}
		out := make([]int64, n)
		for i, v := range raw {
			out[i] = int64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %q", nr.Header.Descr.Type)
	}
}

// sequenceLine is one line of a JSONL word dataset.
type sequenceLine struct {
	Label  string      `json:"label"`
	Frames [][]float32 `json:"frames"`
}

// ReadJSONL reads word samples, one {"label", "frames"} object per line.
// Each frame is 63 values, or empty when no hand was detected. Sequences
// are resampled to 30 frames.
func ReadJSONL(r io.Reader) ([]gesture.Sample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var samples []gesture.Sample
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var sl sequenceLine
		if err := json.Unmarshal([]byte(text), &sl); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if sl.Label == "" {
			return nil, fmt.Errorf("line %d: missing label", line)
		}

		seq := make(landmark.Sequence, len(sl.Frames))
		for i, v := range sl.Frames {
			if len(v) == 0 {
				continue
			}
			f, err := landmark.FrameFromVector(v)
			if err != nil {
				return nil, fmt.Errorf("line %d frame %d: %w", line, i, err)
			}
			seq[i] = f
		}
		samples = append(samples, gesture.Sample{
			Label:    sl.Label,
			Features: seq.Resample(landmark.SequenceLength).Vector(),
		})
	}
	return samples, scanner.Err()
}
