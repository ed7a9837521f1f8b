package landmark

import "fmt"

// Sequence is an ordered run of frames for a dynamic gesture.
type Sequence []Frame

// SequenceFromVector unpacks a flat vector of whole frames.
func SequenceFromVector(v []float32) (Sequence, error) {
	if len(v) == 0 || len(v)%FrameSize != 0 {
		return nil, fmt.Errorf("sequence needs a multiple of %d values, got %d", FrameSize, len(v))
	}
	seq := make(Sequence, len(v)/FrameSize)
	for i := range seq {
		f, err := FrameFromVector(v[i*FrameSize : (i+1)*FrameSize])
		if err != nil {
			return nil, err
		}
		seq[i] = f
	}
	return seq, nil
}

// Vector flattens the sequence frame by frame.
func (s Sequence) Vector() []float32 {
	v := make([]float32, 0, len(s)*FrameSize)
	for _, f := range s {
		v = append(v, f.Vector()...)
	}
	return v
}

// Normalize normalizes every frame independently.
func (s Sequence) Normalize() Sequence {
	out := make(Sequence, len(s))
	for i, f := range s {
		out[i] = f.Normalize()
	}
	return out
}

// Resample returns exactly n frames. Longer sequences are sampled at evenly
// spaced indices from first to last frame; shorter ones are padded by
// repeating the last frame. An empty input yields n zero frames.
func (s Sequence) Resample(n int) Sequence {
	out := make(Sequence, n)
	if len(s) == 0 || n == 0 {
		return out
	}
	if len(s) < n {
		copy(out, s)
		for i := len(s); i < n; i++ {
			out[i] = s[len(s)-1]
		}
		return out
	}
	if n == 1 {
		out[0] = s[0]
		return out
	}
	last := len(s) - 1
	for i := range out {
		out[i] = s[i*last/(n-1)]
	}
	return out
}
