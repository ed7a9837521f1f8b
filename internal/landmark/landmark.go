// Package landmark describes hand keypoints produced by the pose estimator and
// converts between frames, sequences and the flat vectors the classifiers use.
package landmark

import (
	"fmt"
	"math"
)

// Hand landmark indices following the MediaPipe hand model.
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

const (
	// FrameSize is the length of a flattened frame (21 points × x,y,z).
	FrameSize = NumLandmarks * 3

	// SequenceLength is the number of frames in a dynamic gesture.
	SequenceLength = 30

	// SequenceSize is the length of a flattened sequence.
	SequenceSize = SequenceLength * FrameSize
)

// Point3D is a keypoint in normalized image coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Frame holds the 21 keypoints of one hand in one image.
type Frame [NumLandmarks]Point3D

// FrameFromVector unpacks a flat x0,y0,z0,x1,... vector.
func FrameFromVector(v []float32) (Frame, error) {
	var f Frame
	if len(v) != FrameSize {
		return f, fmt.Errorf("frame needs %d values, got %d", FrameSize, len(v))
	}
	for i := 0; i < NumLandmarks; i++ {
		f[i] = Point3D{
			X: float64(v[i*3]),
			Y: float64(v[i*3+1]),
			Z: float64(v[i*3+2]),
		}
	}
	return f, nil
}

// Vector flattens the frame to x0,y0,z0,x1,... order.
func (f Frame) Vector() []float32 {
	v := make([]float32, 0, FrameSize)
	for _, p := range f {
		v = append(v, float32(p.X), float32(p.Y), float32(p.Z))
	}
	return v
}

// IsZero reports whether the frame carries no detection. The extractor
// emits an all-zero frame when no hand is found.
func (f Frame) IsZero() bool {
	return f == Frame{}
}

func distance3D(a, b Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Distance sums the Euclidean distances between corresponding keypoints.
func Distance(a, b Frame) float64 {
	var total float64
	for i := range a {
		total += distance3D(a[i], b[i])
	}
	return total
}

// Normalize translates the frame so the wrist is at the origin and scales it
// so that the wrist to middle-finger MCP distance is 1. Empty frames and
// degenerate hands are returned translated but unscaled.
func (f Frame) Normalize() Frame {
	if f.IsZero() {
		return f
	}

	var out Frame
	wrist := f[Wrist]
	for i, p := range f {
		out[i] = Point3D{X: p.X - wrist.X, Y: p.Y - wrist.Y, Z: p.Z - wrist.Z}
	}

	scale := distance3D(Point3D{}, out[MiddleMCP])
	if scale < 1e-10 {
		return out
	}
	for i := range out {
		out[i].X /= scale
		out[i].Y /= scale
		out[i].Z /= scale
	}
	return out
}
