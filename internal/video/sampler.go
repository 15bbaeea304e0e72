package video

import (
	"errors"
	"iter"
	"math"
	"slices"
)

var ErrInvalidStride = errors.New("stride must be a positive integer")

// SampleSet is the ordered set of frame indices checked for one request.
// It holds no iteration state, so every iterator it returns starts over.
type SampleSet struct {
	totalFrames int
	stride      int
	reverse     bool
}

func NewSampleSet(frameRate, durationSeconds float64, stride int, reverse bool) (SampleSet, error) {
	if stride <= 0 {
		return SampleSet{}, ErrInvalidStride
	}
	return SampleSet{
		totalFrames: TotalFrames(frameRate, durationSeconds),
		stride:      stride,
		reverse:     reverse,
	}, nil
}

// TotalFrames is floor(frameRate * durationSeconds), or 0 when either input
// is not a positive finite number.
func TotalFrames(frameRate, durationSeconds float64) int {
	product := frameRate * durationSeconds
	if !(frameRate > 0) || !(durationSeconds > 0) || math.IsInf(product, 0) || math.IsNaN(product) {
		return 0
	}
	if product > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Floor(product))
}

// Sample returns the forward indices 0, stride, 2*stride, ... below the total
// frame count.
func Sample(frameRate, durationSeconds float64, stride int) ([]int, error) {
	set, err := NewSampleSet(frameRate, durationSeconds, stride, false)
	if err != nil {
		return nil, err
	}
	return slices.Collect(set.Forward()), nil
}

func (s SampleSet) TotalFrames() int { return s.totalFrames }

func (s SampleSet) Stride() int { return s.stride }

func (s SampleSet) ReverseEnabled() bool { return s.reverse }

// ForwardLen is the number of distinct indices in one pass.
func (s SampleSet) ForwardLen() int {
	if s.stride <= 0 || s.totalFrames <= 0 {
		return 0
	}
	return (s.totalFrames + s.stride - 1) / s.stride
}

// Len is the number of indices All yields. Reverse mode doubles it.
func (s SampleSet) Len() int {
	if s.reverse {
		return 2 * s.ForwardLen()
	}
	return s.ForwardLen()
}

func (s SampleSet) Forward() iter.Seq[int] {
	return func(yield func(int) bool) {
		if s.stride <= 0 {
			return
		}
		for i := 0; i < s.totalFrames; i += s.stride {
			if !yield(i) {
				return
			}
		}
	}
}

// Reverse walks the forward indices from last to first.
func (s SampleSet) Reverse() iter.Seq[int] {
	return func(yield func(int) bool) {
		n := s.ForwardLen()
		for k := n - 1; k >= 0; k-- {
			if !yield(k * s.stride) {
				return
			}
		}
	}
}

// All yields the forward pass followed, in reverse mode, by the reverse pass.
// Indices are repeated, not deduplicated.
func (s SampleSet) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := range s.Forward() {
			if !yield(i) {
				return
			}
		}
		if !s.reverse {
			return
		}
		for i := range s.Reverse() {
			if !yield(i) {
				return
			}
		}
	}
}
