// Package vecmath provides pure functions over float64 embedding vectors.
// No function mutates its inputs.
package vecmath

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrEmptyInput        = errors.New("empty input")
)

func mismatch(a, b []float64) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	return nil
}

// Dot returns the inner product of a and b.
func Dot(a, b []float64) (float64, error) {
	if err := mismatch(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}

// Magnitude returns the L2 norm of v.
func Magnitude(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Cosine returns dot / (|a|*|b|), or 0 when either vector has zero magnitude.
func Cosine(a, b []float64) (float64, error) {
	if err := mismatch(a, b); err != nil {
		return 0, err
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 {
		return 0, nil
	}
	return dot / denom, nil
}

// Euclidean returns the straight-line distance between a and b.
func Euclidean(a, b []float64) (float64, error) {
	if err := mismatch(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Normalize returns v scaled to unit length. The zero vector maps to itself.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	m := Magnitude(v)
	if m == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / m
	}
	return out
}

func Add(a, b []float64) ([]float64, error) {
	if err := mismatch(a, b); err != nil {
		return nil, err
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out, nil
}

func Subtract(a, b []float64) ([]float64, error) {
	if err := mismatch(a, b); err != nil {
		return nil, err
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out, nil
}

func Scale(v []float64, k float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * k
	}
	return out
}

// Centroid returns the arithmetic mean of vs.
func Centroid(vs [][]float64) ([]float64, error) {
	if len(vs) == 0 {
		return nil, ErrEmptyInput
	}
	sum := make([]float64, len(vs[0]))
	for _, v := range vs {
		if err := mismatch(sum, v); err != nil {
			return nil, err
		}
		for i, x := range v {
			sum[i] += x
		}
	}
	return Scale(sum, 1/float64(len(vs))), nil
}
