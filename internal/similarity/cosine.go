package similarity

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrDimensionMismatch is returned when two vectors have different lengths
var ErrDimensionMismatch = errors.New("vector dimensions differ")

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction,
// 0 means orthogonal, and -1 means opposite direction.
// A zero vector has similarity 0 with everything.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	if len(a) == 0 {
		return 0, nil
	}

	aFloat64 := toFloat64(a)
	bFloat64 := toFloat64(b)

	dotProduct := floats.Dot(aFloat64, bFloat64)
	magA := math.Sqrt(floats.Dot(aFloat64, aFloat64))
	magB := math.Sqrt(floats.Dot(bFloat64, bFloat64))

	if magA == 0 || magB == 0 {
		return 0, nil
	}

	sim := dotProduct / (magA * magB)
	// Rounding can push self-similarity a hair past 1
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim, nil
}

// Mean returns the element-wise mean of vectors. No re-normalization is applied.
func Mean(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, ErrDimensionMismatch
		}
		floats.Add(sum, toFloat64(v))
	}
	floats.Scale(1.0/float64(len(vectors)), sum)

	mean := make([]float32, dim)
	for i, v := range sum {
		mean[i] = float32(v)
	}
	return mean, nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = float64(v[i])
	}
	return out
}
