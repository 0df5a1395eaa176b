// Package metric provides the similarity and distance functions used to rank vectors.
package metric

import (
	"errors"

	"github.com/hupe1980/shardvec/internal/math32"
)

// ErrLengthMismatch is returned when two vectors have different lengths.
var ErrLengthMismatch = errors.New("vector sizes do not match")

// SimilarityFunc scores two vectors; higher means more similar.
type SimilarityFunc func(a, b []float32) (float32, error)

// Magnitude calculates the magnitude (length) of a float32 slice.
func Magnitude(v []float32) float32 {
	return math32.Sqrt(math32.Dot(v, v))
}

// CosineSimilarity calculates the cosine similarity between two float32 slices.
//
// The result is 0 when either vector has zero magnitude.
func CosineSimilarity(v1, v2 []float32) (float32, error) {
	if len(v1) != len(v2) {
		return 0, ErrLengthMismatch
	}

	dotProduct := math32.Dot(v1, v2)
	magnitudeA := Magnitude(v1)
	magnitudeB := Magnitude(v2)

	// Avoid division by zero
	if magnitudeA == 0 || magnitudeB == 0 {
		return 0, nil
	}

	return dotProduct / (magnitudeA * magnitudeB), nil
}

// DotProduct calculates the inner product of two float32 slices.
func DotProduct(v1, v2 []float32) (float32, error) {
	if len(v1) != len(v2) {
		return 0, ErrLengthMismatch
	}
	return math32.Dot(v1, v2), nil
}

// SquaredL2 calculates the squared L2 distance between two float32 slices.
func SquaredL2(v1, v2 []float32) (float32, error) {
	if len(v1) != len(v2) {
		return 0, ErrLengthMismatch
	}

	return math32.SquaredL2(v1, v2), nil
}
