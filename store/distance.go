package store

import (
	"errors"
	"math"

	"ragsql/types"
)

var ErrDimensionMismatch = errors.New("vector: dimension mismatch")

// Distance computes the metric the way pgvector defines it, so an in-process
// scan ranks rows exactly like the database.
func Distance(m types.Metric, a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	switch m {
	case types.MetricCosine:
		var dot, na, nb float64
		for i := range a {
			x, y := float64(a[i]), float64(b[i])
			dot += x * y
			na += x * x
			nb += y * y
		}
		if na == 0 || nb == 0 {
			return math.NaN(), nil
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
	case types.MetricInnerProduct:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return -dot, nil
	default:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum), nil
	}
}
