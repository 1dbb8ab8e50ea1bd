package comm

import "gonum.org/v1/gonum/blas/blas32"

// Reducer combines the per-device vectors of one round into the aggregate
// handed back to every participant. All parts have equal length; the reducer
// must return a fresh vector of that length and must not retain parts.
type Reducer func(parts [][]float32) []float32

// SumReducer reduces to the elementwise sum of all parts.
func SumReducer(parts [][]float32) []float32 {
	out := make([]float32, len(parts[0]))
	acc := blas32.Vector{N: len(out), Inc: 1, Data: out}
	for _, part := range parts {
		blas32.Axpy(1, blas32.Vector{N: len(part), Inc: 1, Data: part}, acc)
	}
	return out
}

// MeanReducer reduces to the elementwise arithmetic mean of all parts. It is
// the reducer synchronized batch normalization needs for both its forward
// statistics and its backward gradient sums.
func MeanReducer(parts [][]float32) []float32 {
	out := SumReducer(parts)
	blas32.Scal(1/float32(len(parts)), blas32.Vector{N: len(out), Inc: 1, Data: out})
	return out
}
