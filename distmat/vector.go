package distmat

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"spmvbench/comm"
)

// Vector is a distributed vector: a one-to-one map plus one contiguous
// local value buffer of the map's local length. Allocated once and
// overwritten in place between benchmark trials.
type Vector struct {
	Map    *Map
	Values []float64
}

// NewVector allocates a zero vector over the given map.
func NewVector(m *Map) *Vector {
	return &Vector{
		Map:    m,
		Values: make([]float64, m.LocalCount()),
	}
}

// Fill sets every local entry to v. Cheap reset between trials; passing
// math.NaN() arms the silent-no-op sentinel.
func (v *Vector) Fill(val float64) {
	for i := range v.Values {
		v.Values[i] = val
	}
}

// Norm2 returns the global 2-norm. Collective.
func (v *Vector) Norm2() float64 {
	local := floats.Dot(v.Values, v.Values)
	return math.Sqrt(v.Map.Comm().AllReduceFloat64(local, comm.Sum))
}

// Update computes v = alpha*w + beta*v elementwise.
func (v *Vector) Update(alpha float64, w *Vector, beta float64) {
	if len(w.Values) != len(v.Values) {
		panic(fmt.Sprintf("distmat: update length mismatch %d vs %d", len(w.Values), len(v.Values)))
	}
	if beta == 0 {
		for i := range v.Values {
			v.Values[i] = alpha * w.Values[i]
		}
		return
	}
	floats.Scale(beta, v.Values)
	floats.AddScaled(v.Values, alpha, w.Values)
}

// Equal reports exact elementwise equality of the local buffers.
func (v *Vector) Equal(w *Vector) bool {
	return floats.Equal(v.Values, w.Values)
}
