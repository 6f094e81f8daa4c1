package compute

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Grid returns the scan input: length rows of length values where row i
// holds i+j+1 at column j.
func Grid(length uint32) []float32 {
	out := make([]float32, 0, length*length)
	for i := uint32(0); i < length; i++ {
		for j := uint32(0); j < length; j++ {
			out = append(out, float32(i+j+1))
		}
	}
	return out
}

// PrefixSum returns the exclusive prefix sum of values: out[0] is zero and
// out[k] is the sum of values[:k].
func PrefixSum(values []float32) []float32 {
	out := make([]float32, len(values))
	var acc float32
	for i, v := range values {
		out[i] = acc
		acc += v
	}
	return out
}

// Compare reports the first element of got that differs from want by more
// than a relative tolerance. GPU and host add in different orders.
func Compare(got, want []float32) error {
	if len(got) != len(want) {
		return fmt.Errorf("%w: %d values, want %d", ErrScanMismatch, len(got), len(want))
	}
	for i := range want {
		tol := 1e-5 * math.Max(1, math.Abs(float64(want[i])))
		if math.Abs(float64(got[i]-want[i])) > tol {
			return fmt.Errorf("%w: value %d is %g, want %g", ErrScanMismatch, i, got[i], want[i])
		}
	}
	return nil
}

func encode(dst []byte, values []float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

func decode(src []byte, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return out
}
