package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// SoftmaxLastDim applies a numerically stable softmax over each row of
// width n. The result is a new slice.
func SoftmaxLastDim(x []float32, n int) ([]float32, error) {
	if n <= 0 || len(x)%n != 0 {
		return nil, fmt.Errorf("cannot split %d values into rows of %d", len(x), n)
	}
	out := make([]float32, len(x))
	for r := 0; r < len(x); r += n {
		row := x[r : r+n]
		maxV := row[0]
		for _, v := range row[1:] {
			if v > maxV {
				maxV = v
			}
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - maxV))
			out[r+i] = float32(e)
			sum += e
		}
		for i := range row {
			out[r+i] = float32(float64(out[r+i]) / sum)
		}
	}
	return out, nil
}

// MaxLastDim returns the maximum and its index for each row of width n.
// Ties resolve to the lowest index.
func MaxLastDim(x []float32, n int) ([]float32, []int64, error) {
	if n <= 0 || len(x)%n != 0 {
		return nil, nil, fmt.Errorf("cannot split %d values into rows of %d", len(x), n)
	}
	rows := len(x) / n
	values := make([]float32, rows)
	indices := make([]int64, rows)
	for r := 0; r < rows; r++ {
		row := x[r*n : (r+1)*n]
		best := 0
		for i := 1; i < n; i++ {
			if row[i] > row[best] {
				best = i
			}
		}
		values[r] = row[best]
		indices[r] = int64(best)
	}
	return values, indices, nil
}

// Rand fills a tensor of the given shape with uniform values in [0, 1).
func Rand(rng *rand.Rand, shape []int) *Tensor {
	data := make([]float32, Numel(shape))
	for i := range data {
		data[i] = rng.Float32()
	}
	t, _ := FromFloat32(shape, data)
	return t
}

// RandN fills a tensor with standard normal values multiplied by scale.
func RandN(rng *rand.Rand, shape []int, scale float32) *Tensor {
	data := make([]float32, Numel(shape))
	for i := range data {
		data[i] = float32(rng.NormFloat64()) * scale
	}
	t, _ := FromFloat32(shape, data)
	return t
}
