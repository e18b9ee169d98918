package raster

import "fmt"

// Array is an owned, in-memory N-dimensional array in row-major order.
type Array struct {
	// Shape holds the extent of each axis.
	Shape []int

	// Data holds the elements in row-major order over Shape.
	Data []float64
}

// Size returns the total number of elements.
func (a *Array) Size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Strides returns the row-major stride of each axis in elements.
func (a *Array) Strides() []int {
	strides := make([]int, len(a.Shape))
	s := 1
	for i := len(a.Shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= a.Shape[i]
	}
	return strides
}

// At returns the element at the given coordinates.
func (a *Array) At(coords ...int) float64 {
	if len(coords) != len(a.Shape) {
		panic(fmt.Sprintf("raster: %d coordinates for rank-%d array", len(coords), len(a.Shape)))
	}
	idx := 0
	s := 1
	for i := len(coords) - 1; i >= 0; i-- {
		if coords[i] < 0 || coords[i] >= a.Shape[i] {
			panic(fmt.Sprintf("raster: coordinate %d out of range for axis %d of extent %d",
				coords[i], i, a.Shape[i]))
		}
		idx += coords[i] * s
		s *= a.Shape[i]
	}
	return a.Data[idx]
}
