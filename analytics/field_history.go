package analytics

import (
	"gonum.org/v1/gonum/stat"
)

// FieldHistory is a fixed-capacity ring of recent values for one sensor field.
type FieldHistory struct {
	windowSize int
	values     []float64
	index      int
	count      int
}

func NewFieldHistory(size int) *FieldHistory {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &FieldHistory{
		windowSize: size,
		values:     make([]float64, size),
	}
}

func (h *FieldHistory) Append(value float64) {
	h.values[h.index] = value
	h.index = (h.index + 1) % h.windowSize
	if h.count < h.windowSize {
		h.count++
	}
}

func (h *FieldHistory) Size() int {
	return h.count
}

func (h *FieldHistory) Capacity() int {
	return h.windowSize
}

// Values returns the contents oldest first.
func (h *FieldHistory) Values() []float64 {
	out := make([]float64, 0, h.count)
	if h.count < h.windowSize {
		return append(out, h.values[:h.count]...)
	}
	out = append(out, h.values[h.index:]...)
	return append(out, h.values[:h.index]...)
}

func (h *FieldHistory) Mean() float64 {
	if h.count == 0 {
		return 0.0
	}
	return stat.Mean(h.values[:h.count], nil)
}

// StdDev is the population standard deviation.
func (h *FieldHistory) StdDev() float64 {
	_, std := h.MeanStdDev()
	return std
}

func (h *FieldHistory) MeanStdDev() (mean, std float64) {
	if h.count == 0 {
		return 0.0, 0.0
	}
	return stat.PopMeanStdDev(h.values[:h.count], nil)
}
