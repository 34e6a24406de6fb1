// Ported from:
// original_source/src/CongestionController.cpp (CongestionController::UpdateAverageGradient),
// generics idiom grounded on congestion_bbr1/windowed_filter.go's
// WindowedFilterValue type constraint.

package pcc

import "golang.org/x/exp/constraints"

// windowedMean maintains an incremental arithmetic mean over the last N
// samples, where N is fixed at construction. It is the generalization spec
// section 9's Open Question asks for: the source hardcodes
// kAvgGradientSampleSize = 1 but its update logic already supports larger
// windows, so this type exposes that as Config.GradientWindowSize.
type windowedMean[T constraints.Float] struct {
	window []T
	size   int
	mean   T
}

// newWindowedMean creates a windowedMean bounded to size samples. A size <= 1
// degenerates to "mean equals the most recent sample" — the source's default.
func newWindowedMean[T constraints.Float](size int) *windowedMean[T] {
	if size < 1 {
		size = 1
	}
	return &windowedMean[T]{size: size}
}

// Update folds in a new sample and returns the updated mean.
func (w *windowedMean[T]) Update(sample T) T {
	switch {
	case len(w.window) == 0:
		w.mean = sample
	case len(w.window) < w.size:
		n := T(len(w.window))
		w.mean = (w.mean*n + sample) / (n + 1)
	default:
		oldest := w.window[0]
		w.window = w.window[1:]
		w.mean -= oldest / T(w.size)
		w.mean += sample / T(w.size)
	}
	w.window = append(w.window, sample)
	return w.mean
}
