// Package brightness reduces a decoded frame stream to a per-frame
// scalar brightness series: the arithmetic mean of each frame's
// intensity samples. No smoothing, no gamma correction.
package brightness

import "github.com/Eierkopp/viddup/internal/frame"

// Collect drains frames and returns the mean-intensity series in
// frame-index order. It returns whatever frames were received even if
// frames is closed early by a truncated source: a short series is an
// acceptable, non-error outcome here.
func Collect(frames <-chan frame.Frame) []float32 {
	var out []float32
	for f := range frames {
		out = append(out, mean(f.Gray))
	}
	return out
}

func mean(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float32
	for _, v := range samples {
		sum += v
	}
	return sum / float32(len(samples))
}
