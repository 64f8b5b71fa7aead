package viz

import (
	"fmt"
	"math"

	"github.com/guptarohit/asciigraph"
)

// DefocusPlot draws the per-tilt defocus values with their mean and spread in
// the caption. Empty input yields an empty string.
func DefocusPlot(values []float64) string {
	if len(values) == 0 {
		return ""
	}

	mean, sd := meanStd(values)
	data := values
	if len(data) == 1 {
		// asciigraph needs two points to draw a line.
		data = []float64{values[0], values[0]}
	}

	width := len(data)
	if width > 80 {
		width = 80
	}
	return asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(width),
		asciigraph.Precision(3),
		asciigraph.Caption(fmt.Sprintf("defocus (µm) n=%d mean=%.4f sd=%.4f", len(values), mean, sd)),
	)
}

func meanStd(values []float64) (mean, sd float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		sd += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sd / float64(len(values)))
}
