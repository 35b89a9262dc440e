package render

import (
	"math"
	"sort"
)

// Palette is the sequential fill ramp used for class breaks (YlOrRd).
var Palette = []string{"#ffffb2", "#fed976", "#feb24c", "#fd8d3c", "#fc4e2a", "#e31a1c", "#b10026"}

// Breaks returns ascending upper bounds for up to classes quantile classes
// over the non-zero values. Duplicate bounds collapse, so skewed data yields
// fewer classes. The last bound is always the maximum.
func Breaks(values []int, classes int) []int {
	if classes <= 0 {
		classes = 5
	}
	if classes > len(Palette) {
		classes = len(Palette)
	}

	nz := make([]int, 0, len(values))
	for _, v := range values {
		if v > 0 {
			nz = append(nz, v)
		}
	}
	if len(nz) == 0 {
		return nil
	}
	sort.Ints(nz)

	out := make([]int, 0, classes)
	for i := 1; i <= classes; i++ {
		idx := int(math.Ceil(float64(i)*float64(len(nz))/float64(classes))) - 1
		if idx < 0 {
			idx = 0
		}
		v := nz[idx]
		if len(out) > 0 && out[len(out)-1] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}

// ClassColors picks n colors spread across Palette.
func ClassColors(n int) []string {
	if n <= 0 {
		return nil
	}
	if n >= len(Palette) {
		return append([]string(nil), Palette...)
	}
	out := make([]string, n)
	for i := range n {
		if n == 1 {
			out[i] = Palette[len(Palette)-1]
			continue
		}
		out[i] = Palette[int(math.Round(float64(i)*float64(len(Palette)-1)/float64(n-1)))]
	}
	return out
}
