package session

import "math"

// ClampIndex limits i to [0, pages-1]. It returns 0 for an empty book.
func ClampIndex(i, pages int) int {
	if pages <= 0 || i < 0 {
		return 0
	}
	if i > pages-1 {
		return pages - 1
	}
	return i
}

// IndexForOffset converts a horizontal scroll offset into a page index by
// rounding offset/pageWidth and clamping. ok is false when the result is not a
// finite number, e.g. before the view has been measured.
func IndexForOffset(offset, pageWidth float64, pages int) (index int, ok bool) {
	if pageWidth <= 0 {
		return 0, false
	}
	r := math.Round(offset / pageWidth)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return ClampIndex(int(r), pages), true
}

// OffsetForIndex is the scroll offset at which page i is aligned.
func OffsetForIndex(i int, pageWidth float64) float64 {
	return float64(i) * pageWidth
}

// NextNarratedIndex returns the first index j >= start with narration, or -1.
func NextNarratedIndex(narrated []bool, start int) int {
	if start < 0 {
		start = 0
	}
	for j := start; j < len(narrated); j++ {
		if narrated[j] {
			return j
		}
	}
	return -1
}
