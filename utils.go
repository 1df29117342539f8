package stext

import (
	"math"
	"sort"
	"unicode"
)

// calculateMedian calculates the median value of a float64 slice
func calculateMedian(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// average returns the arithmetic mean of values
func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateStdDev calculates the standard deviation of a float64 slice
func calculateStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	mean := average(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}

// normalizeAngle normalizes an angle to [0, 360) range
func normalizeAngle(angle float64) float64 {
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}
	return angle
}

// angleOf returns the angle of a direction vector in degrees.
// Device space is y-down, so 90 degrees points down the page.
func angleOf(dir Point) float64 {
	return normalizeAngle(math.Atan2(dir.Y, dir.X) * 180 / math.Pi)
}

// inferWritingMode infers the writing mode from a reading direction.
func inferWritingMode(dir Point) WritingMode {
	angle := angleOf(dir)

	switch {
	case angle < 45 || angle >= 315:
		return HorizontalLTR
	case angle >= 45 && angle < 135:
		return VerticalTTB
	case angle >= 135 && angle < 225:
		return HorizontalRTL
	default:
		return VerticalBTT
	}
}

// unitVector normalises v, falling back to +X for a zero vector.
func unitVector(v Point) Point {
	n := math.Hypot(v.X, v.Y)
	if n == 0 {
		return Point{X: 1}
	}
	return Point{X: v.X / n, Y: v.Y / n}
}

func dot(a, b Point) float64 {
	return a.X*b.X + a.Y*b.Y
}

func sub(a, b Point) Point {
	return Point{X: a.X - b.X, Y: a.Y - b.Y}
}

func lerp(a, b Point, t float64) Point {
	return Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}

// rectContains checks if rect1 contains rect2
func rectContains(r1, r2 Rect) bool {
	return r1.X0 <= r2.X0 && r1.Y0 <= r2.Y0 && r1.X1 >= r2.X1 && r1.Y1 >= r2.Y1
}

// mergeRects merges two rectangles into their bounding box
func mergeRects(r1, r2 Rect) Rect {
	return Rect{
		X0: math.Min(r1.X0, r2.X0),
		Y0: math.Min(r1.Y0, r2.Y0),
		X1: math.Max(r1.X1, r2.X1),
		Y1: math.Max(r1.Y1, r2.Y1),
	}
}

// clamp restricts a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// isSpaceRune treats NBSP and the other Unicode spaces as whitespace.
func isSpaceRune(r rune) bool {
	return unicode.IsSpace(r)
}

// isHyphen returns true for the runes a line can end with when a word is
// broken across lines.
func isHyphen(r rune) bool {
	return r == '-' || r == '\u00ad' || r == '\u2010'
}
