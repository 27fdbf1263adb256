// Package geometry provides the planar math the workflow needs to place a
// tap on a network edge.
//
// This package imports nothing internal. It deliberately stays in a local
// planar frame: tap locations and edge polylines arrive in the same projected
// coordinate system, so no datum or projection handling happens here.
package geometry

import "math"

// Point is a location in a projected planar coordinate system.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polyline is an ordered sequence of vertices describing an edge geometry.
type Polyline []Point

// Length returns the total arc length of the polyline.
// A polyline with fewer than two vertices has length 0.
func (l Polyline) Length() float64 {
	var total float64
	for i := 1; i < len(l); i++ {
		total += dist(l[i-1], l[i])
	}
	return total
}

// FractionAlong returns the fractional position in [0, 1] of the point on
// line nearest to p, measured by arc length from the first vertex.
//
// Degenerate polylines (fewer than two vertices, or zero total length)
// yield 0 - the caller gets a valid fraction for any input.
func FractionAlong(line Polyline, p Point) float64 {
	_, frac := Nearest(line, p)
	return frac
}

// Nearest projects p onto line and returns the projected point together
// with its fractional position along the line's arc length.
func Nearest(line Polyline, p Point) (Point, float64) {
	if len(line) == 0 {
		return Point{}, 0
	}
	if len(line) == 1 {
		return line[0], 0
	}

	total := line.Length()
	if total == 0 {
		return line[0], 0
	}

	best := line[0]
	bestDist := math.Inf(1)
	bestArc := 0.0

	var walked float64
	for i := 1; i < len(line); i++ {
		a, b := line[i-1], line[i]
		proj, t := projectOnSegment(a, b, p)
		if d := dist(proj, p); d < bestDist {
			bestDist = d
			best = proj
			bestArc = walked + t*dist(a, b)
		}
		walked += dist(a, b)
	}

	return best, bestArc / total
}

// projectOnSegment returns the closest point to p on segment ab and the
// parameter t in [0, 1] locating it between a and b.
func projectOnSegment(a, b, p Point) (Point, float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return a, 0
	}

	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))

	return Point{X: a.X + t*dx, Y: a.Y + t*dy}, t
}

func dist(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
