// Package geometry holds the planar helpers used for hit testing in simulation space.
package geometry

import "math"

// Point is a coordinate in simulation space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is a straight line between two points.
type Segment struct {
	A Point
	B Point
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// DistanceToSegment returns the distance from p to the closest point of s.
// A degenerate segment (A == B) behaves like a point.
func DistanceToSegment(p Point, s Segment) float64 {
	dx := s.B.X - s.A.X
	dy := s.B.Y - s.A.Y
	lengthSq := dx*dx + dy*dy
	if lengthSq == 0 {
		return Distance(p, s.A)
	}
	t := ((p.X-s.A.X)*dx + (p.Y-s.A.Y)*dy) / lengthSq
	t = math.Max(0, math.Min(1, t))
	return Distance(p, Point{X: s.A.X + t*dx, Y: s.A.Y + t*dy})
}

// Closest returns the index of the candidate with the smallest distance that is
// strictly below maxDistance, or -1 when none qualifies. Ties keep the first index.
func Closest[T any](candidates []T, maxDistance float64, distance func(T) float64) int {
	best := -1
	bestDistance := maxDistance
	for i, c := range candidates {
		d := distance(c)
		if d < bestDistance {
			best = i
			bestDistance = d
		}
	}
	return best
}
