package video

// Rect is an axis-aligned rectangle in frame coordinates. The origin is the
// top-left corner of the frame; W and H are in pixels.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Area returns the rectangle's area in square pixels. Degenerate rectangles
// report zero.
func (r Rect) Area() int {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Intersect returns the overlapping region of two rectangles. The zero Rect
// is returned when they do not overlap.
func (r Rect) Intersect(other Rect) Rect {
	x1 := r.X
	if other.X > x1 {
		x1 = other.X
	}
	y1 := r.Y
	if other.Y > y1 {
		y1 = other.Y
	}

	x2 := r.X + r.W
	if other.X+other.W < x2 {
		x2 = other.X + other.W
	}
	y2 := r.Y + r.H
	if other.Y+other.H < y2 {
		y2 = other.Y + other.H
	}

	if x2 <= x1 || y2 <= y1 {
		return Rect{} // no overlap
	}
	return Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// Contains reports whether the point (x, y) lies inside the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// CenterIn reports whether the rectangle's center point lies inside other.
// Used for region-of-interest filtering of detections.
func (r Rect) CenterIn(other Rect) bool {
	return other.Contains(r.X+r.W/2, r.Y+r.H/2)
}

// IoU computes the intersection-over-union of two rectangles, the standard
// overlap measure used for detection-to-track association. Returns a value
// in [0, 1]; disjoint or degenerate rectangles score 0.
func (r Rect) IoU(other Rect) float64 {
	inter := r.Intersect(other).Area()
	if inter == 0 {
		return 0
	}

	union := r.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
