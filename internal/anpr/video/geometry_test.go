package video

import (
	"math"
	"testing"
)

func TestRect_Area(t *testing.T) {
	tests := []struct {
		name string
		rect Rect
		want int
	}{
		{"simple", Rect{X: 0, Y: 0, W: 10, H: 5}, 50},
		{"offset origin", Rect{X: 100, Y: 200, W: 3, H: 7}, 21},
		{"zero width", Rect{X: 0, Y: 0, W: 0, H: 5}, 0},
		{"negative width", Rect{X: 0, Y: 0, W: -10, H: 5}, 0},
		{"zero value", Rect{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rect.Area(); got != tt.want {
				t.Errorf("Area() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRect_Intersect(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 10, H: 10}

	t.Run("partial overlap", func(t *testing.T) {
		b := Rect{X: 5, Y: 5, W: 10, H: 10}
		got := a.Intersect(b)
		want := Rect{X: 5, Y: 5, W: 5, H: 5}
		if got != want {
			t.Errorf("Intersect() = %+v, want %+v", got, want)
		}
	})

	t.Run("contained", func(t *testing.T) {
		b := Rect{X: 2, Y: 2, W: 4, H: 4}
		got := a.Intersect(b)
		if got != b {
			t.Errorf("Intersect() = %+v, want %+v", got, b)
		}
	})

	t.Run("disjoint", func(t *testing.T) {
		b := Rect{X: 20, Y: 20, W: 5, H: 5}
		got := a.Intersect(b)
		if !got.Empty() {
			t.Errorf("Intersect() = %+v, want empty", got)
		}
	})

	t.Run("touching edges", func(t *testing.T) {
		b := Rect{X: 10, Y: 0, W: 5, H: 10}
		got := a.Intersect(b)
		if !got.Empty() {
			t.Errorf("Intersect() of touching rects = %+v, want empty", got)
		}
	})
}

func TestRect_IoU(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want float64
	}{
		{
			"identical",
			Rect{X: 0, Y: 0, W: 10, H: 10},
			Rect{X: 0, Y: 0, W: 10, H: 10},
			1.0,
		},
		{
			"disjoint",
			Rect{X: 0, Y: 0, W: 10, H: 10},
			Rect{X: 50, Y: 50, W: 10, H: 10},
			0.0,
		},
		{
			// intersection 25, union 175
			"quarter overlap",
			Rect{X: 0, Y: 0, W: 10, H: 10},
			Rect{X: 5, Y: 5, W: 10, H: 10},
			25.0 / 175.0,
		},
		{
			// contained: intersection 25, union 100
			"contained",
			Rect{X: 0, Y: 0, W: 10, H: 10},
			Rect{X: 0, Y: 0, W: 5, H: 5},
			0.25,
		},
		{
			"degenerate",
			Rect{X: 0, Y: 0, W: 0, H: 0},
			Rect{X: 0, Y: 0, W: 10, H: 10},
			0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.IoU(tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("IoU() = %f, want %f", got, tt.want)
			}

			// IoU is symmetric.
			if rev := tt.b.IoU(tt.a); math.Abs(rev-got) > 1e-9 {
				t.Errorf("IoU not symmetric: %f vs %f", got, rev)
			}
		})
	}
}

func TestRect_Contains(t *testing.T) {
	r := Rect{X: 10, Y: 10, W: 20, H: 20}

	if !r.Contains(10, 10) {
		t.Error("Contains should include top-left corner")
	}
	if r.Contains(30, 30) {
		t.Error("Contains should exclude bottom-right corner")
	}
	if r.Contains(5, 15) {
		t.Error("Contains should exclude points left of the rect")
	}
}

func TestRect_CenterIn(t *testing.T) {
	roi := Rect{X: 0, Y: 0, W: 100, H: 100}

	inside := Rect{X: 40, Y: 40, W: 20, H: 20}
	if !inside.CenterIn(roi) {
		t.Error("expected center inside ROI")
	}

	// Box hangs over the edge but its center is outside.
	straddling := Rect{X: 90, Y: 40, W: 40, H: 20}
	if straddling.CenterIn(roi) {
		t.Error("expected center outside ROI for straddling box")
	}
}
