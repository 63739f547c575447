package geometry

import (
	"math"
	"testing"
)

const eps = 1e-9

func almost(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestFontSize(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{0, 120},
		{1, 120},
		{4, 120},
		{5, 100},
		{6, 100},
		{7, 80},
		{8, 80},
		{9, 75},
		{10, 75},
		{11, 55},
		{14, 55},
		{15, 40},
		{18, 40},
		{19, 32},
		{22, 32},
		{23, 28},
		{30, 28},
	}

	for _, tt := range tests {
		if got := FontSize(tt.length); got != tt.want {
			t.Errorf("FontSize(%d) = %d, want %d", tt.length, got, tt.want)
		}
	}
}

func TestDisplayFontSize(t *testing.T) {
	if got := DisplayFontSize(3); got != 79 {
		t.Errorf("DisplayFontSize(3) = %d, want 79", got)
	}
	if got := DisplayFontSize(25); got != 18 {
		t.Errorf("DisplayFontSize(25) = %d, want 18", got)
	}
}

func TestResolutionRatio(t *testing.T) {
	if !almost(Edit.Ratio(), 500.0/759.0) {
		t.Errorf("Edit.Ratio() = %v", Edit.Ratio())
	}
	if !almost(Canonical.Ratio(), 1) {
		t.Errorf("Canonical.Ratio() = %v", Canonical.Ratio())
	}
	if !almost(Multiplier(Edit, Canonical), 759.0/500.0) {
		t.Errorf("Multiplier(Edit, Canonical) = %v", Multiplier(Edit, Canonical))
	}
}

func TestCutoutScalesFromCanonical(t *testing.T) {
	r := Edit.Ratio()
	got := Cutout.Scale(r)

	if !almost(got.X, 59.5*r) || !almost(got.Y, 234.5*r) {
		t.Errorf("scaled origin = (%v, %v)", got.X, got.Y)
	}
	if !almost(got.W, 624.5*r) || !almost(got.H, 469.5*r) {
		t.Errorf("scaled size = %vx%v", got.W, got.H)
	}
	if !almost(got.Aspect(), Cutout.Aspect()) {
		t.Errorf("aspect changed under scaling: %v vs %v", got.Aspect(), Cutout.Aspect())
	}
}

func TestCoverFit(t *testing.T) {
	target := Cutout.Scale(Edit.Ratio())

	t.Run("wider source matches height", func(t *testing.T) {
		p := CoverFit(1920, 1080, target)
		if !almost(p.Scale, target.H/1080) {
			t.Fatalf("scale = %v, want %v", p.Scale, target.H/1080)
		}
		if !almost(p.H, target.H) || p.W < target.W {
			t.Errorf("drawn %vx%v does not cover %vx%v", p.W, p.H, target.W, target.H)
		}
	})

	t.Run("taller source matches width", func(t *testing.T) {
		p := CoverFit(480, 640, target)
		if !almost(p.Scale, target.W/480) {
			t.Fatalf("scale = %v, want %v", p.Scale, target.W/480)
		}
		if !almost(p.W, target.W) || p.H < target.H {
			t.Errorf("drawn %vx%v does not cover %vx%v", p.W, p.H, target.W, target.H)
		}
	})

	t.Run("square source", func(t *testing.T) {
		// the cutout is landscape so a square is relatively taller
		p := CoverFit(800, 800, target)
		if !almost(p.Scale, target.W/800) {
			t.Fatalf("scale = %v, want %v", p.Scale, target.W/800)
		}
		if p.H < target.H {
			t.Errorf("square image letterboxed: h=%v < %v", p.H, target.H)
		}
	})

	t.Run("anchored at cutout origin", func(t *testing.T) {
		p := CoverFit(1000, 10, target)
		if p.X != target.X || p.Y != target.Y {
			t.Errorf("placement origin = (%v, %v), want (%v, %v)", p.X, p.Y, target.X, target.Y)
		}
	})

	t.Run("zero sized source does not divide by zero", func(t *testing.T) {
		p := CoverFit(0, 0, target)
		if math.IsInf(p.Scale, 0) || math.IsNaN(p.Scale) {
			t.Errorf("scale = %v", p.Scale)
		}
	})
}

func TestRectBounds(t *testing.T) {
	b := Rect{X: 1.5, Y: 2.2, W: 3, H: 4}.Bounds()
	if b.Min.X != 1 || b.Min.Y != 2 || b.Max.X != 5 || b.Max.Y != 7 {
		t.Errorf("Bounds() = %v", b)
	}
}

func TestRectBounds_ScaledRoundTrip(t *testing.T) {
	// edit-scale cutout blown back up to canonical must land on the same pixels
	back := Cutout.Scale(Edit.Ratio()).Scale(Multiplier(Edit, Canonical))
	if got, want := back.Bounds(), Cutout.Bounds(); got != want {
		t.Errorf("round-tripped bounds = %v, want %v", got, want)
	}
	if FloorPx(233.9999999999) != 234 || CeilPx(704.0000000001) != 704 {
		t.Error("float noise moved a pixel edge")
	}
}
