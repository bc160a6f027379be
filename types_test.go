package railflux

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGridToPixel(t *testing.T) {
	// rows go down (Y), columns go across (X)
	got := GridToPixel(60, 50, 4)
	expected := Point{X: 200, Y: 240}
	if !cmp.Equal(got, expected) {
		t.Fatalf("GridToPixel diff: %s", cmp.Diff(expected, got))
	}
	if got := GridToPixel(0, 10, 1); got.Y != 0 || got.X != 10 {
		t.Fatalf("col must map to X: got %s", got)
	}
	if got := GridToPixel(10, 0, 1); got.X != 0 || got.Y != 10 {
		t.Fatalf("row must map to Y: got %s", got)
	}
}

func TestParseSegmentRef(t *testing.T) {
	ref, err := ParseSegmentRef("T1/S4")
	if err != nil {
		t.Fatal(err)
	}
	if ref != (SegmentRef{"T1", "S4"}) {
		t.Fatalf("got %#v", ref)
	}
	if ref.String() != "T1/S4" {
		t.Fatalf("String: got %s", ref)
	}
	for _, s := range []string{"", "T1", "T1/", "/S1", "T1/S1/x"} {
		if _, err := ParseSegmentRef(s); err == nil {
			t.Errorf("%q: expected error", s)
		}
	}
}

func TestDist(t *testing.T) {
	if d := (Point{0, 0}).Dist(Point{3, 4}); d != 5 {
		t.Fatalf("expected 5, got %g", d)
	}
}

func TestReversed(t *testing.T) {
	pts := []Point{{X: 1}, {X: 2}, {X: 3}}
	got := Reversed(pts)
	expected := []Point{{X: 3}, {X: 2}, {X: 1}}
	if !cmp.Equal(got, expected) {
		t.Fatalf("Reversed diff: %s", cmp.Diff(expected, got))
	}
	if pts[0].X != 1 {
		t.Fatalf("Reversed must not modify its input")
	}
	if got := Reversed(nil); len(got) != 0 {
		t.Fatalf("Reversed(nil): %v", got)
	}
}
