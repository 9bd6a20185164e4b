package geo

import (
	"math"
	"testing"
)

func TestHaversineKnownDistance(t *testing.T) {
	paris := Coordinate{Lat: 48.8566, Lon: 2.3522}
	london := Coordinate{Lat: 51.5074, Lon: -0.1278}
	d := Haversine(paris, london)
	// Great-circle Paris-London is about 344 km.
	if d < 330000 || d > 360000 {
		t.Errorf("Paris-London = %.0f m, want ~344 km", d)
	}
}

func TestHaversineZero(t *testing.T) {
	p := Coordinate{Lat: 10, Lon: 20}
	if d := Haversine(p, p); d != 0 {
		t.Errorf("distance to self = %f, want 0", d)
	}
}

func TestHaversineSmall(t *testing.T) {
	a := Coordinate{Lat: 0, Lon: 0}
	b := Coordinate{Lat: 0.002, Lon: 0.002}
	d := Haversine(a, b)
	// One degree is ~111 km near the equator, so the diagonal is ~314 m.
	if math.Abs(d-314) > 5 {
		t.Errorf("got %.1f m, want ~314 m", d)
	}
}

func TestWalkSeconds(t *testing.T) {
	if got := WalkSeconds(314.5, 1.4); got != 225 {
		t.Errorf("WalkSeconds(314.5, 1.4) = %d, want 225", got)
	}
	if got := WalkSeconds(0, 1.4); got != 0 {
		t.Errorf("WalkSeconds(0) = %d, want 0", got)
	}
	// Ceiling: anything that does not divide evenly rounds up.
	if got := WalkSeconds(1, 1.4); got != 1 {
		t.Errorf("WalkSeconds(1) = %d, want 1", got)
	}
	// A bad speed falls back to the default rather than dividing by zero.
	if got := WalkSeconds(14, 0); got != 10 {
		t.Errorf("WalkSeconds(14, 0) = %d, want 10", got)
	}
}

func TestParseCoordinate(t *testing.T) {
	c, err := ParseCoordinate("48.85, 2.35")
	if err != nil {
		t.Fatalf("ParseCoordinate failed: %v", err)
	}
	if c.Lat != 48.85 || c.Lon != 2.35 {
		t.Errorf("got %v", c)
	}
	for _, in := range []string{"", "48.85", "a,b", "91,0", "0,181"} {
		if _, err := ParseCoordinate(in); err == nil {
			t.Errorf("ParseCoordinate(%q) should have failed", in)
		}
	}
}

func TestCentroid(t *testing.T) {
	c := Centroid([]Coordinate{{Lat: 0, Lon: 0}, {Lat: 2, Lon: 4}})
	if c.Lat != 1 || c.Lon != 2 {
		t.Errorf("got %v, want 1,2", c)
	}
	if got := (Centroid(nil)); got != (Coordinate{}) {
		t.Errorf("empty centroid = %v", got)
	}
}
