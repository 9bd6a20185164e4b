package geo

import "testing"

func testGrid() *Grid {
	return BuildGrid([]Coordinate{
		{Lat: 0.000, Lon: 0.000}, // 0
		{Lat: 0.002, Lon: 0.002}, // 1
		{Lat: 0.010, Lon: 0.000}, // 2
		{Lat: 0.010, Lon: 0.010}, // 3
		{Lat: 1.000, Lon: 1.000}, // 4, far away
	})
}

func TestNearRadius(t *testing.T) {
	g := testGrid()
	hits := g.Near(Coordinate{Lat: 0.001, Lon: 0.001}, 500)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	// Both are ~157 m away; equidistant hits come back in index order.
	if hits[0].Index != 0 || hits[1].Index != 1 {
		t.Errorf("got order %d,%d, want 0,1", hits[0].Index, hits[1].Index)
	}
	for _, h := range hits {
		if h.Meters < 150 || h.Meters > 165 {
			t.Errorf("hit %d at %.1f m, want ~157 m", h.Index, h.Meters)
		}
	}
}

func TestNearSortedAscending(t *testing.T) {
	g := testGrid()
	hits := g.Near(Coordinate{Lat: 0, Lon: 0}, 2000)
	if len(hits) < 3 {
		t.Fatalf("got %d hits", len(hits))
	}
	if hits[0].Index != 0 || hits[0].Meters != 0 {
		t.Errorf("closest should be the origin stop itself, got %v", hits[0])
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Meters < hits[i-1].Meters {
			t.Errorf("hits not sorted at %d: %f < %f", i, hits[i].Meters, hits[i-1].Meters)
		}
	}
}

func TestNearEmpty(t *testing.T) {
	g := testGrid()
	if hits := g.Near(Coordinate{Lat: -5, Lon: -5}, 1000); len(hits) != 0 {
		t.Errorf("got %d hits, want none", len(hits))
	}
	if hits := g.Near(Coordinate{Lat: 0, Lon: 0}, 0); hits != nil {
		t.Errorf("zero radius should return nothing")
	}
}

func TestNearest(t *testing.T) {
	g := testGrid()
	hits := g.Nearest(Coordinate{Lat: 0, Lon: 0}, 3)
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	if hits[0].Index != 0 || hits[1].Index != 1 {
		t.Errorf("unexpected order: %v", hits)
	}
	// The far point is found even though it needs ring expansion.
	all := g.Nearest(Coordinate{Lat: 0, Lon: 0}, 5)
	if len(all) != 5 {
		t.Fatalf("got %d hits, want all 5", len(all))
	}
	if all[4].Index != 4 {
		t.Errorf("farthest hit should be index 4, got %v", all[4])
	}
}

func TestNearFreshAllocations(t *testing.T) {
	g := testGrid()
	a := g.Near(Coordinate{Lat: 0, Lon: 0}, 2000)
	b := g.Near(Coordinate{Lat: 0, Lon: 0}, 2000)
	if len(a) == 0 || len(b) == 0 {
		t.Fatal("expected hits")
	}
	a[0].Meters = -1
	if b[0].Meters == -1 {
		t.Error("results must not share backing storage")
	}
}
