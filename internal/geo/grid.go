package geo

import (
	"math"
	"sort"
)

// Grid cell sizing. One degree of latitude is ~110.5 km and one degree of
// longitude ~111.3 km at the equator; dividing by the target cell size gives
// cells on the order of 500 m.
const (
	metersPerLatDegree = 110540.0
	metersPerLonDegree = 111320.0
	cellSizeMeters     = 500.0
)

type cell struct {
	x int32
	y int32
}

func cellOf(c Coordinate) cell {
	return cell{
		x: int32(math.Floor(c.Lon * metersPerLonDegree / cellSizeMeters)),
		y: int32(math.Floor(c.Lat * metersPerLatDegree / cellSizeMeters)),
	}
}

// Hit is one spatial query result. Index refers into the slice the grid was
// built from.
type Hit struct {
	Index  uint32
	Meters float64
}

// Grid is a uniform spatial index over a fixed set of coordinates. It is
// immutable after Build; queries allocate fresh result slices.
type Grid struct {
	cells  map[cell][]uint32
	coords []Coordinate
}

// BuildGrid indexes the given coordinates. The grid keeps its own copy.
func BuildGrid(coords []Coordinate) *Grid {
	g := &Grid{
		cells:  make(map[cell][]uint32, len(coords)),
		coords: append([]Coordinate(nil), coords...),
	}
	for i, c := range g.coords {
		key := cellOf(c)
		g.cells[key] = append(g.cells[key], uint32(i))
	}
	return g
}

// Near returns every indexed point within radiusM meters of p, sorted by
// distance ascending with ties broken by index.
func (g *Grid) Near(p Coordinate, radiusM float64) []Hit {
	if radiusM <= 0 {
		return nil
	}
	reach := int32(math.Ceil(radiusM / cellSizeMeters))
	return g.collect(p, radiusM, reach)
}

// Nearest returns the k closest indexed points to p, sorted by distance
// ascending. It expands the search ring until enough candidates are found,
// falling back to a full scan once the rings outgrow the indexed area.
func (g *Grid) Nearest(p Coordinate, k int) []Hit {
	if k <= 0 || len(g.coords) == 0 {
		return nil
	}
	span := gridSpan(g)
	for reach := int32(1); int(reach) <= span; reach *= 2 {
		hits := g.collect(p, float64(reach)*cellSizeMeters, reach)
		if len(hits) >= k {
			return hits[:k]
		}
	}
	hits := make([]Hit, 0, len(g.coords))
	for i, c := range g.coords {
		hits = append(hits, Hit{Index: uint32(i), Meters: Haversine(p, c)})
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// gridSpan approximates the cell-diameter of the indexed area, bounding ring
// expansion in Nearest.
func gridSpan(g *Grid) int {
	if len(g.cells) == 0 {
		return 0
	}
	var minX, maxX, minY, maxY int32
	first := true
	for c := range g.cells {
		if first {
			minX, maxX, minY, maxY = c.x, c.x, c.y, c.y
			first = false
			continue
		}
		minX = min(minX, c.x)
		maxX = max(maxX, c.x)
		minY = min(minY, c.y)
		maxY = max(maxY, c.y)
	}
	return int(max(maxX-minX, maxY-minY)) + 1
}

func (g *Grid) collect(p Coordinate, radiusM float64, reach int32) []Hit {
	origin := cellOf(p)
	var hits []Hit
	for dx := -reach; dx <= reach; dx++ {
		for dy := -reach; dy <= reach; dy++ {
			key := cell{x: origin.x + dx, y: origin.y + dy}
			for _, ix := range g.cells[key] {
				d := Haversine(p, g.coords[ix])
				if d <= radiusM {
					hits = append(hits, Hit{Index: ix, Meters: d})
				}
			}
		}
	}
	sortHits(hits)
	return hits
}

// sortHits orders by distance ascending. Millimeter resolution keeps
// equidistant stops in index order instead of leaking float noise into the
// ranking.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		di := math.Round(hits[i].Meters * 1000)
		dj := math.Round(hits[j].Meters * 1000)
		if di != dj {
			return di < dj
		}
		return hits[i].Index < hits[j].Index
	})
}
