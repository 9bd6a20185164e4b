// Package repository holds the immutable, flattened transit model the
// routing engine scans. It is built once from a GTFS bundle and never
// mutated; concurrent queries share it freely.
package repository

import (
	"sort"

	"github.com/vincbro/blaise/internal/geo"
	"github.com/vincbro/blaise/internal/gtime"
	"github.com/vincbro/blaise/internal/search"
)

// Repository is a read-only arena of flat slices. Cross-references between
// entities are integer indices, so there are no pointer cycles and a
// snapshot can be dropped wholesale.
type Repository struct {
	Stops        []Stop
	Areas        []Area
	Routes       []Route
	RaptorRoutes []RaptorRoute
	Trips        []Trip
	StopTimes    []StopTime
	Transfers    []Transfer
	Services     []Service
	ShapePoints  []ShapePoint

	// WalkSpeedMps is the pedestrian speed the footpaths were derived
	// with; access/egress estimates reuse it so walk legs stay consistent.
	WalkSpeedMps float64

	stopByID  map[string]uint32
	areaByID  map[string]uint32
	routeByID map[string]uint32
	tripByID  map[string]uint32

	tripSpans     []span // trip_ix -> its StopTimes range
	shapeSpans    []span // shape_ix -> its ShapePoints range
	transferSpans []span // stop_ix -> its Transfers range
	routesAtStop  [][]StopRoute
	areaStops     [][]uint32
	stopHasTrips  []bool

	grid       *geo.Grid
	stopSearch *search.Index
	areaSearch *search.Index
}

// StopByID resolves a stop id, returning nil when unknown.
func (r *Repository) StopByID(id string) *Stop {
	ix, ok := r.stopByID[id]
	if !ok {
		return nil
	}
	return &r.Stops[ix]
}

// AreaByID resolves an area (parent station) id, returning nil when unknown.
func (r *Repository) AreaByID(id string) *Area {
	ix, ok := r.areaByID[id]
	if !ok {
		return nil
	}
	return &r.Areas[ix]
}

// RouteByID resolves a GTFS route id, returning nil when unknown.
func (r *Repository) RouteByID(id string) *Route {
	ix, ok := r.routeByID[id]
	if !ok {
		return nil
	}
	return &r.Routes[ix]
}

// TripByID resolves a trip id, returning nil when unknown.
func (r *Repository) TripByID(id string) *Trip {
	ix, ok := r.tripByID[id]
	if !ok {
		return nil
	}
	return &r.Trips[ix]
}

// StopTimesOf returns the ordered visits of one trip as a subslice of the
// global stop-time arena.
func (r *Repository) StopTimesOf(tripIx uint32) []StopTime {
	s := r.tripSpans[tripIx]
	return r.StopTimes[s.start : s.start+s.count]
}

// ArrivalAt returns the arrival time of a trip at a position within its
// RAPTOR route.
func (r *Repository) ArrivalAt(tripIx uint32, pos int) gtime.Time {
	return r.StopTimesOf(tripIx)[pos].Arrival
}

// DepartureAt returns the departure time of a trip at a position within its
// RAPTOR route.
func (r *Repository) DepartureAt(tripIx uint32, pos int) gtime.Time {
	return r.StopTimesOf(tripIx)[pos].Departure
}

// ShapeOf returns the polyline of a trip, or nil when the feed carried none.
func (r *Repository) ShapeOf(tripIx uint32) []ShapePoint {
	shapeIx := r.Trips[tripIx].ShapeIx
	if shapeIx < 0 {
		return nil
	}
	s := r.shapeSpans[shapeIx]
	return r.ShapePoints[s.start : s.start+s.count]
}

// RoutesAtStop returns every (RAPTOR route, first position) pair serving a
// stop. The table is exhaustive: a round that scans the stop reaches every
// route through it.
func (r *Repository) RoutesAtStop(stopIx uint32) []StopRoute {
	return r.routesAtStop[stopIx]
}

// TransfersFrom returns the outgoing walk edges of a stop, including the
// zero-second self edge.
func (r *Repository) TransfersFrom(stopIx uint32) []Transfer {
	s := r.transferSpans[stopIx]
	return r.Transfers[s.start : s.start+s.count]
}

// AreaStops returns the child stop indices of a parent station.
func (r *Repository) AreaStops(areaIx uint32) []uint32 {
	return r.areaStops[areaIx]
}

// StopHasTrips reports whether any trip calls at the stop. Endpoint
// resolution skips stops nothing ever visits.
func (r *Repository) StopHasTrips(stopIx uint32) bool {
	return r.stopHasTrips[stopIx]
}

// StopsNear returns every stop within radiusM meters of p, closest first.
// The slice is a fresh allocation owned by the caller.
func (r *Repository) StopsNear(p geo.Coordinate, radiusM float64) []geo.Hit {
	return r.grid.Near(p, radiusM)
}

// NearestStops returns the k stops closest to p.
func (r *Repository) NearestStops(p geo.Coordinate, k int) []geo.Hit {
	return r.grid.Nearest(p, k)
}

// AreasNear returns the areas with a child stop within radiusM meters of p,
// sorted by the distance of their closest child. Hit.Index is an area index.
func (r *Repository) AreasNear(p geo.Coordinate, radiusM float64) []geo.Hit {
	best := make(map[uint32]float64)
	for _, hit := range r.grid.Near(p, radiusM) {
		areaIx := r.Stops[hit.Index].AreaIx
		if areaIx < 0 {
			continue
		}
		if d, ok := best[uint32(areaIx)]; !ok || hit.Meters < d {
			best[uint32(areaIx)] = hit.Meters
		}
	}
	hits := make([]geo.Hit, 0, len(best))
	for ix, d := range best {
		hits = append(hits, geo.Hit{Index: ix, Meters: d})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Meters != hits[j].Meters {
			return hits[i].Meters < hits[j].Meters
		}
		return hits[i].Index < hits[j].Index
	})
	return hits
}

// SearchStops returns the top-k stops matching the query by name.
func (r *Repository) SearchStops(q string, k int) []*Stop {
	results := r.stopSearch.Search(q, k)
	stops := make([]*Stop, 0, len(results))
	for _, res := range results {
		stops = append(stops, &r.Stops[res.Index])
	}
	return stops
}

// SearchAreas returns the top-k areas matching the query by name.
func (r *Repository) SearchAreas(q string, k int) []*Area {
	results := r.areaSearch.Search(q, k)
	areas := make([]*Area, 0, len(results))
	for _, res := range results {
		areas = append(areas, &r.Areas[res.Index])
	}
	return areas
}
