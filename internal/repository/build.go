package repository

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jamespfennell/gtfs"
	"golang.org/x/sync/errgroup"

	"github.com/vincbro/blaise/internal/geo"
	"github.com/vincbro/blaise/internal/gtime"
	"github.com/vincbro/blaise/internal/search"
)

var (
	// ErrNoStops means the feed carried no stop with usable coordinates.
	ErrNoStops = errors.New("gtfs bundle contains no usable stops")
	// ErrNoTrips means no trip survived ingestion.
	ErrNoTrips = errors.New("gtfs bundle contains no usable trips")
)

// BuildOptions tune the derived tables.
type BuildOptions struct {
	// WalkSpeedMps is the pedestrian speed for derived footpaths. Zero
	// means the default 1.4 m/s.
	WalkSpeedMps float64
	// FootpathRadiusM bounds derived walking transfers. Zero means 400 m.
	FootpathRadiusM float64
}

const defaultFootpathRadiusM = 400.0

func (o BuildOptions) withDefaults() BuildOptions {
	if o.WalkSpeedMps <= 0 {
		o.WalkSpeedMps = geo.DefaultWalkSpeedMps
	}
	if o.FootpathRadiusM <= 0 {
		o.FootpathRadiusM = defaultFootpathRadiusM
	}
	return o
}

// Build flattens a parsed GTFS bundle into the read-optimized repository.
// Malformed records are logged and skipped; the build fails only when the
// core tables end up empty.
func Build(ctx context.Context, static *gtfs.Static, opts BuildOptions, logger *slog.Logger) (*Repository, error) {
	opts = opts.withDefaults()
	start := time.Now()

	r := &Repository{
		WalkSpeedMps: opts.WalkSpeedMps,
		stopByID:     make(map[string]uint32),
		areaByID:     make(map[string]uint32),
		routeByID:    make(map[string]uint32),
		tripByID:     make(map[string]uint32),
	}

	r.loadStopsAndAreas(static.Stops, logger)
	if len(r.Stops) == 0 {
		return nil, ErrNoStops
	}
	r.loadServices(static.Services)
	shapeIxByID := r.loadShapes(static.Shapes)
	r.loadRoutes(static.Routes)
	r.loadTrips(static.Trips, shapeIxByID, logger)
	if len(r.Trips) == 0 {
		return nil, ErrNoTrips
	}

	r.buildRaptorRoutes(logger)
	r.buildRoutesAtStop()

	r.grid = buildStopGrid(r.Stops)
	if err := r.buildTransfers(ctx, static.Transfers, opts, logger); err != nil {
		return nil, err
	}
	r.buildSearchIndices()

	logger.Info("repository built",
		"stops", len(r.Stops),
		"areas", len(r.Areas),
		"routes", len(r.Routes),
		"raptor_routes", len(r.RaptorRoutes),
		"trips", len(r.Trips),
		"stop_times", len(r.StopTimes),
		"transfers", len(r.Transfers),
		"duration", time.Since(start),
	)
	return r, nil
}

// loadStopsAndAreas splits the GTFS stop table into boardable stops and
// parent stations. Stops without coordinates cannot be routed to and are
// dropped.
func (r *Repository) loadStopsAndAreas(gtfsStops []gtfs.Stop, logger *slog.Logger) {
	for i := range gtfsStops {
		gs := &gtfsStops[i]
		if gs.Type != 1 {
			continue
		}
		area := Area{
			Index: uint32(len(r.Areas)),
			ID:    gs.Id,
			Name:  gs.Name,
		}
		if gs.Latitude != nil && gs.Longitude != nil {
			area.Coordinate = geo.Coordinate{Lat: *gs.Latitude, Lon: *gs.Longitude}
		}
		r.areaByID[area.ID] = area.Index
		r.Areas = append(r.Areas, area)
	}
	r.areaStops = make([][]uint32, len(r.Areas))

	for i := range gtfsStops {
		gs := &gtfsStops[i]
		if gs.Type != 0 {
			continue
		}
		if gs.Latitude == nil || gs.Longitude == nil {
			logger.Warn("dropping stop without coordinates", "stop_id", gs.Id)
			continue
		}
		stop := Stop{
			Index:      uint32(len(r.Stops)),
			ID:         gs.Id,
			Name:       gs.Name,
			Coordinate: geo.Coordinate{Lat: *gs.Latitude, Lon: *gs.Longitude},
			AreaIx:     -1,
		}
		if gs.Parent != nil {
			if areaIx, ok := r.areaByID[gs.Root().Id]; ok {
				stop.AreaIx = int32(areaIx)
				r.areaStops[areaIx] = append(r.areaStops[areaIx], stop.Index)
			} else {
				logger.Warn("stop references unknown parent station",
					"stop_id", gs.Id, "parent_id", gs.Parent.Id)
			}
		}
		r.stopByID[stop.ID] = stop.Index
		r.Stops = append(r.Stops, stop)
	}

	// Stations without a declared position take the centroid of their
	// children.
	for i := range r.Areas {
		area := &r.Areas[i]
		if area.Coordinate != (geo.Coordinate{}) || len(r.areaStops[i]) == 0 {
			continue
		}
		coords := make([]geo.Coordinate, 0, len(r.areaStops[i]))
		for _, stopIx := range r.areaStops[i] {
			coords = append(coords, r.Stops[stopIx].Coordinate)
		}
		area.Coordinate = geo.Centroid(coords)
	}
}

func (r *Repository) loadServices(gtfsServices []gtfs.Service) {
	for i := range gtfsServices {
		gs := &gtfsServices[i]
		svc := Service{
			Index: uint32(len(r.Services)),
			ID:    gs.Id,
			Start: gs.StartDate,
			End:   gs.EndDate,
		}
		svc.Weekdays[time.Sunday] = gs.Sunday
		svc.Weekdays[time.Monday] = gs.Monday
		svc.Weekdays[time.Tuesday] = gs.Tuesday
		svc.Weekdays[time.Wednesday] = gs.Wednesday
		svc.Weekdays[time.Thursday] = gs.Thursday
		svc.Weekdays[time.Friday] = gs.Friday
		svc.Weekdays[time.Saturday] = gs.Saturday
		if len(gs.AddedDates) > 0 {
			svc.added = make(map[int32]struct{}, len(gs.AddedDates))
			for _, d := range gs.AddedDates {
				svc.added[dateKey(d)] = struct{}{}
			}
		}
		if len(gs.RemovedDates) > 0 {
			svc.removed = make(map[int32]struct{}, len(gs.RemovedDates))
			for _, d := range gs.RemovedDates {
				svc.removed[dateKey(d)] = struct{}{}
			}
		}
		r.Services = append(r.Services, svc)
	}
}

func (r *Repository) loadShapes(gtfsShapes []gtfs.Shape) map[string]int32 {
	shapeIxByID := make(map[string]int32, len(gtfsShapes))
	for i := range gtfsShapes {
		gs := &gtfsShapes[i]
		sp := span{start: uint32(len(r.ShapePoints)), count: uint32(len(gs.Points))}
		for _, pt := range gs.Points {
			p := ShapePoint{
				Coordinate: geo.Coordinate{Lat: pt.Latitude, Lon: pt.Longitude},
			}
			if pt.Distance != nil {
				p.DistM = *pt.Distance
			}
			r.ShapePoints = append(r.ShapePoints, p)
		}
		shapeIxByID[gs.ID] = int32(len(r.shapeSpans))
		r.shapeSpans = append(r.shapeSpans, sp)
	}
	return shapeIxByID
}

func (r *Repository) loadRoutes(gtfsRoutes []gtfs.Route) {
	for i := range gtfsRoutes {
		gr := &gtfsRoutes[i]
		route := Route{
			Index:     uint32(len(r.Routes)),
			ID:        gr.Id,
			Mode:      modeFromRouteType(int32(gr.Type)),
			ShortName: gr.ShortName,
			LongName:  gr.LongName,
		}
		r.routeByID[route.ID] = route.Index
		r.Routes = append(r.Routes, route)
	}
}

// loadTrips ingests trips with their stop-time arenas. A trip needs a known
// route and at least two resolvable visits; anything else is dropped with a
// warning.
func (r *Repository) loadTrips(gtfsTrips []gtfs.ScheduledTrip, shapeIxByID map[string]int32, logger *slog.Logger) {
	for i := range gtfsTrips {
		gt := &gtfsTrips[i]
		if gt.Route == nil {
			logger.Warn("dropping trip without route", "trip_id", gt.ID)
			continue
		}
		routeIx, ok := r.routeByID[gt.Route.Id]
		if !ok {
			logger.Warn("dropping trip with unknown route", "trip_id", gt.ID, "route_id", gt.Route.Id)
			continue
		}

		visits := make([]gtfs.ScheduledStopTime, len(gt.StopTimes))
		copy(visits, gt.StopTimes)
		sort.SliceStable(visits, func(a, b int) bool {
			return visits[a].StopSequence < visits[b].StopSequence
		})

		sp := span{start: uint32(len(r.StopTimes))}
		tripIx := uint32(len(r.Trips))
		for _, v := range visits {
			if v.Stop == nil {
				continue
			}
			stopIx, ok := r.stopByID[v.Stop.Id]
			if !ok {
				logger.Warn("dropping stop time at unknown stop", "trip_id", gt.ID, "stop_id", v.Stop.Id)
				continue
			}
			st := StopTime{
				TripIx:    tripIx,
				StopIx:    stopIx,
				Arrival:   gtime.FromSeconds(int(v.ArrivalTime / time.Second)),
				Departure: gtime.FromSeconds(int(v.DepartureTime / time.Second)),
			}
			if v.ShapeDistanceTraveled != nil {
				st.ShapeDistM = *v.ShapeDistanceTraveled
			}
			r.StopTimes = append(r.StopTimes, st)
			sp.count++
		}
		if sp.count < 2 {
			logger.Warn("dropping trip with fewer than two usable stop times", "trip_id", gt.ID)
			r.StopTimes = r.StopTimes[:sp.start]
			continue
		}

		trip := Trip{
			Index:     tripIx,
			ID:        gt.ID,
			RouteIx:   routeIx,
			ServiceIx: -1,
			ShapeIx:   -1,
			Headsign:  gt.Headsign,
			ShortName: gt.ShortName,
		}
		if gt.Service != nil {
			for si := range r.Services {
				if r.Services[si].ID == gt.Service.Id {
					trip.ServiceIx = int32(si)
					break
				}
			}
		}
		if gt.Shape != nil {
			if shapeIx, ok := shapeIxByID[gt.Shape.ID]; ok {
				trip.ShapeIx = shapeIx
			}
		}
		r.tripByID[trip.ID] = trip.Index
		r.Trips = append(r.Trips, trip)
		r.tripSpans = append(r.tripSpans, sp)
	}
}

// buildRaptorRoutes buckets the trips of each GTFS route by their exact stop
// sequence and orders every bucket by departure at the first stop. Trips
// that would overtake an earlier trip of the same bucket break the FIFO
// property RAPTOR's binary search needs; they are dropped with a warning.
func (r *Repository) buildRaptorRoutes(logger *slog.Logger) {
	type bucket struct {
		routeIx uint32
		stops   []uint32
		trips   []uint32
	}
	buckets := make(map[string]*bucket)
	order := make([]string, 0)

	for tripIx := range r.Trips {
		trip := &r.Trips[tripIx]
		visits := r.StopTimesOf(uint32(tripIx))
		var key strings.Builder
		key.WriteString(strconv.FormatUint(uint64(trip.RouteIx), 10))
		stops := make([]uint32, len(visits))
		for i, v := range visits {
			stops[i] = v.StopIx
			key.WriteByte(':')
			key.WriteString(strconv.FormatUint(uint64(v.StopIx), 10))
		}
		k := key.String()
		b, ok := buckets[k]
		if !ok {
			b = &bucket{routeIx: trip.RouteIx, stops: stops}
			buckets[k] = b
			order = append(order, k)
		}
		b.trips = append(b.trips, uint32(tripIx))
	}
	sort.Strings(order)

	for _, k := range order {
		b := buckets[k]
		sort.SliceStable(b.trips, func(i, j int) bool {
			return r.DepartureAt(b.trips[i], 0) < r.DepartureAt(b.trips[j], 0)
		})

		kept := b.trips[:0]
		for _, tripIx := range b.trips {
			if len(kept) > 0 && overtakes(r, kept[len(kept)-1], tripIx) {
				logger.Warn("dropping trip that overtakes an earlier trip on the same stop pattern",
					"trip_id", r.Trips[tripIx].ID)
				continue
			}
			kept = append(kept, tripIx)
		}
		if len(kept) == 0 {
			continue
		}

		raptorIx := uint32(len(r.RaptorRoutes))
		for _, tripIx := range kept {
			r.Trips[tripIx].RaptorRouteIx = raptorIx
		}
		r.RaptorRoutes = append(r.RaptorRoutes, RaptorRoute{
			Index:   raptorIx,
			RouteIx: b.routeIx,
			Stops:   b.stops,
			Trips:   append([]uint32(nil), kept...),
		})
	}
}

// overtakes reports whether the later trip reaches any position before the
// earlier one does.
func overtakes(r *Repository, earlier, later uint32) bool {
	a := r.StopTimesOf(earlier)
	b := r.StopTimesOf(later)
	for i := range a {
		if b[i].Arrival < a[i].Arrival || b[i].Departure < a[i].Departure {
			return true
		}
	}
	return false
}

func (r *Repository) buildRoutesAtStop() {
	r.routesAtStop = make([][]StopRoute, len(r.Stops))
	r.stopHasTrips = make([]bool, len(r.Stops))
	for _, rr := range r.RaptorRoutes {
		for pos, stopIx := range rr.Stops {
			r.stopHasTrips[stopIx] = true
			list := r.routesAtStop[stopIx]
			// A looping route visits a stop twice; keep the earliest
			// position, which is appended first.
			already := false
			for _, sr := range list {
				if sr.RaptorIx == rr.Index {
					already = true
					break
				}
			}
			if !already {
				r.routesAtStop[stopIx] = append(list, StopRoute{RaptorIx: rr.Index, Position: uint32(pos)})
			}
		}
	}
}

func buildStopGrid(stops []Stop) *geo.Grid {
	coords := make([]geo.Coordinate, len(stops))
	for i, s := range stops {
		coords[i] = s.Coordinate
	}
	return geo.BuildGrid(coords)
}

// buildTransfers unions declared GTFS transfers with footpaths derived from
// the spatial index, keeps the minimum duration per pair, and enforces
// symmetry. Every stop carries a zero-second self edge.
func (r *Repository) buildTransfers(ctx context.Context, declared []gtfs.Transfer, opts BuildOptions, logger *slog.Logger) error {
	pairKey := func(u, v uint32) uint64 { return uint64(u)<<32 | uint64(v) }

	derived := make([][]Transfer, len(r.Stops))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	var mu sync.Mutex
	for stopIx := range r.Stops {
		stopIx := stopIx
		g.Go(func() error {
			from := &r.Stops[stopIx]
			var edges []Transfer
			for _, hit := range r.grid.Near(from.Coordinate, opts.FootpathRadiusM) {
				secs := gtime.Duration(geo.WalkSeconds(hit.Meters, opts.WalkSpeedMps))
				edges = append(edges, Transfer{
					FromStopIx: from.Index,
					ToStopIx:   hit.Index,
					Seconds:    secs,
				})
			}
			mu.Lock()
			derived[stopIx] = edges
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	best := make(map[uint64]gtime.Duration)
	record := func(u, v uint32, secs gtime.Duration) {
		k := pairKey(u, v)
		if cur, ok := best[k]; !ok || secs < cur {
			best[k] = secs
		}
	}
	for _, edges := range derived {
		for _, t := range edges {
			record(t.FromStopIx, t.ToStopIx, t.Seconds)
		}
	}
	for i := range declared {
		d := &declared[i]
		if d.From == nil || d.To == nil {
			continue
		}
		fromIx, okFrom := r.stopByID[d.From.Id]
		toIx, okTo := r.stopByID[d.To.Id]
		if !okFrom || !okTo {
			logger.Warn("dropping transfer with unknown endpoint",
				"from", d.From.Id, "to", d.To.Id)
			continue
		}
		secs := gtime.Duration(geo.WalkSeconds(
			geo.Haversine(r.Stops[fromIx].Coordinate, r.Stops[toIx].Coordinate), opts.WalkSpeedMps))
		if d.MinTransferTime != nil {
			secs = gtime.Duration(*d.MinTransferTime)
		}
		record(fromIx, toIx, secs)
	}

	// Symmetry: mirror every edge at the same duration.
	for k, secs := range best {
		u := uint32(k >> 32)
		v := uint32(k)
		record(v, u, secs)
	}

	perStop := make([][]Transfer, len(r.Stops))
	for k, secs := range best {
		u := uint32(k >> 32)
		v := uint32(k)
		perStop[u] = append(perStop[u], Transfer{FromStopIx: u, ToStopIx: v, Seconds: secs})
	}
	r.Transfers = r.Transfers[:0]
	r.transferSpans = make([]span, len(r.Stops))
	for stopIx, edges := range perStop {
		sort.Slice(edges, func(i, j int) bool { return edges[i].ToStopIx < edges[j].ToStopIx })
		r.transferSpans[stopIx] = span{start: uint32(len(r.Transfers)), count: uint32(len(edges))}
		r.Transfers = append(r.Transfers, edges...)
	}
	return nil
}

func (r *Repository) buildSearchIndices() {
	stopEntries := make([]search.Entry, len(r.Stops))
	for i, s := range r.Stops {
		stopEntries[i] = search.Entry{ID: s.ID, Name: s.Name}
	}
	r.stopSearch = search.Build(stopEntries)

	areaEntries := make([]search.Entry, len(r.Areas))
	for i, a := range r.Areas {
		areaEntries[i] = search.Entry{ID: a.ID, Name: a.Name}
	}
	r.areaSearch = search.Build(areaEntries)
}
