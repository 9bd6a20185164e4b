// Package raptor implements round-based public transit routing over the
// flattened repository. Round k of the search holds every stop reachable
// with at most k boardings; footpath relaxation between rounds keeps walking
// transfers a free move.
package raptor

import (
	"context"
	"sort"

	"github.com/vincbro/blaise/internal/geo"
	"github.com/vincbro/blaise/internal/gtime"
	"github.com/vincbro/blaise/internal/repository"
)

// Router answers journey queries against one repository snapshot. It owns a
// fixed pool of scratch buffers sized for that snapshot; the hot path never
// allocates.
type Router struct {
	repo *repository.Repository
	pool *Pool
}

// NewRouter builds a router with allocatorCount concurrently usable scratch
// slots.
func NewRouter(repo *repository.Repository, allocatorCount int) *Router {
	return &Router{
		repo: repo,
		pool: NewPool(allocatorCount, len(repo.Stops), len(repo.RaptorRoutes)),
	}
}

// endpoint is one resolved candidate stop with its access or egress walk.
type endpoint struct {
	stopIx   uint32
	walkSecs gtime.Duration
	meters   float64
}

// Solve runs the search and reconstructs the best itinerary: minimum
// arrival (or maximum departure for ArriveBy), then fewest boardings.
// The context deadline is honored between rounds and between route scans.
func (rt *Router) Solve(ctx context.Context, from, to Location, constraint Constraint, opts Options) (*Itinerary, error) {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultOptions().MaxRounds
	}
	if opts.MaxRounds > MaxRounds {
		opts.MaxRounds = MaxRounds
	}

	sources, err := rt.resolve(from, "from", opts)
	if err != nil {
		return nil, err
	}
	targets, err := rt.resolve(to, "to", opts)
	if err != nil {
		return nil, err
	}

	var s *scratch
	if opts.NonBlocking {
		s, err = rt.pool.tryAcquire()
	} else {
		s, err = rt.pool.acquire(ctx)
	}
	if err != nil {
		return nil, err
	}
	// The slot goes back even if a scan panics; shared state stays clean.
	defer rt.pool.release(s)

	if constraint.IsArriveBy() {
		return rt.solveReverse(ctx, s, sources, targets, from, to, constraint.Time(), opts)
	}
	return rt.solveForward(ctx, s, sources, targets, from, to, constraint.Time(), opts)
}

// resolve maps a Location to candidate stops with walk times, per the
// access/egress rules: coordinates snap to every boardable stop in range,
// stop ids are singletons, areas expand to their children. The slice keeps
// the spatial index's nearest-first order for coordinates and the area's
// child order for areas, so ties between candidate stops always break the
// same way.
func (rt *Router) resolve(loc Location, end string, opts Options) ([]endpoint, error) {
	var eps []endpoint
	seen := make(map[uint32]struct{})
	keep := func(ep endpoint) {
		if _, dup := seen[ep.stopIx]; dup {
			return
		}
		seen[ep.stopIx] = struct{}{}
		eps = append(eps, ep)
	}
	switch loc.Kind {
	case LocCoordinate:
		for _, hit := range rt.repo.StopsNear(loc.Coord, opts.MaxAccessEgressWalkM) {
			if !rt.repo.StopHasTrips(hit.Index) {
				continue
			}
			keep(endpoint{
				stopIx:   hit.Index,
				walkSecs: gtime.Duration(geo.WalkSeconds(hit.Meters, rt.repo.WalkSpeedMps)),
				meters:   hit.Meters,
			})
		}
	case LocStop:
		stop := rt.repo.StopByID(loc.ID)
		if stop == nil {
			return nil, &EndpointError{End: end, Location: loc}
		}
		keep(endpoint{stopIx: stop.Index})
	case LocArea:
		area := rt.repo.AreaByID(loc.ID)
		if area == nil {
			return nil, &EndpointError{End: end, Location: loc}
		}
		for _, stopIx := range rt.repo.AreaStops(area.Index) {
			keep(endpoint{stopIx: stopIx})
		}
	}
	if len(eps) == 0 {
		return nil, &EndpointError{End: end, Location: loc}
	}
	return eps, nil
}

func (rt *Router) transferCapSecs(opts Options) gtime.Duration {
	return gtime.Duration(geo.WalkSeconds(opts.MaxTransferWalkM, rt.repo.WalkSpeedMps))
}

func (rt *Router) solveForward(ctx context.Context, s *scratch, sources, targets []endpoint, from, to Location, departAt gtime.Time, opts Options) (*Itinerary, error) {
	s.reset(gtime.None)
	capSecs := rt.transferCapSecs(opts)

	for _, src := range sources {
		t0 := departAt.Add(src.walkSecs)
		if t0 < s.best[src.stopIx] {
			s.best[src.stopIx] = t0
			s.roundArrival[0][src.stopIx] = t0
			s.mark(src.stopIx)
		}
	}

	globalBest := gtime.None
	bestStop := uint32(0)
	bestRound := -1
	// Candidates are iterated in resolve order, so exact arrival ties always
	// settle on the same stop.
	improveTarget := func(round int) {
		for _, t := range targets {
			if s.best[t.stopIx] == gtime.None {
				continue
			}
			cand := s.best[t.stopIx].Add(t.walkSecs)
			if cand < globalBest {
				globalBest = cand
				bestStop = t.stopIx
				bestRound = round
			}
		}
	}

	// Footpaths from the seeds: an origin stop may need a walk before the
	// first boarding.
	if opts.AllowWalk {
		rt.relaxForward(s, 0, capSecs, globalBest)
	}
	improveTarget(0)

	for round := 1; round <= opts.MaxRounds; round++ {
		if ctx.Err() != nil {
			return nil, ErrTimeout
		}
		if len(s.markedList) == 0 {
			break
		}
		copy(s.roundArrival[round], s.roundArrival[round-1])

		rt.buildQueue(s, false)
		for _, routeIx := range s.queueList {
			if ctx.Err() != nil {
				return nil, ErrTimeout
			}
			rt.scanRouteForward(s, round, routeIx, globalBest)
		}
		rt.resetQueue(s)

		if opts.AllowWalk {
			rt.relaxForward(s, round, capSecs, globalBest)
		}
		improveTarget(round)
	}

	if bestRound < 0 {
		return nil, ErrNoRoute
	}
	steps := backtrackForward(s, bestStop, bestRound)
	legs := rt.stepsToLegs(steps, opts)

	firstStop := bestStop
	if len(steps) > 0 {
		firstStop = steps[0].fromStop
	}
	if from.Kind == LocCoordinate {
		acc := endpointFor(sources, firstStop)
		legs = append([]Leg{rt.walkLeg(
			coordPlace(from.Coord), rt.stopPlace(firstStop),
			departAt, departAt.Add(acc.walkSecs), acc.meters,
		)}, legs...)
	}
	if to.Kind == LocCoordinate {
		egr := endpointFor(targets, bestStop)
		arr := s.best[bestStop]
		legs = append(legs, rt.walkLeg(
			rt.stopPlace(bestStop), coordPlace(to.Coord),
			arr, arr.Add(egr.walkSecs), egr.meters,
		))
	}
	return &Itinerary{From: from, To: to, Legs: legs}, nil
}

func (rt *Router) solveReverse(ctx context.Context, s *scratch, sources, targets []endpoint, from, to Location, arriveBy gtime.Time, opts Options) (*Itinerary, error) {
	s.reset(gtime.NegInf)
	capSecs := rt.transferCapSecs(opts)

	for _, t := range targets {
		deadline := arriveBy.Sub(t.walkSecs)
		if deadline > s.best[t.stopIx] {
			s.best[t.stopIx] = deadline
			s.roundArrival[0][t.stopIx] = deadline
			s.mark(t.stopIx)
		}
	}

	globalBest := gtime.NegInf
	bestStop := uint32(0)
	bestRound := -1
	// Iterating in resolve order keeps exact departure ties deterministic,
	// mirroring the forward direction.
	improveSource := func(round int) {
		for _, src := range sources {
			if s.best[src.stopIx] == gtime.NegInf {
				continue
			}
			cand := s.best[src.stopIx].Sub(src.walkSecs)
			if cand > globalBest {
				globalBest = cand
				bestStop = src.stopIx
				bestRound = round
			}
		}
	}

	if opts.AllowWalk {
		rt.relaxReverse(s, 0, capSecs, globalBest)
	}
	improveSource(0)

	for round := 1; round <= opts.MaxRounds; round++ {
		if ctx.Err() != nil {
			return nil, ErrTimeout
		}
		if len(s.markedList) == 0 {
			break
		}
		copy(s.roundArrival[round], s.roundArrival[round-1])

		rt.buildQueue(s, true)
		for _, routeIx := range s.queueList {
			if ctx.Err() != nil {
				return nil, ErrTimeout
			}
			rt.scanRouteReverse(s, round, routeIx, globalBest)
		}
		rt.resetQueue(s)

		if opts.AllowWalk {
			rt.relaxReverse(s, round, capSecs, globalBest)
		}
		improveSource(round)
	}

	if bestRound < 0 {
		return nil, ErrNoRoute
	}
	steps := backtrackReverse(s, bestStop, bestRound)
	legs := rt.stepsToLegs(steps, opts)

	lastStop := bestStop
	if len(steps) > 0 {
		lastStop = steps[len(steps)-1].toStop
	}
	if from.Kind == LocCoordinate {
		acc := endpointFor(sources, bestStop)
		legs = append([]Leg{rt.walkLeg(
			coordPlace(from.Coord), rt.stopPlace(bestStop),
			globalBest, globalBest.Add(acc.walkSecs), acc.meters,
		)}, legs...)
	}
	if to.Kind == LocCoordinate {
		egr := endpointFor(targets, lastStop)
		// Walk off as soon as the journey reaches the stop, not at the
		// seeded deadline.
		dep := arriveBy.Sub(egr.walkSecs)
		if len(legs) > 0 {
			dep = legs[len(legs)-1].Arrive
		}
		legs = append(legs, rt.walkLeg(
			rt.stopPlace(lastStop), coordPlace(to.Coord),
			dep, dep.Add(egr.walkSecs), egr.meters,
		))
	}
	return &Itinerary{From: from, To: to, Legs: legs}, nil
}

// buildQueue turns the previous round's marks into the set of routes to
// scan. Forward scans start at the earliest marked position of a route,
// reverse scans at the latest.
func (rt *Router) buildQueue(s *scratch, reverse bool) {
	for _, stopIx := range s.markedList {
		for _, sr := range rt.repo.RoutesAtStop(stopIx) {
			cur := s.queuePos[sr.RaptorIx]
			if cur == noPosition {
				s.queuePos[sr.RaptorIx] = sr.Position
				s.queueList = append(s.queueList, sr.RaptorIx)
				continue
			}
			if (!reverse && sr.Position < cur) || (reverse && sr.Position > cur) {
				s.queuePos[sr.RaptorIx] = sr.Position
			}
		}
	}
	s.clearMarks()
}

func (rt *Router) resetQueue(s *scratch) {
	for _, routeIx := range s.queueList {
		s.queuePos[routeIx] = noPosition
	}
	s.queueList = s.queueList[:0]
}

func (rt *Router) scanRouteForward(s *scratch, round int, routeIx uint32, globalBest gtime.Time) {
	repo := rt.repo
	route := &repo.RaptorRoutes[routeIx]
	startPos := int(s.queuePos[routeIx])

	tripIx := uint32(0)
	onTrip := false
	boardStop := uint32(0)
	boardPos := 0

	for i := startPos; i < len(route.Stops); i++ {
		p := route.Stops[i]

		if onTrip {
			arr := repo.ArrivalAt(tripIx, i)
			bound := s.best[p]
			if globalBest < bound {
				bound = globalBest
			}
			if arr < bound {
				s.roundArrival[round][p] = arr
				s.best[p] = arr
				s.boarding[round][p] = label{
					kind:        labelTransit,
					tripIx:      tripIx,
					otherStopIx: boardStop,
					otherPos:    uint32(boardPos),
					selfPos:     uint32(i),
					depart:      repo.DepartureAt(tripIx, boardPos),
					arrive:      arr,
				}
				s.mark(p)
			}
		}

		// Hop to an earlier catchable trip when the previous round
		// reached this stop before the current trip departs it.
		prev := s.roundArrival[round-1][p]
		if prev == gtime.None {
			continue
		}
		if !onTrip || prev <= repo.DepartureAt(tripIx, i) {
			if cand, ok := earliestTrip(repo, route, i, prev); ok {
				if !onTrip || cand != tripIx {
					tripIx = cand
					onTrip = true
					boardStop = p
					boardPos = i
				}
			}
		}
	}
}

// scanRouteReverse walks the route backwards maximizing departure times: the
// label of a stop is the latest time one can leave it and still make the
// deadline. globalBest prunes the same way the forward scan does, mirrored:
// a departure no later than the best known answer cannot improve it.
func (rt *Router) scanRouteReverse(s *scratch, round int, routeIx uint32, globalBest gtime.Time) {
	repo := rt.repo
	route := &repo.RaptorRoutes[routeIx]
	startPos := int(s.queuePos[routeIx])

	tripIx := uint32(0)
	onTrip := false
	alightStop := uint32(0)
	alightPos := 0

	for i := startPos; i >= 0; i-- {
		p := route.Stops[i]

		if onTrip {
			dep := repo.DepartureAt(tripIx, i)
			bound := s.best[p]
			if globalBest > bound {
				bound = globalBest
			}
			if dep > bound {
				s.roundArrival[round][p] = dep
				s.best[p] = dep
				s.boarding[round][p] = label{
					kind:        labelTransit,
					tripIx:      tripIx,
					otherStopIx: alightStop,
					otherPos:    uint32(alightPos),
					selfPos:     uint32(i),
					depart:      dep,
					arrive:      repo.ArrivalAt(tripIx, alightPos),
				}
				s.mark(p)
			}
		}

		prev := s.roundArrival[round-1][p]
		if prev == gtime.NegInf {
			continue
		}
		if !onTrip || prev >= repo.ArrivalAt(tripIx, i) {
			if cand, ok := latestTrip(repo, route, i, prev); ok {
				if !onTrip || cand != tripIx {
					tripIx = cand
					onTrip = true
					alightStop = p
					alightPos = i
				}
			}
		}
	}
}

// relaxForward spreads the stops marked by the last scan across their
// footpaths. Walking does not consume a round.
func (rt *Router) relaxForward(s *scratch, round int, capSecs gtime.Duration, globalBest gtime.Time) {
	repo := rt.repo
	snapshot := len(s.markedList)
	for n := 0; n < snapshot; n++ {
		p := s.markedList[n]
		depart := s.roundArrival[round][p]
		if depart == gtime.None {
			continue
		}
		for _, tr := range repo.TransfersFrom(p) {
			q := tr.ToStopIx
			if q == p || tr.Seconds > capSecs {
				continue
			}
			cand := depart.Add(tr.Seconds)
			if cand >= s.best[q] || cand >= globalBest {
				continue
			}
			s.roundArrival[round][q] = cand
			s.best[q] = cand
			s.boarding[round][q] = label{
				kind:        labelWalk,
				otherStopIx: p,
				depart:      depart,
				arrive:      cand,
			}
			s.mark(q)
		}
	}
}

func (rt *Router) relaxReverse(s *scratch, round int, capSecs gtime.Duration, globalBest gtime.Time) {
	repo := rt.repo
	snapshot := len(s.markedList)
	for n := 0; n < snapshot; n++ {
		p := s.markedList[n]
		arrive := s.roundArrival[round][p]
		if arrive == gtime.NegInf {
			continue
		}
		for _, tr := range repo.TransfersFrom(p) {
			q := tr.ToStopIx
			if q == p || tr.Seconds > capSecs {
				continue
			}
			cand := arrive.Sub(tr.Seconds)
			if cand <= s.best[q] || cand <= globalBest {
				continue
			}
			s.roundArrival[round][q] = cand
			s.best[q] = cand
			s.boarding[round][q] = label{
				kind:        labelWalk,
				otherStopIx: p,
				depart:      cand,
				arrive:      arrive,
			}
			s.mark(q)
		}
	}
}

// earliestTrip binary-searches the route's FIFO-ordered trips for the first
// one departing position pos at or after t.
func earliestTrip(repo *repository.Repository, route *repository.RaptorRoute, pos int, t gtime.Time) (uint32, bool) {
	trips := route.Trips
	k := sort.Search(len(trips), func(j int) bool {
		return repo.DepartureAt(trips[j], pos) >= t
	})
	if k == len(trips) {
		return 0, false
	}
	return trips[k], true
}

// endpointFor finds the candidate entry for a stop. Candidates are deduped
// on build, so the first match is the only one.
func endpointFor(eps []endpoint, stopIx uint32) endpoint {
	for _, ep := range eps {
		if ep.stopIx == stopIx {
			return ep
		}
	}
	return endpoint{stopIx: stopIx}
}

// latestTrip is the reverse counterpart: the last trip arriving at position
// pos no later than t.
func latestTrip(repo *repository.Repository, route *repository.RaptorRoute, pos int, t gtime.Time) (uint32, bool) {
	trips := route.Trips
	k := sort.Search(len(trips), func(j int) bool {
		return repo.ArrivalAt(trips[j], pos) > t
	})
	if k == 0 {
		return 0, false
	}
	return trips[k-1], true
}
