package raptor

import (
	"github.com/vincbro/blaise/internal/geo"
	"github.com/vincbro/blaise/internal/gtime"
	"github.com/vincbro/blaise/internal/repository"
)

// LegKind distinguishes walking from riding.
type LegKind uint8

const (
	LegWalk LegKind = iota
	LegTransit
)

func (k LegKind) String() string {
	if k == LegTransit {
		return "transit"
	}
	return "walk"
}

// Place is one end of a leg. StopID is empty for free coordinates.
type Place struct {
	StopID     string
	Name       string
	Coordinate geo.Coordinate
}

// LegStop is one intermediate visit of a transit leg.
type LegStop struct {
	StopID     string
	Name       string
	Arrive     gtime.Time
	Depart     gtime.Time
	ShapeDistM float64
}

// Leg is one segment of an itinerary. Only adjacent legs share times; the
// last leg's Arrive is the itinerary's arrival.
type Leg struct {
	Kind   LegKind
	From   Place
	To     Place
	Depart gtime.Time
	Arrive gtime.Time

	// Walk legs only.
	DistanceM float64

	// Transit legs only.
	Mode      repository.Mode
	TripID    string
	Headsign  string
	ShortName string
	LongName  string
	Stops     []LegStop
	Shape     []repository.ShapePoint
}

// Itinerary is the query result: an ordered sequence of walk and transit
// legs from source to target.
type Itinerary struct {
	From Location
	To   Location
	Legs []Leg
}

// Departure returns the itinerary's start time.
func (it *Itinerary) Departure() gtime.Time {
	if len(it.Legs) == 0 {
		return gtime.None
	}
	return it.Legs[0].Depart
}

// Arrival returns the itinerary's end time.
func (it *Itinerary) Arrival() gtime.Time {
	if len(it.Legs) == 0 {
		return gtime.None
	}
	return it.Legs[len(it.Legs)-1].Arrive
}

// Transfers counts the boardings beyond the first.
func (it *Itinerary) Transfers() int {
	transit := 0
	for _, leg := range it.Legs {
		if leg.Kind == LegTransit {
			transit++
		}
	}
	if transit == 0 {
		return 0
	}
	return transit - 1
}

// pathStep is one boarding-table entry resolved to travel-direction stop
// endpoints during backtracking.
type pathStep struct {
	fromStop uint32
	toStop   uint32
	lbl      label
}

// backtrackForward walks the boarding table from the chosen target stop back
// to a seed. Transit labels step down one round; walk labels stay, since
// footpaths do not consume a boarding. Round rows copy forward, so a stop's
// label lives at the round it last improved — rows above it are empty and
// are skipped downward. A seed is a stop with no label in any round.
func backtrackForward(s *scratch, target uint32, round int) []pathStep {
	var steps []pathStep
	cur := target
	r := round
	for {
		lbl := s.boarding[r][cur]
		if lbl.kind == labelNone {
			if r == 0 {
				break
			}
			r--
			continue
		}
		steps = append(steps, pathStep{fromStop: lbl.otherStopIx, toStop: cur, lbl: lbl})
		cur = lbl.otherStopIx
		if lbl.kind == labelTransit {
			if r == 0 {
				break
			}
			r--
		}
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

// backtrackReverse starts at the chosen source stop; reverse labels already
// point in travel direction, so the steps come out in order.
func backtrackReverse(s *scratch, source uint32, round int) []pathStep {
	var steps []pathStep
	cur := source
	r := round
	for {
		lbl := s.boarding[r][cur]
		if lbl.kind == labelNone {
			if r == 0 {
				break
			}
			r--
			continue
		}
		steps = append(steps, pathStep{fromStop: cur, toStop: lbl.otherStopIx, lbl: lbl})
		cur = lbl.otherStopIx
		if lbl.kind == labelTransit {
			if r == 0 {
				break
			}
			r--
		}
	}
	return steps
}

func (rt *Router) stopPlace(stopIx uint32) Place {
	stop := &rt.repo.Stops[stopIx]
	return Place{StopID: stop.ID, Name: stop.Name, Coordinate: stop.Coordinate}
}

func coordPlace(c geo.Coordinate) Place {
	return Place{Coordinate: c}
}

func (rt *Router) walkLeg(from, to Place, depart, arrive gtime.Time, meters float64) Leg {
	return Leg{
		Kind:      LegWalk,
		From:      from,
		To:        to,
		Depart:    depart,
		Arrive:    arrive,
		DistanceM: meters,
	}
}

// stepsToLegs renders the backtracked path. Each transit label already spans
// one full boarded segment, so a leg maps one-to-one; walk labels carry
// their own times and get a measured distance for the response.
func (rt *Router) stepsToLegs(steps []pathStep, opts Options) []Leg {
	repo := rt.repo
	legs := make([]Leg, 0, len(steps))
	for _, step := range steps {
		if step.lbl.kind == labelWalk {
			meters := geo.Haversine(
				repo.Stops[step.fromStop].Coordinate,
				repo.Stops[step.toStop].Coordinate,
			)
			legs = append(legs, rt.walkLeg(
				rt.stopPlace(step.fromStop), rt.stopPlace(step.toStop),
				step.lbl.depart, step.lbl.arrive, meters,
			))
			continue
		}

		trip := &repo.Trips[step.lbl.tripIx]
		route := &repo.Routes[trip.RouteIx]
		lo, hi := step.lbl.otherPos, step.lbl.selfPos
		if lo > hi {
			lo, hi = hi, lo
		}
		visits := repo.StopTimesOf(trip.Index)
		var between []LegStop
		for pos := lo + 1; pos < hi; pos++ {
			v := visits[pos]
			stop := &repo.Stops[v.StopIx]
			between = append(between, LegStop{
				StopID:     stop.ID,
				Name:       stop.Name,
				Arrive:     v.Arrival,
				Depart:     v.Departure,
				ShapeDistM: v.ShapeDistM,
			})
		}
		leg := Leg{
			Kind:      LegTransit,
			From:      rt.stopPlace(step.fromStop),
			To:        rt.stopPlace(step.toStop),
			Depart:    step.lbl.depart,
			Arrive:    step.lbl.arrive,
			Mode:      route.Mode,
			TripID:    trip.ID,
			Headsign:  trip.Headsign,
			ShortName: route.ShortName,
			LongName:  route.LongName,
			Stops:     between,
		}
		if opts.IncludeShapes {
			leg.Shape = repo.ShapeOf(trip.Index)
		}
		legs = append(legs, leg)
	}
	return legs
}
