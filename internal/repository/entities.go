package repository

import (
	"time"

	"github.com/vincbro/blaise/internal/geo"
	"github.com/vincbro/blaise/internal/gtime"
)

// Mode classifies the vehicle serving a route, following the GTFS route_type
// codes.
type Mode int32

const (
	Tram Mode = iota
	Subway
	Rail
	Bus
	Ferry
	CableTram
	AerialLift
	Funicular
	Trolleybus
	Monorail
	ModeUnknown
)

func (m Mode) String() string {
	switch m {
	case Tram:
		return "tram"
	case Subway:
		return "subway"
	case Rail:
		return "rail"
	case Bus:
		return "bus"
	case Ferry:
		return "ferry"
	case CableTram:
		return "cable_tram"
	case AerialLift:
		return "aerial_lift"
	case Funicular:
		return "funicular"
	case Trolleybus:
		return "trolleybus"
	case Monorail:
		return "monorail"
	default:
		return "unknown"
	}
}

// modeFromRouteType maps a raw GTFS route_type to a Mode.
func modeFromRouteType(t int32) Mode {
	switch t {
	case 0, 1, 2, 3, 4, 5, 6, 7:
		return Mode(t)
	case 11:
		return Trolleybus
	case 12:
		return Monorail
	default:
		return ModeUnknown
	}
}

// Stop is an atomic boarding location. All cross-references are integer
// indices into the repository's flat slices.
type Stop struct {
	Index      uint32
	ID         string
	Name       string
	Coordinate geo.Coordinate
	// AreaIx points at the parent station, -1 for stand-alone stops.
	AreaIx int32
}

// Area is a parent station grouping several child platform stops.
type Area struct {
	Index      uint32
	ID         string
	Name       string
	Coordinate geo.Coordinate
}

// Route is a display-level transit line as riders know it.
type Route struct {
	Index     uint32
	ID        string
	Mode      Mode
	ShortName string
	LongName  string
}

// RaptorRoute groups the trips of one GTFS route that visit the exact same
// ordered stop sequence. A GTFS route with several stopping patterns splits
// into several RaptorRoutes.
type RaptorRoute struct {
	Index   uint32
	RouteIx uint32
	// Stops is the shared ordered stop sequence.
	Stops []uint32
	// Trips is sorted by departure time at position 0. FIFO holds at every
	// position, so the earliest catchable trip is binary-searchable.
	Trips []uint32
}

// Trip is one scheduled vehicle run.
type Trip struct {
	Index         uint32
	ID            string
	RouteIx       uint32
	RaptorRouteIx uint32
	// ServiceIx and ShapeIx are -1 when the feed omits them.
	ServiceIx int32
	ShapeIx   int32
	Headsign  string
	ShortName string
}

// StopTime is one visit of a trip at a stop.
type StopTime struct {
	TripIx    uint32
	StopIx    uint32
	Arrival   gtime.Time
	Departure gtime.Time
	// ShapeDistM is the cumulative distance traveled along the trip's
	// shape, 0 when the feed omits it. Rendering only, never routing.
	ShapeDistM float64
}

// Transfer is a walk edge between two stops. The transfer table is
// symmetric: every (u, v, t) has a matching (v, u, t).
type Transfer struct {
	FromStopIx uint32
	ToStopIx   uint32
	Seconds    gtime.Duration
}

// ShapePoint is one vertex of a trip polyline, used only for response
// rendering.
type ShapePoint struct {
	Coordinate geo.Coordinate
	DistM      float64
}

// Service is a calendar entry: the weekdays a trip runs plus explicit date
// additions and removals.
type Service struct {
	Index    uint32
	ID       string
	Weekdays [7]bool
	Start    time.Time
	End      time.Time
	added    map[int32]struct{}
	removed  map[int32]struct{}
}

func dateKey(t time.Time) int32 {
	y, m, d := t.Date()
	return int32(y*10000 + int(m)*100 + d)
}

// ActiveOn reports whether the service runs on the given date. Explicit
// removals win over the weekday pattern; explicit additions win over an
// out-of-range date.
func (s *Service) ActiveOn(date time.Time) bool {
	key := dateKey(date)
	if _, ok := s.removed[key]; ok {
		return false
	}
	if _, ok := s.added[key]; ok {
		return true
	}
	if date.Before(s.Start) || date.After(s.End) {
		return false
	}
	return s.Weekdays[int(date.Weekday())]
}

// StopRoute is one entry of the routes-at-stop table: a RAPTOR route
// visiting the stop and the first position at which it does.
type StopRoute struct {
	RaptorIx uint32
	Position uint32
}

// span marks a contiguous range inside one of the repository's flat arrays.
type span struct {
	start uint32
	count uint32
}
