package raptor

import (
	"fmt"
	"strings"

	"github.com/vincbro/blaise/internal/geo"
	"github.com/vincbro/blaise/internal/gtime"
)

// LocationKind tags the Location sum type.
type LocationKind uint8

const (
	LocCoordinate LocationKind = iota
	LocStop
	LocArea
)

// Location is a query endpoint: a free coordinate, a stop id, or an area
// (parent station) id.
type Location struct {
	Kind  LocationKind
	Coord geo.Coordinate
	ID    string
}

// CoordinateLocation wraps a free geographic position.
func CoordinateLocation(c geo.Coordinate) Location {
	return Location{Kind: LocCoordinate, Coord: c}
}

// StopLocation references a stop by id.
func StopLocation(id string) Location {
	return Location{Kind: LocStop, ID: id}
}

// AreaLocation references a parent station by id.
func AreaLocation(id string) Location {
	return Location{Kind: LocArea, ID: id}
}

func (l Location) String() string {
	switch l.Kind {
	case LocCoordinate:
		return l.Coord.String()
	case LocStop:
		return "stop:" + l.ID
	default:
		return "area:" + l.ID
	}
}

// ParseLocation reads the wire form of a Location: "lat,lon",
// "stop:<id>", "area:<id>", or a bare id treated as an area.
func ParseLocation(s string) (Location, error) {
	switch {
	case strings.HasPrefix(s, "stop:"):
		id := strings.TrimPrefix(s, "stop:")
		if id == "" {
			return Location{}, fmt.Errorf("empty stop id in %q", s)
		}
		return StopLocation(id), nil
	case strings.HasPrefix(s, "area:"):
		id := strings.TrimPrefix(s, "area:")
		if id == "" {
			return Location{}, fmt.Errorf("empty area id in %q", s)
		}
		return AreaLocation(id), nil
	case strings.Contains(s, ","):
		c, err := geo.ParseCoordinate(s)
		if err != nil {
			return Location{}, err
		}
		return CoordinateLocation(c), nil
	case s != "":
		return AreaLocation(s), nil
	default:
		return Location{}, fmt.Errorf("empty location")
	}
}

// constraintKind distinguishes earliest-arrival from latest-departure
// searches.
type constraintKind uint8

const (
	departAt constraintKind = iota
	arriveBy
)

// Constraint fixes one end of the journey in time.
type Constraint struct {
	kind constraintKind
	at   gtime.Time
}

// DepartAt asks for the earliest arrival leaving no sooner than t.
func DepartAt(t gtime.Time) Constraint {
	return Constraint{kind: departAt, at: t}
}

// ArriveBy asks for the latest departure arriving no later than t.
func ArriveBy(t gtime.Time) Constraint {
	return Constraint{kind: arriveBy, at: t}
}

// Time returns the fixed instant of the constraint.
func (c Constraint) Time() gtime.Time {
	return c.at
}

// IsArriveBy reports whether the constraint fixes the arrival end.
func (c Constraint) IsArriveBy() bool {
	return c.kind == arriveBy
}

// Options tune a single query. The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	// MaxRounds caps the number of boardings, clamped to the pool's
	// allocated capacity.
	MaxRounds int
	// AllowWalk enables footpath relaxation between rounds.
	AllowWalk bool
	// MaxTransferWalkM caps the walking transfers taken between stops.
	MaxTransferWalkM float64
	// MaxAccessEgressWalkM caps the snap distance for coordinate
	// endpoints.
	MaxAccessEgressWalkM float64
	// IncludeShapes attaches trip polylines to transit legs.
	IncludeShapes bool
	// NonBlocking makes Solve fail with ErrPoolExhausted instead of
	// waiting for a free scratch slot.
	NonBlocking bool
}

// DefaultOptions returns the documented query defaults.
func DefaultOptions() Options {
	return Options{
		MaxRounds:            8,
		AllowWalk:            true,
		MaxTransferWalkM:     400,
		MaxAccessEgressWalkM: 1500,
	}
}
