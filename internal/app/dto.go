package app

import (
	"github.com/vincbro/blaise/internal/raptor"
	"github.com/vincbro/blaise/internal/repository"
)

// StopSummary is the wire form of a stop in search and near responses.
type StopSummary struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	AreaID    string   `json:"area_id,omitempty"`
	DistanceM *float64 `json:"distance_m,omitempty"`
}

// AreaSummary is the wire form of a parent station.
type AreaSummary struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	DistanceM *float64 `json:"distance_m,omitempty"`
}

func stopSummary(repo *repository.Repository, stop *repository.Stop, distance *float64) StopSummary {
	s := StopSummary{
		ID:        stop.ID,
		Name:      stop.Name,
		Latitude:  stop.Coordinate.Lat,
		Longitude: stop.Coordinate.Lon,
		DistanceM: distance,
	}
	if stop.AreaIx >= 0 {
		s.AreaID = repo.Areas[stop.AreaIx].ID
	}
	return s
}

func areaSummary(area *repository.Area, distance *float64) AreaSummary {
	return AreaSummary{
		ID:        area.ID,
		Name:      area.Name,
		Latitude:  area.Coordinate.Lat,
		Longitude: area.Coordinate.Lon,
		DistanceM: distance,
	}
}

// PlaceDTO is one end of a leg; StopID is empty for free coordinates.
type PlaceDTO struct {
	StopID    string  `json:"stop_id,omitempty"`
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type LegStopDTO struct {
	StopID     string  `json:"stop_id"`
	Name       string  `json:"name"`
	Arrive     string  `json:"arrive"`
	Depart     string  `json:"depart"`
	ShapeDistM float64 `json:"shape_dist_m,omitempty"`
}

type ShapePointDTO struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	DistM     float64 `json:"dist_m,omitempty"`
}

type LegDTO struct {
	Kind      string          `json:"kind"`
	From      PlaceDTO        `json:"from"`
	To        PlaceDTO        `json:"to"`
	Depart    string          `json:"depart"`
	Arrive    string          `json:"arrive"`
	DistanceM float64         `json:"distance_m,omitempty"`
	Mode      string          `json:"mode,omitempty"`
	TripID    string          `json:"trip_id,omitempty"`
	Headsign  string          `json:"headsign,omitempty"`
	ShortName string          `json:"short_name,omitempty"`
	LongName  string          `json:"long_name,omitempty"`
	Stops     []LegStopDTO    `json:"stops,omitempty"`
	Shape     []ShapePointDTO `json:"shape,omitempty"`
}

type ItineraryDTO struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Departure string   `json:"departure"`
	Arrival   string   `json:"arrival"`
	Transfers int      `json:"transfers"`
	Legs      []LegDTO `json:"legs"`
}

func placeDTO(p raptor.Place) PlaceDTO {
	return PlaceDTO{
		StopID:    p.StopID,
		Name:      p.Name,
		Latitude:  p.Coordinate.Lat,
		Longitude: p.Coordinate.Lon,
	}
}

func shapeDTO(points []repository.ShapePoint) []ShapePointDTO {
	if len(points) == 0 {
		return nil
	}
	out := make([]ShapePointDTO, len(points))
	for i, pt := range points {
		out[i] = ShapePointDTO{Latitude: pt.Coordinate.Lat, Longitude: pt.Coordinate.Lon, DistM: pt.DistM}
	}
	return out
}

func itineraryDTO(it *raptor.Itinerary) ItineraryDTO {
	dto := ItineraryDTO{
		From:      it.From.String(),
		To:        it.To.String(),
		Departure: it.Departure().String(),
		Arrival:   it.Arrival().String(),
		Transfers: it.Transfers(),
		Legs:      make([]LegDTO, 0, len(it.Legs)),
	}
	for _, leg := range it.Legs {
		l := LegDTO{
			Kind:      leg.Kind.String(),
			From:      placeDTO(leg.From),
			To:        placeDTO(leg.To),
			Depart:    leg.Depart.String(),
			Arrive:    leg.Arrive.String(),
			DistanceM: leg.DistanceM,
		}
		if leg.Kind == raptor.LegTransit {
			l.Mode = leg.Mode.String()
			l.TripID = leg.TripID
			l.Headsign = leg.Headsign
			l.ShortName = leg.ShortName
			l.LongName = leg.LongName
			l.Shape = shapeDTO(leg.Shape)
			for _, ls := range leg.Stops {
				l.Stops = append(l.Stops, LegStopDTO{
					StopID:     ls.StopID,
					Name:       ls.Name,
					Arrive:     ls.Arrive.String(),
					Depart:     ls.Depart.String(),
					ShapeDistM: ls.ShapeDistM,
				})
			}
		}
		dto.Legs = append(dto.Legs, l)
	}
	return dto
}

func floatPtr(v float64) *float64 {
	return &v
}
