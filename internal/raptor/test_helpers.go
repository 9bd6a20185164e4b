package raptor

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jamespfennell/gtfs"

	"github.com/vincbro/blaise/internal/repository"
)

func fptr(f float64) *float64 { return &f }

func hms(h, m, s int) time.Duration {
	return time.Duration(h*3600+m*60+s) * time.Second
}

// testRepository builds the routing test network:
//
//	A (0.000, 0.000)   B (0.002, 0.002)   C (0.010, 0.000)
//	D (0.010, 0.010)   E (0.020, 0.000)
//
// R1 [A, C, D]: T1 departs A 08:00, C 08:05:30, arrives D 08:12.
// R2 [C, E]:    T2 departs C 08:08, arrives E 08:20.
// A and B are ~314 m apart (225 s on foot); everything else is out of
// footpath range.
func testRepository() (*repository.Repository, error) {
	stops := []gtfs.Stop{
		{Id: "A", Name: "Alpha", Type: 0, Latitude: fptr(0.000), Longitude: fptr(0.000)},
		{Id: "B", Name: "Bravo", Type: 0, Latitude: fptr(0.002), Longitude: fptr(0.002)},
		{Id: "C", Name: "Charlie", Type: 0, Latitude: fptr(0.010), Longitude: fptr(0.000)},
		{Id: "D", Name: "Delta", Type: 0, Latitude: fptr(0.010), Longitude: fptr(0.010)},
		{Id: "E", Name: "Echo", Type: 0, Latitude: fptr(0.020), Longitude: fptr(0.000)},
	}
	routes := []gtfs.Route{
		{Id: "R1", Type: 3, ShortName: "1", LongName: "Alpha - Delta"},
		{Id: "R2", Type: 3, ShortName: "2", LongName: "Charlie - Echo"},
	}
	trips := []gtfs.ScheduledTrip{
		{
			ID:       "T1",
			Route:    &routes[0],
			Headsign: "Delta",
			StopTimes: []gtfs.ScheduledStopTime{
				{Stop: &stops[0], StopSequence: 1, ArrivalTime: hms(8, 0, 0), DepartureTime: hms(8, 0, 0)},
				{Stop: &stops[2], StopSequence: 2, ArrivalTime: hms(8, 5, 0), DepartureTime: hms(8, 5, 30)},
				{Stop: &stops[3], StopSequence: 3, ArrivalTime: hms(8, 12, 0), DepartureTime: hms(8, 12, 0)},
			},
		},
		{
			ID:       "T2",
			Route:    &routes[1],
			Headsign: "Echo",
			StopTimes: []gtfs.ScheduledStopTime{
				{Stop: &stops[2], StopSequence: 1, ArrivalTime: hms(8, 7, 0), DepartureTime: hms(8, 8, 0)},
				{Stop: &stops[4], StopSequence: 2, ArrivalTime: hms(8, 20, 0), DepartureTime: hms(8, 20, 0)},
			},
		},
	}
	static := &gtfs.Static{Stops: stops, Routes: routes, Trips: trips}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return repository.Build(context.Background(), static, repository.BuildOptions{}, logger)
}

// tiedAreaRepository builds a station with two child platforms that separate
// routes reach at the exact same time, so area-endpoint queries tie:
//
//	RA [A, P1]: arrives P1 08:10.   RB [A, P2]: arrives P2 08:10.
//
// P1 and P2 are over a kilometer apart, outside footpath range.
func tiedAreaRepository() (*repository.Repository, error) {
	stops := []gtfs.Stop{
		{Id: "STN", Name: "Union Station", Type: 1},
		{Id: "A", Name: "Alpha", Type: 0, Latitude: fptr(0.000), Longitude: fptr(0.000)},
		{Id: "P1", Name: "Platform 1", Type: 0, Latitude: fptr(0.010), Longitude: fptr(0.000)},
		{Id: "P2", Name: "Platform 2", Type: 0, Latitude: fptr(0.010), Longitude: fptr(0.010)},
	}
	stops[2].Parent = &stops[0]
	stops[3].Parent = &stops[0]
	routes := []gtfs.Route{
		{Id: "RA", Type: 3, ShortName: "A"},
		{Id: "RB", Type: 3, ShortName: "B"},
	}
	trips := []gtfs.ScheduledTrip{
		{
			ID:    "TA",
			Route: &routes[0],
			StopTimes: []gtfs.ScheduledStopTime{
				{Stop: &stops[1], StopSequence: 1, ArrivalTime: hms(8, 0, 0), DepartureTime: hms(8, 0, 0)},
				{Stop: &stops[2], StopSequence: 2, ArrivalTime: hms(8, 10, 0), DepartureTime: hms(8, 10, 0)},
			},
		},
		{
			ID:    "TB",
			Route: &routes[1],
			StopTimes: []gtfs.ScheduledStopTime{
				{Stop: &stops[1], StopSequence: 1, ArrivalTime: hms(8, 0, 0), DepartureTime: hms(8, 0, 0)},
				{Stop: &stops[3], StopSequence: 2, ArrivalTime: hms(8, 10, 0), DepartureTime: hms(8, 10, 0)},
			},
		},
	}
	static := &gtfs.Static{Stops: stops, Routes: routes, Trips: trips}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return repository.Build(context.Background(), static, repository.BuildOptions{}, logger)
}
