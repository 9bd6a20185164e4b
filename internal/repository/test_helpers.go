package repository

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jamespfennell/gtfs"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testContext() context.Context {
	return context.Background()
}

func fptr(f float64) *float64 { return &f }

func hms(h, m, s int) time.Duration {
	return time.Duration(h*3600+m*60+s) * time.Second
}

// testStatic builds the synthetic network used across the engine tests:
//
//	A (0.000, 0.000)   B (0.002, 0.002)   C (0.010, 0.000)   D (0.010, 0.010)
//
// One route R1 [A, C, D] with trip T1 departing A at 08:00, C at 08:05:30,
// arriving D at 08:12. A and B are ~314 m apart, inside footpath range.
func testStatic() *gtfs.Static {
	stops := []gtfs.Stop{
		{Id: "A", Name: "Alpha", Type: 0, Latitude: fptr(0.000), Longitude: fptr(0.000)},
		{Id: "B", Name: "Bravo", Type: 0, Latitude: fptr(0.002), Longitude: fptr(0.002)},
		{Id: "C", Name: "Charlie", Type: 0, Latitude: fptr(0.010), Longitude: fptr(0.000)},
		{Id: "D", Name: "Delta", Type: 0, Latitude: fptr(0.010), Longitude: fptr(0.010)},
	}
	routes := []gtfs.Route{
		{Id: "R1", Type: 3, ShortName: "1", LongName: "Alpha - Delta"},
	}
	services := []gtfs.Service{
		{
			Id:     "WEEKDAY",
			Monday: true, Tuesday: true, Wednesday: true, Thursday: true, Friday: true,
			StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		},
	}
	trips := []gtfs.ScheduledTrip{
		{
			ID:       "T1",
			Route:    &routes[0],
			Service:  &services[0],
			Headsign: "Delta",
			StopTimes: []gtfs.ScheduledStopTime{
				{Stop: &stops[0], StopSequence: 1, ArrivalTime: hms(8, 0, 0), DepartureTime: hms(8, 0, 0)},
				{Stop: &stops[2], StopSequence: 2, ArrivalTime: hms(8, 5, 0), DepartureTime: hms(8, 5, 30)},
				{Stop: &stops[3], StopSequence: 3, ArrivalTime: hms(8, 12, 0), DepartureTime: hms(8, 12, 0)},
			},
		},
	}
	return &gtfs.Static{
		Stops:    stops,
		Routes:   routes,
		Services: services,
		Trips:    trips,
	}
}

func buildTest(static *gtfs.Static) (*Repository, error) {
	return Build(testContext(), static, BuildOptions{}, discardLogger())
}
