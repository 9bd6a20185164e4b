package dataset

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gtfsZip assembles a GTFS archive in memory from file name to CSV body.
func gtfsZip(files map[string]string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := f.Write([]byte(body)); err != nil {
			panic(err)
		}
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// testArchive is the minimal network the engine tests route over: stops A-D
// with one trip A -> C -> D.
func testArchive() []byte {
	return testArchiveNamed("Alpha")
}

// testArchiveNamed varies the name of stop A so tests can tell two dataset
// generations apart.
func testArchiveNamed(stopAName string) []byte {
	return gtfsZip(map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"AG,Blaise Transit,https://example.com,Etc/UTC\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"A," + stopAName + ",0.000,0.000\n" +
			"B,Bravo,0.002,0.002\n" +
			"C,Charlie,0.010,0.000\n" +
			"D,Delta,0.010,0.010\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
			"R1,AG,1,Alpha - Delta,3\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"WK,1,1,1,1,1,0,0,20250101,20251231\n",
		"trips.txt": "route_id,service_id,trip_id,trip_headsign\n" +
			"R1,WK,T1,Delta\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"T1,08:00:00,08:00:00,A,1\n" +
			"T1,08:05:00,08:05:30,C,2\n" +
			"T1,08:12:00,08:12:00,D,3\n",
	})
}
