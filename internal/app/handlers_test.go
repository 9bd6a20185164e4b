package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func doRequest(t *testing.T, app *Application, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := app.Routes(ctx)

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthcheck(t *testing.T) {
	app := newTestApplication(t)
	rec := doRequest(t, app, http.MethodGet, "/v1/healthcheck", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	status := decode[HealthStatus](t, rec)
	if !status.Ready || !status.Dataset || status.Version != "testing" {
		t.Errorf("unexpected health: %+v", status)
	}
}

func TestSearchStops(t *testing.T) {
	app := newTestApplication(t)
	rec := doRequest(t, app, http.MethodGet, "/v1/stops/search?q=Alpha", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	stops := decode[[]StopSummary](t, rec)
	if len(stops) == 0 || stops[0].ID != "A" {
		t.Errorf("got %+v, want Alpha first", stops)
	}
}

func TestSearchStopsMissingQuery(t *testing.T) {
	app := newTestApplication(t)
	rec := doRequest(t, app, http.MethodGet, "/v1/stops/search", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestNearStops(t *testing.T) {
	app := newTestApplication(t)
	rec := doRequest(t, app, http.MethodGet, "/v1/stops/near?lat=0.001&lon=0.001&radius=500", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	stops := decode[[]StopSummary](t, rec)
	if len(stops) != 2 || stops[0].ID != "A" || stops[1].ID != "B" {
		t.Errorf("got %+v, want A then B", stops)
	}
	if stops[0].DistanceM == nil {
		t.Error("near results must carry distances")
	}
}

func TestNearStopsInvalidCoordinate(t *testing.T) {
	app := newTestApplication(t)
	rec := doRequest(t, app, http.MethodGet, "/v1/stops/near?lat=999&lon=0", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRouteEndToEnd(t *testing.T) {
	app := newTestApplication(t)
	rec := doRequest(t, app, http.MethodGet,
		"/v1/route?from=stop:A&to=stop:D&departure=08:00:00", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	it := decode[ItineraryDTO](t, rec)
	if it.Arrival != "08:12:00" {
		t.Errorf("arrival = %s, want 08:12:00", it.Arrival)
	}
	if len(it.Legs) != 1 || it.Legs[0].Kind != "transit" {
		t.Errorf("legs = %+v", it.Legs)
	}
	if it.Legs[0].Mode != "bus" {
		t.Errorf("mode = %s, want bus", it.Legs[0].Mode)
	}
}

func TestRouteArriveBy(t *testing.T) {
	app := newTestApplication(t)
	rec := doRequest(t, app, http.MethodGet,
		"/v1/route?from=stop:A&to=stop:D&arrival=08:15:00", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	it := decode[ItineraryDTO](t, rec)
	if it.Departure != "08:00:00" || it.Arrival != "08:12:00" {
		t.Errorf("got %s -> %s, want 08:00:00 -> 08:12:00", it.Departure, it.Arrival)
	}
}

func TestRouteNoRoute(t *testing.T) {
	app := newTestApplication(t)
	rec := doRequest(t, app, http.MethodGet,
		"/v1/route?from=stop:A&to=stop:D&departure=09:00:00", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRouteRejectsBothConstraints(t *testing.T) {
	app := newTestApplication(t)
	rec := doRequest(t, app, http.MethodGet,
		"/v1/route?from=stop:A&to=stop:D&departure=08:00:00&arrival=09:00:00", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRouteInvalidTime(t *testing.T) {
	app := newTestApplication(t)
	rec := doRequest(t, app, http.MethodGet,
		"/v1/route?from=stop:A&to=stop:D&departure=8am", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestQueriesWithoutDataset(t *testing.T) {
	app := newEmptyApplication(t)
	for _, target := range []string{
		"/v1/stops/search?q=x",
		"/v1/stops/near?lat=0&lon=0",
		"/v1/route?from=stop:A&to=stop:B&departure=08:00:00",
		"/v1/dataset/age",
	} {
		rec := doRequest(t, app, http.MethodGet, target, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", target, rec.Code)
		}
	}
}

func TestInstallDatasetEndpoint(t *testing.T) {
	app := newEmptyApplication(t)
	rec := doRequest(t, app, http.MethodPost, "/v1/dataset", testArchive())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, app, http.MethodGet, "/v1/dataset/age", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("age after install: status = %d", rec.Code)
	}
	ages := decode[map[string]uint64](t, rec)
	if ages["age_seconds"] > 5 {
		t.Errorf("age = %d, want fresh", ages["age_seconds"])
	}
}

func TestInstallDatasetRejectsGarbage(t *testing.T) {
	app := newEmptyApplication(t)
	rec := doRequest(t, app, http.MethodPost, "/v1/dataset", []byte("junk"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

// Query traffic shows up in the Prometheus counters.
func TestQueryMetricsRecorded(t *testing.T) {
	app := newTestApplication(t)
	doRequest(t, app, http.MethodGet, "/v1/stops/search?q=Alpha", nil)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	var family *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "blaise_queries_total" {
			family = f
		}
	}
	if family == nil {
		t.Fatal("blaise_queries_total not registered")
	}
	found := false
	for _, m := range family.GetMetric() {
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if labels["endpoint"] == "search_stops" && labels["status"] == "ok" && m.GetCounter().GetValue() >= 1 {
			found = true
		}
	}
	if !found {
		t.Error("search_stops/ok counter not incremented")
	}
}
