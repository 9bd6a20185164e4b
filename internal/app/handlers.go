package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vincbro/blaise/internal/dataset"
	"github.com/vincbro/blaise/internal/geo"
	"github.com/vincbro/blaise/internal/gtime"
	"github.com/vincbro/blaise/internal/metrics"
	"github.com/vincbro/blaise/internal/raptor"
)

const (
	defaultSearchCount = 5
	defaultNearRadiusM = 500
	maxDatasetBytes    = 512 << 20
)

// HealthStatus is the JSON response of /v1/healthcheck.
type HealthStatus struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	Dataset     bool   `json:"dataset_loaded"`
	Ready       bool   `json:"ready"`
}

func (app *Application) healthcheckHandler(w http.ResponseWriter, r *http.Request) {
	_, err := app.Store.Current()
	loaded := err == nil

	status := HealthStatus{
		Status:      "available",
		Environment: app.Config.Env,
		Version:     app.Version,
		Dataset:     loaded,
		Ready:       loaded,
	}
	app.writeJSON(w, http.StatusOK, status)
}

func (app *Application) searchStopsHandler(w http.ResponseWriter, r *http.Request) {
	defer app.observe("search_stops", time.Now())
	snap, ok := app.snapshot(w, "search_stops")
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		app.badRequest(w, "search_stops", "missing query parameter q")
		return
	}
	count, err := queryInt(r, "count", defaultSearchCount)
	if err != nil {
		app.badRequest(w, "search_stops", err.Error())
		return
	}

	stops := snap.Repo.SearchStops(q, count)
	out := make([]StopSummary, 0, len(stops))
	for _, stop := range stops {
		out = append(out, stopSummary(snap.Repo, stop, nil))
	}
	metrics.QueriesTotal.WithLabelValues("search_stops", "ok").Inc()
	app.writeJSON(w, http.StatusOK, out)
}

func (app *Application) searchAreasHandler(w http.ResponseWriter, r *http.Request) {
	defer app.observe("search_areas", time.Now())
	snap, ok := app.snapshot(w, "search_areas")
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		app.badRequest(w, "search_areas", "missing query parameter q")
		return
	}
	count, err := queryInt(r, "count", defaultSearchCount)
	if err != nil {
		app.badRequest(w, "search_areas", err.Error())
		return
	}

	areas := snap.Repo.SearchAreas(q, count)
	out := make([]AreaSummary, 0, len(areas))
	for _, area := range areas {
		out = append(out, areaSummary(area, nil))
	}
	metrics.QueriesTotal.WithLabelValues("search_areas", "ok").Inc()
	app.writeJSON(w, http.StatusOK, out)
}

func (app *Application) nearStopsHandler(w http.ResponseWriter, r *http.Request) {
	defer app.observe("near_stops", time.Now())
	snap, ok := app.snapshot(w, "near_stops")
	if !ok {
		return
	}
	point, radius, err := nearParams(r)
	if err != nil {
		app.badRequest(w, "near_stops", err.Error())
		return
	}

	hits := snap.Repo.StopsNear(point, radius)
	out := make([]StopSummary, 0, len(hits))
	for _, hit := range hits {
		out = append(out, stopSummary(snap.Repo, &snap.Repo.Stops[hit.Index], floatPtr(hit.Meters)))
	}
	metrics.QueriesTotal.WithLabelValues("near_stops", "ok").Inc()
	app.writeJSON(w, http.StatusOK, out)
}

func (app *Application) nearAreasHandler(w http.ResponseWriter, r *http.Request) {
	defer app.observe("near_areas", time.Now())
	snap, ok := app.snapshot(w, "near_areas")
	if !ok {
		return
	}
	point, radius, err := nearParams(r)
	if err != nil {
		app.badRequest(w, "near_areas", err.Error())
		return
	}

	hits := snap.Repo.AreasNear(point, radius)
	out := make([]AreaSummary, 0, len(hits))
	for _, hit := range hits {
		out = append(out, areaSummary(&snap.Repo.Areas[hit.Index], floatPtr(hit.Meters)))
	}
	metrics.QueriesTotal.WithLabelValues("near_areas", "ok").Inc()
	app.writeJSON(w, http.StatusOK, out)
}

func (app *Application) routeHandler(w http.ResponseWriter, r *http.Request) {
	defer app.observe("route", time.Now())
	snap, ok := app.snapshot(w, "route")
	if !ok {
		return
	}
	params := r.URL.Query()

	from, err := raptor.ParseLocation(params.Get("from"))
	if err != nil {
		app.badRequest(w, "route", "invalid from: "+err.Error())
		return
	}
	to, err := raptor.ParseLocation(params.Get("to"))
	if err != nil {
		app.badRequest(w, "route", "invalid to: "+err.Error())
		return
	}

	constraint, err := routeConstraint(params.Get("departure"), params.Get("arrival"))
	if err != nil {
		app.badRequest(w, "route", err.Error())
		return
	}

	opts := raptor.DefaultOptions()
	opts.MaxAccessEgressWalkM = app.Config.AccessEgressRadiusM
	if v := params.Get("max_rounds"); v != "" {
		if opts.MaxRounds, err = strconv.Atoi(v); err != nil {
			app.badRequest(w, "route", "invalid max_rounds")
			return
		}
	}
	if v := params.Get("walk"); v == "false" {
		opts.AllowWalk = false
	}
	if v := params.Get("shapes"); v == "true" {
		opts.IncludeShapes = true
	}

	itinerary, err := snap.Router.Solve(r.Context(), from, to, constraint, opts)
	if err != nil {
		app.routeError(w, err)
		return
	}
	metrics.QueriesTotal.WithLabelValues("route", "ok").Inc()
	app.writeJSON(w, http.StatusOK, itineraryDTO(itinerary))
}

// routeConstraint reads the time constraint; at most one of departure and
// arrival may be set, and with neither the query departs now.
func routeConstraint(departure, arrival string) (raptor.Constraint, error) {
	switch {
	case departure != "" && arrival != "":
		return raptor.Constraint{}, errors.New("departure and arrival are mutually exclusive")
	case arrival != "":
		t, err := gtime.Parse(arrival)
		if err != nil {
			return raptor.Constraint{}, err
		}
		return raptor.ArriveBy(t), nil
	case departure != "":
		t, err := gtime.Parse(departure)
		if err != nil {
			return raptor.Constraint{}, err
		}
		return raptor.DepartAt(t), nil
	default:
		now := time.Now()
		secs := now.Hour()*3600 + now.Minute()*60 + now.Second()
		return raptor.DepartAt(gtime.FromSeconds(secs)), nil
	}
}

func (app *Application) routeError(w http.ResponseWriter, err error) {
	var epErr *raptor.EndpointError
	switch {
	case errors.As(err, &epErr):
		metrics.QueriesTotal.WithLabelValues("route", "endpoint_unresolved").Inc()
		app.errorResponse(w, http.StatusNotFound, epErr.Error())
	case errors.Is(err, raptor.ErrNoRoute):
		metrics.QueriesTotal.WithLabelValues("route", "no_route").Inc()
		app.errorResponse(w, http.StatusNotFound, "no route found")
	case errors.Is(err, raptor.ErrTimeout):
		metrics.QueriesTotal.WithLabelValues("route", "timeout").Inc()
		app.errorResponse(w, http.StatusGatewayTimeout, "query deadline exceeded")
	case errors.Is(err, raptor.ErrPoolExhausted):
		metrics.QueriesTotal.WithLabelValues("route", "pool_exhausted").Inc()
		app.errorResponse(w, http.StatusServiceUnavailable, "engine at capacity")
	default:
		metrics.QueriesTotal.WithLabelValues("route", "error").Inc()
		app.Logger.Error("route query failed", "error", err)
		app.errorResponse(w, http.StatusInternalServerError, "internal error")
	}
}

func (app *Application) datasetAgeHandler(w http.ResponseWriter, r *http.Request) {
	age, err := app.Store.AgeSeconds()
	if err != nil {
		app.errorResponse(w, http.StatusServiceUnavailable, "no dataset loaded")
		return
	}
	app.writeJSON(w, http.StatusOK, map[string]uint64{"age_seconds": age})
}

func (app *Application) installDatasetHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDatasetBytes))
	if err != nil {
		app.badRequest(w, "install_dataset", "failed to read request body")
		return
	}
	if len(body) == 0 {
		app.badRequest(w, "install_dataset", "empty archive")
		return
	}
	if err := app.Store.InstallFromBytes(r.Context(), body); err != nil {
		app.Logger.Error("dataset install failed", "error", err)
		app.errorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	app.writeJSON(w, http.StatusOK, map[string]string{"status": "installed"})
}

func (app *Application) fetchDatasetHandler(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		app.badRequest(w, "fetch_dataset", "missing query parameter url")
		return
	}
	if err := app.Store.InstallFromURL(r.Context(), url); err != nil {
		app.Logger.Error("dataset fetch failed", "url", url, "error", err)
		app.errorResponse(w, http.StatusBadGateway, err.Error())
		return
	}
	app.writeJSON(w, http.StatusOK, map[string]string{"status": "installed"})
}

// snapshot loads the live dataset or answers 503.
func (app *Application) snapshot(w http.ResponseWriter, endpoint string) (*dataset.Snapshot, bool) {
	snap, err := app.Store.Current()
	if err != nil {
		metrics.QueriesTotal.WithLabelValues(endpoint, "unavailable").Inc()
		app.errorResponse(w, http.StatusServiceUnavailable, "no dataset loaded")
		return nil, false
	}
	return snap, true
}

func nearParams(r *http.Request) (geo.Coordinate, float64, error) {
	params := r.URL.Query()
	lat, err := strconv.ParseFloat(params.Get("lat"), 64)
	if err != nil {
		return geo.Coordinate{}, 0, errors.New("invalid lat")
	}
	lon, err := strconv.ParseFloat(params.Get("lon"), 64)
	if err != nil {
		return geo.Coordinate{}, 0, errors.New("invalid lon")
	}
	if !geo.IsValidLatLon(lat, lon) {
		return geo.Coordinate{}, 0, errors.New("coordinate out of bounds")
	}
	radius := float64(defaultNearRadiusM)
	if v := params.Get("radius"); v != "" {
		if radius, err = strconv.ParseFloat(v, 64); err != nil || radius <= 0 {
			return geo.Coordinate{}, 0, errors.New("invalid radius")
		}
	}
	return geo.Coordinate{Lat: lat, Lon: lon}, radius, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func (app *Application) observe(endpoint string, start time.Time) {
	metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (app *Application) badRequest(w http.ResponseWriter, endpoint, msg string) {
	metrics.QueriesTotal.WithLabelValues(endpoint, "bad_request").Inc()
	app.errorResponse(w, http.StatusBadRequest, msg)
}

func (app *Application) errorResponse(w http.ResponseWriter, status int, msg string) {
	app.writeJSON(w, status, map[string]string{"error": msg})
}

func (app *Application) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Logger.Error("failed to encode response", "error", err)
	}
}
