package app

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vincbro/blaise/internal/middleware"
)

// Routes registers the query API and returns the final handler. The
// Prometheus exposition is served from a cached handler; the whole router is
// wrapped in Sentry middleware so handler panics are reported with request
// context.
func (app *Application) Routes(ctx context.Context) http.Handler {
	router := httprouter.New()

	router.HandlerFunc(http.MethodGet, "/v1/healthcheck", app.healthcheckHandler)

	router.HandlerFunc(http.MethodGet, "/v1/stops/search", app.searchStopsHandler)
	router.HandlerFunc(http.MethodGet, "/v1/areas/search", app.searchAreasHandler)
	router.HandlerFunc(http.MethodGet, "/v1/stops/near", app.nearStopsHandler)
	router.HandlerFunc(http.MethodGet, "/v1/areas/near", app.nearAreasHandler)
	router.HandlerFunc(http.MethodGet, "/v1/route", app.routeHandler)

	router.HandlerFunc(http.MethodGet, "/v1/dataset/age", app.datasetAgeHandler)
	router.HandlerFunc(http.MethodPost, "/v1/dataset", app.installDatasetHandler)
	router.HandlerFunc(http.MethodPost, "/v1/dataset/fetch", app.fetchDatasetHandler)

	cachedPromHandler := middleware.NewCachedPromHandler(ctx, prometheus.DefaultGatherer, 5*time.Second)
	router.Handler(http.MethodGet, "/metrics", cachedPromHandler)

	return middleware.SentryMiddleware(router)
}
