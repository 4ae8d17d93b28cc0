package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studio/internal/http/handlers"
	"studio/internal/middleware"
)

// Options configures the router around the handlers.
type Options struct {
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// RateLimitPerMin applies to the generation routes per client IP.
	RateLimitPerMin int
	// Locales lists the supported request locales, most preferred first.
	Locales []string
	// DefaultLocale applies when the caller sends no language hint.
	DefaultLocale string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
	)

	r.Get("/v1/healthz", app.Health)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	i18n := middleware.I18NOptions{Supported: opts.Locales, Default: opts.DefaultLocale}
	if app.Geo != nil {
		i18n.Lookup = app.Geo.CountryCode
	}

	r.Route("/v1/generations", func(r chi.Router) {
		r.Use(
			middleware.RateLimit(opts.RateLimitPerMin, time.Minute),
			middleware.I18N(i18n),
		)
		r.Post("/", app.Generate)
		r.Post("/queue", app.Enqueue)
		r.Get("/{id}", app.Status)
	})
	r.Get("/v1/records/{id}", app.Record)

	return r
}
