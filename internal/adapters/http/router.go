package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joseffiran/SilkRouteHelper-1/internal/config"
	"github.com/joseffiran/SilkRouteHelper-1/internal/core/ports"
	"github.com/joseffiran/SilkRouteHelper-1/internal/observability/metrics"
)

const serviceName = "api"

// Services are the inbound ports the HTTP surface talks to.
type Services struct {
	Ingest     ports.DocumentIngestor
	Documents  ports.DocumentReader
	Dispatcher ports.ProcessingDispatcher
	Extractor  ports.TextExtractionService
	Templates  ports.TemplateCatalog
}

type Router struct {
	cfg     config.Config
	svc     Services
	metrics *metrics.HTTPServerMetrics
}

// NewRouter builds the API surface; httpMetrics may be nil.
func NewRouter(cfg config.Config, svc Services, httpMetrics *metrics.HTTPServerMetrics) *Router {
	return &Router{
		cfg:     cfg,
		svc:     svc,
		metrics: httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(middleware.Recoverer)
	if rt.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.metrics.Middleware(serviceName, next)
		})
	}

	r.Get("/healthz", rt.healthz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimitMiddleware(rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.onRateLimited))
		r.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
		})

		r.Post("/documents", rt.uploadDocument)
		r.Route("/documents/{documentID}", func(r chi.Router) {
			r.Get("/", rt.getDocument)
			r.Post("/process", rt.dispatchDocument)
			r.Post("/reprocess", rt.reprocessDocument)
			r.Get("/status", rt.processingStatus)
		})
		r.Get("/processing/health", rt.processingHealth)
		r.Post("/extract", rt.extractText)

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", rt.listTemplates)
			r.Post("/", rt.createTemplate)
			r.Get("/active", rt.activeTemplate)
			r.Route("/{templateID}", func(r chi.Router) {
				r.Get("/", rt.getTemplate)
				r.Delete("/", rt.deleteTemplate)
				r.Post("/activate", rt.activateTemplate)
				r.Get("/fields", rt.listFields)
				r.Post("/fields", rt.addField)
				r.Put("/fields/{fieldName}", rt.updateField)
				r.Delete("/fields/{fieldName}", rt.deleteField)
			})
		})
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) onRateLimited(r *http.Request) {
	if rt.metrics != nil {
		rt.metrics.RecordRateLimited(serviceName, r.URL.Path)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps err to a status code; extra fields are merged into the body.
func writeError(w http.ResponseWriter, r *http.Request, err error, extra map[string]any) {
	status := mapErrorToHTTPStatus(err)
	body := map[string]any{"error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
