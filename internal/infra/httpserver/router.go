package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	appanalysis "github.com/bryanwahyu/agrivision/internal/application/analysis"
	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
	"github.com/bryanwahyu/agrivision/internal/middleware"
)

// request bodies carry base64 images
const maxBodyBytes = 16 << 20

// Options wires the optional pieces of the HTTP surface. Zero values disable them.
type Options struct {
	Logger          *zap.Logger
	Metrics         *middleware.HTTPMetrics
	Gatherer        prometheus.Gatherer
	APIKeys         map[string]string
	RateLimiter     *middleware.RateLimiter
	CORSOrigins     []string
	DefaultBackends []domain.BackendID
	// AnalysisTimeout bounds one POST /v1/analyses
	AnalysisTimeout time.Duration
	HealthChecks    map[string]middleware.HealthChecker
}

type Router struct {
	svc  *appanalysis.Service
	opts Options
	log  *zap.Logger
}

func NewRouter(svc *appanalysis.Service, opts Options) http.Handler {
	r := &Router{svc: svc, opts: opts, log: opts.Logger}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Logging(r.log))
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	if len(opts.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"Retry-After"},
			MaxAge:         300,
		}))
	}
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.RateLimiter != nil {
		mux.Use(opts.RateLimiter.Middleware)
	}

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/healthz", middleware.HealthHandler(opts.HealthChecks))
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/analyses", r.wrap(r.handleSubmit))
		rt.Get("/analyses", r.wrap(r.handleList))
		rt.Get("/analyses/{id}", r.wrap(r.handleGet))
		rt.Get("/analyses/{id}/failures", r.wrap(r.handleFailures))
		rt.Get("/backends", r.wrap(r.handleBackends))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type errorBody struct {
	Error string `json:"error"`
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			code := statusFor(err)
			if code >= http.StatusInternalServerError {
				r.log.Error("request failed",
					zap.String("path", req.URL.Path),
					zap.String("request_id", chimw.GetReqID(req.Context())),
					zap.Error(err),
				)
			}
			writeJSON(w, code, errorBody{Error: err.Error()})
		}
	}
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// POST /v1/analyses
// Body: AnalysisRequest. Missing backends fall back to the configured defaults.
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	var body domain.AnalysisRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return invalid("decode body: %v", err)
	}

	if body.ImageURL != "" {
		if err := middleware.ValidateURL(body.ImageURL); err != nil {
			return invalid("image_url: %v", err)
		}
	}
	if body.ImageData != "" {
		if err := middleware.ValidateImageData(body.ImageData); err != nil {
			return invalid("image_data: %v", err)
		}
	}
	if len(body.Backends) == 0 {
		body.Backends = append([]domain.BackendID(nil), r.opts.DefaultBackends...)
	}
	for _, id := range body.Backends {
		if err := middleware.ValidateBackendID(string(id)); err != nil {
			return invalid("%v", err)
		}
	}
	body.Prompt = middleware.SanitizeString(body.Prompt)

	ctx := req.Context()
	if r.opts.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.AnalysisTimeout)
		defer cancel()
	}

	res, err := r.svc.Submit(ctx, body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, res)
}

// GET /v1/analyses?limit=20
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	limit, err := queryLimit(req)
	if err != nil {
		return err
	}

	list, err := r.svc.List(req.Context(), limit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.CombinedAnalysisResult{}
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"items": list,
		"count": len(list),
	})
}

func queryLimit(req *http.Request) (int, error) {
	v := req.URL.Query().Get("limit")
	if v == "" {
		return middleware.ValidateLimit(0), nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalid("limit must be an integer")
	}
	return middleware.ValidateLimit(n), nil
}

// GET /v1/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		return invalid("%v", err)
	}

	a, err := r.svc.Get(req.Context(), domain.AnalysisID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, a)
}

// GET /v1/analyses/{id}/failures?limit=20
func (r *Router) handleFailures(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		return invalid("%v", err)
	}
	limit, err := queryLimit(req)
	if err != nil {
		return err
	}

	list, err := r.svc.BackendFailures(req.Context(), domain.AnalysisID(id), limit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []domain.BackendFailure{}
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"items": list,
		"count": len(list),
	})
}

// GET /v1/backends
func (r *Router) handleBackends(w http.ResponseWriter, req *http.Request) error {
	defaults := r.opts.DefaultBackends
	if defaults == nil {
		defaults = []domain.BackendID{}
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"backends": r.svc.Backends(),
		"defaults": defaults,
	})
}
