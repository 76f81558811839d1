package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scribed/internal/manager"
	"scribed/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Transcribe(ctx context.Context, req manager.TranscribeRequest) (manager.Result, error)
	Correct(ctx context.Context, req manager.CorrectRequest) (manager.Result, error)
	ProbeModule(ctx context.Context, module string, force bool) (bool, error)
	Modules() []string
	ListBackends() []types.Backend
	Status() types.StatusResponse
	ClearCache(keepMostRecent bool)
	InvalidateProbes()
	Ready() bool
}

// maxBodyBytes controls the maximum allowed request body size for JSON
// endpoints. Large transcripts fit comfortably; audio never rides the body
// (only its path does).
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// interpreterPath is reported by /v1/probe responses.
type muxConfig struct {
	interpreter string
}

// Option configures NewMux.
type Option func(*muxConfig)

// WithInterpreter sets the interpreter path echoed in probe responses.
func WithInterpreter(path string) Option {
	return func(c *muxConfig) { c.interpreter = path }
}

func NewMux(svc Service, opts ...Option) http.Handler {
	var cfg muxConfig
	for _, o := range opts {
		o(&cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	// The desktop UI talks to the daemon from a different origin in dev.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
	}))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// Transcribe godoc
	// @Summary      Transcribe an audio file
	// @Accept       json
	// @Produce      json
	// @Param        request body types.TranscribeRequest true "transcription request"
	// @Success      200 {object} types.ResultResponse
	// @Failure      404 {object} types.ErrorResponse
	// @Failure      503 {object} types.ErrorResponse
	// @Failure      504 {object} types.ErrorResponse
	// @Router       /v1/transcribe [post]
	r.Post("/v1/transcribe", func(w http.ResponseWriter, r *http.Request) {
		var req types.TranscribeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.AudioPath) == "" {
			writeJSONError(w, http.StatusBadRequest, "audio_path is required")
			return
		}
		start := time.Now()
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		res, err := svc.Transcribe(joined, manager.TranscribeRequest{
			AudioPath: req.AudioPath,
			Backend:   req.Backend,
		})
		finishResult(w, r, "transcribe", req.Backend, start, res, err)
	})

	// Correct godoc
	// @Summary      Rewrite a transcript for fluency
	// @Accept       json
	// @Produce      json
	// @Param        request body types.CorrectRequest true "correction request"
	// @Success      200 {object} types.ResultResponse
	// @Failure      404 {object} types.ErrorResponse
	// @Failure      422 {object} types.ErrorResponse
	// @Failure      503 {object} types.ErrorResponse
	// @Router       /v1/correct [post]
	r.Post("/v1/correct", func(w http.ResponseWriter, r *http.Request) {
		var req types.CorrectRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}
		start := time.Now()
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		res, err := svc.Correct(joined, manager.CorrectRequest{
			Text:    req.Text,
			Backend: req.Backend,
			Prompt:  req.Prompt,
		})
		finishResult(w, r, "correct", req.Backend, start, res, err)
	})

	// Probe godoc
	// @Summary      Check interpreter capabilities
	// @Accept       json
	// @Produce      json
	// @Param        request body types.ProbeRequest true "probe request"
	// @Success      200 {object} types.ProbeResponse
	// @Router       /v1/probe [post]
	r.Post("/v1/probe", func(w http.ResponseWriter, r *http.Request) {
		var req types.ProbeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		modules := svc.Modules()
		if req.Module != "" {
			modules = []string{req.Module}
		}
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		resp := types.ProbeResponse{Interpreter: cfg.interpreter, Available: map[string]bool{}}
		for _, mod := range modules {
			ok, err := svc.ProbeModule(joined, mod, req.Force)
			if err != nil {
				writeTaxonomyError(w, err)
				return
			}
			resp.Available[mod] = ok
		}
		writeJSON(w, resp)
	})

	r.Get("/v1/backends", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, types.BackendsResponse{Backends: svc.ListBackends()})
	})

	r.Get("/v1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	// DELETE /v1/cache drops warm models; ?keep_recent=1 keeps the most
	// recently used one (the mild, warning-level flavor).
	r.Delete("/v1/cache", func(w http.ResponseWriter, r *http.Request) {
		keep := r.URL.Query().Get("keep_recent") == "1"
		svc.ClearCache(keep)
		w.WriteHeader(http.StatusNoContent)
	})

	// DELETE /v1/probe drops cached probe results (user changed
	// interpreter or installed dependencies).
	r.Delete("/v1/probe", func(w http.ResponseWriter, r *http.Request) {
		svc.InvalidateProbes()
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// finishResult writes either the normalized result or the mapped taxonomy
// error, and records the failure kind metric.
func finishResult(w http.ResponseWriter, r *http.Request, op, backend string, start time.Time, res manager.Result, err error) {
	if err != nil {
		// Client disconnect or shutdown: nothing useful to write.
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		inferenceFailuresTotal.WithLabelValues(failureKind(err)).Inc()
		status := http.StatusInternalServerError
		if he, ok := err.(HTTPError); ok {
			status = he.StatusCode()
		}
		writeTaxonomyError(w, err)
		logRequest(r, op, backend, status, start, err)
		return
	}
	writeJSON(w, types.ResultResponse{
		Text:       res.Text,
		Backend:    res.Backend,
		RequestID:  res.RequestID,
		DurationMs: res.Duration.Milliseconds(),
	})
	logRequest(r, op, res.Backend, http.StatusOK, start, nil)
}

func failureKind(err error) string {
	switch {
	case manager.IsInterpreterNotFound(err):
		return "interpreter_not_found"
	case manager.IsScriptNotFound(err):
		return "script_not_found"
	case manager.IsDependencyMissing(err):
		return "dependency_missing"
	case manager.IsTimedOut(err):
		return "timed_out"
	case manager.IsProcessFailed(err):
		return "process_failed"
	case manager.IsInvalidResponse(err):
		return "invalid_response"
	case manager.IsOperationFailed(err):
		return "operation_failed"
	case manager.IsLoadFailed(err):
		return "load_failed"
	case manager.IsEmptyResult(err):
		return "empty_result"
	case manager.IsBackendNotFound(err):
		return "backend_not_found"
	default:
		return "other"
	}
}
