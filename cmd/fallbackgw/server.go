package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	llmfallback "github.com/ferro-labs/llm-fallback"
	"github.com/ferro-labs/llm-fallback/internal/logging"
	"github.com/ferro-labs/llm-fallback/internal/requestlog"
	"github.com/ferro-labs/llm-fallback/internal/version"
	"github.com/ferro-labs/llm-fallback/providers"
)

const maxBodyBytes = 1 << 20

// generateRequest is the body of POST /v1/generate.
type generateRequest struct {
	Prompt  string            `json:"prompt"`
	Options providers.Options `json:"options"`
	NoCache bool              `json:"no_cache,omitempty"`
}

type generateResponse struct {
	Text      string `json:"text"`
	Provider  string `json:"provider,omitempty"`
	Cached    bool   `json:"cached"`
	Attempts  int    `json:"attempts"`
	LatencyMs int64  `json:"latency_ms"`
}

// recentLister is implemented by request log writers that can read back.
type recentLister interface {
	Recent(ctx context.Context, limit int) ([]requestlog.Entry, error)
}

type serverOptions struct {
	// debug exposes upstream error detail in responses.
	debug bool
	logs  requestlog.Writer
}

// newRouter builds the HTTP router.
func newRouter(gw *llmfallback.Gateway, opts serverOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		active := gw.ActiveProviderName()
		status, code := "ok", http.StatusOK
		switch {
		case active == llmfallback.NoProvider:
			status, code = "unavailable", http.StatusServiceUnavailable
		case !isHealthy(gw, active):
			status = "degraded"
		}
		body := map[string]interface{}{
			"status":          status,
			"active_provider": active,
		}
		if err := gw.LastError(); err != nil {
			body["last_error"] = llmfallback.PublicMessage(err, opts.debug)
		}
		writeJSON(w, code, body)
	})

	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, version.Get())
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/generate", generateHandler(gw, opts.debug))

		r.Get("/providers", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"active": gw.ActiveProviderName(),
				"data":   gw.Stats(),
			})
		})

		r.Get("/cache", func(w http.ResponseWriter, r *http.Request) {
			stats, ok := gw.CacheStats()
			if !ok {
				writeError(w, http.StatusNotFound, "response cache is disabled", "cache_disabled")
				return
			}
			body := map[string]interface{}{"stats": stats}
			if r.URL.Query().Get("entries") == "true" {
				body["entries"] = gw.CacheEntries()
			}
			writeJSON(w, http.StatusOK, body)
		})

		r.Delete("/cache", func(w http.ResponseWriter, _ *http.Request) {
			gw.ClearCache()
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/logs", func(w http.ResponseWriter, r *http.Request) {
			lister, ok := opts.logs.(recentLister)
			if !ok {
				writeError(w, http.StatusNotFound, "request log is not enabled", "logs_disabled")
				return
			}
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			entries, err := lister.Recent(r.Context(), limit)
			if err != nil {
				logging.FromContext(r.Context()).Error("reading request log", "error", err.Error())
				writeError(w, http.StatusInternalServerError, "failed to read request log", "internal_error")
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": entries})
		})
	})

	return r
}

func generateHandler(gw *llmfallback.Gateway, debug bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeError(w, http.StatusBadRequest, "prompt is required", "invalid_request")
			return
		}
		req.Options.SkipCache = req.NoCache

		res, err := gw.GenerateResult(r.Context(), req.Prompt, req.Options)
		if err != nil {
			status, code := http.StatusServiceUnavailable, "providers_exhausted"
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				status, code = http.StatusGatewayTimeout, "request_cancelled"
			}
			writeError(w, status, llmfallback.PublicMessage(err, debug), code)
			return
		}

		writeJSON(w, http.StatusOK, generateResponse{
			Text:      res.Text,
			Provider:  res.Provider,
			Cached:    res.Cached,
			Attempts:  res.Attempts,
			LatencyMs: res.Latency.Milliseconds(),
		})
	}
}

func isHealthy(gw *llmfallback.Gateway, name string) bool {
	for _, s := range gw.Stats() {
		if s.Name == name {
			return s.Healthy
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response:
//
//	{"error":{"message":"...","type":"...","code":"..."}}
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"message": message,
			"type":    errorType(status),
			"code":    code,
		},
	})
}

func errorType(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "not_found_error"
	case status >= 400 && status < 500:
		return "invalid_request_error"
	default:
		return "server_error"
	}
}
