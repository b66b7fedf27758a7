package obs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports whether a collaborator is currently healthy, along with a
// short human-readable message for the unhealthy case.
type Checker func(ctx context.Context) (healthy bool, message string)

type checkResult struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

type healthBody struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]checkResult `json:"checks"`
}

// HealthCheckers bundles the three collaborator probes the health endpoint
// runs; the fourth probe, memory, is built in.
type HealthCheckers struct {
	Database Checker
	Storage  Checker
	Render   Checker
}

// memoryHeapThreshold is the heap_used/heap_total ratio above which the
// memory probe reports unhealthy (spec §4.9 health endpoint).
const memoryHeapThreshold = 0.8

func memoryCheck(ctx context.Context) (bool, string) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapSys == 0 {
		return true, ""
	}
	ratio := float64(m.HeapAlloc) / float64(m.HeapSys)
	if ratio > memoryHeapThreshold {
		return false, fmt.Sprintf("heap usage %.2f exceeds threshold %.2f", ratio, memoryHeapThreshold)
	}
	return true, ""
}

// NewMux builds the worker's HTTP surface: /health, /, /metrics, and a 404
// fallback for everything else.
func NewMux(checkers HealthCheckers) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := map[string]checkResult{}
		allHealthy := true

		for name, fn := range map[string]Checker{
			"database": checkers.Database,
			"storage":  checkers.Storage,
			"render":   checkers.Render,
			"memory":   memoryCheck,
		} {
			if fn == nil {
				checks[name] = checkResult{Healthy: true}
				continue
			}
			ok, msg := fn(ctx)
			checks[name] = checkResult{Healthy: ok, Message: msg}
			if !ok {
				allHealthy = false
			}
		}

		status := "ok"
		code := http.StatusOK
		if !allHealthy {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(healthBody{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			notFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"service":   "export-worker",
			"status":    "running",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "Not Found",
		"path":  r.URL.Path,
	})
}

// StartHealthServer binds the health/status mux on its own port, mirroring
// the teacher's pattern of a dedicated listener started in a goroutine.
func StartHealthServer(port int, checkers HealthCheckers) *http.Server {
	srv := &http.Server{Addr: addr(port), Handler: NewMux(checkers)}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// StartMetricsServer exposes /metrics alone on its own port.
func StartMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr(port), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

func addr(port int) string {
	return fmt.Sprintf(":%d", port)
}
