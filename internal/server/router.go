// internal/server/router.go
//
// Ops endpoints for the poller.
//
/*
Context
--------
The poller is driven by cron, but operators (and the admin panel of the
mother bot) can start a pass over HTTP, the same way the bot's other
workers are triggered:

  GET  /healthz     liveness, plain "ok"
  GET  /metrics     Prometheus exposition
  GET  /runs/last   last Report as JSON, 404 before the first pass
  POST /runs?key=…  run a pass now and return its Report

The trigger key is hex(sha256(bot_token + "|" + admin_id + "|tronchecker")).
A wrong or missing key is answered with 403 and never starts a pass.
*/
package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/tronpoll/internal/middleware"
	"github.com/yanizio/tronpoll/internal/tenant"
)

// TriggerPurpose is mixed into the trigger key.
const TriggerPurpose = "tronchecker"

// Runs is the part of the scheduler the router needs.
type Runs interface {
	Trigger(ctx context.Context) (*tenant.Report, error)
	Last() *tenant.Report
}

// TriggerKey returns the expected key for POST /runs.
func TriggerKey(botToken string, adminID int64) string {
	sum := sha256.Sum256([]byte(botToken + "|" + strconv.FormatInt(adminID, 10) + "|" + TriggerPurpose))
	return hex.EncodeToString(sum[:])
}

// Router builds the ops handler.  An empty key disables POST /runs.
func Router(runs Runs, key string, log *zap.SugaredLogger) http.Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	h := &handlers{runs: runs, key: key, log: log}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLog(log))
	r.Use(middleware.Security)

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/runs/last", h.lastRun)
	r.Post("/runs", h.triggerRun)
	return r
}

type handlers struct {
	runs Runs
	key  string
	log  *zap.SugaredLogger
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) lastRun(w http.ResponseWriter, _ *http.Request) {
	rep := h.runs.Last()
	if rep == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run yet"})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *handlers) triggerRun(w http.ResponseWriter, r *http.Request) {
	got := r.URL.Query().Get("key")
	if h.key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.key)) != 1 {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	start := time.Now()
	rep, err := h.runs.Trigger(r.Context())
	if err != nil {
		h.log.Warnw("triggered pass ended early", "err", err, "took", time.Since(start))
		if rep == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Debugw("response encode failed", "err", err)
	}
}
