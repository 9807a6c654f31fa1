package daemon

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Raydrick/docship/internal/logfields"
	"github.com/Raydrick/docship/internal/metrics"
	"github.com/Raydrick/docship/internal/version"
)

// webhookSecretHeader carries the shared secret for webhook deliveries.
const webhookSecretHeader = "X-Docship-Secret"

// Server exposes the daemon's HTTP surface: webhook intake, health, status,
// and Prometheus metrics.
type Server struct {
	daemon *Daemon
	srv    *http.Server
}

// NewServer builds the HTTP server on the given listen address.
func NewServer(d *Daemon, listen string) *Server {
	s := &Server{daemon: d}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", metrics.HTTPHandler(d.registry))

	s.srv = &http.Server{
		Addr:         listen,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", slog.String("listen", s.srv.Addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", logfields.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Stopping HTTP server")
	return s.srv.Shutdown(ctx)
}

// webhookPayload is the push notification body. Forges that send full refs
// ("refs/heads/master") work as well as a plain branch name.
type webhookPayload struct {
	Repository string `json:"repository,omitempty"`
	Ref        string `json:"ref,omitempty"`
	Branch     string `json:"branch,omitempty"`
	Commit     string `json:"commit,omitempty"`
}

// branchName resolves the branch from either field.
func (p webhookPayload) branchName() string {
	if p.Branch != "" {
		return p.Branch
	}
	return strings.TrimPrefix(p.Ref, "refs/heads/")
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	cfg := s.daemon.Config()

	if secret := cfg.Daemon.WebhookSecret; secret != "" {
		got := r.Header.Get(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			writeJSONError(w, http.StatusUnauthorized, "invalid webhook secret")
			return
		}
	}

	var payload webhookPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid payload: %v", err))
		return
	}
	branch := payload.branchName()
	if branch == "" {
		writeJSONError(w, http.StatusBadRequest, "branch or ref is required")
		return
	}

	job, err := s.daemon.EnqueueWebhook(branch, payload.Commit)
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"branch": job.Branch,
		"status": job.Status,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	recent, err := s.daemon.store.RecentRuns(r.Context(), 20)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queue_length": s.daemon.queue.Length(),
		"active_jobs":  s.daemon.queue.ActiveJobs(),
		"job_history":  s.daemon.queue.History(),
		"recent_runs":  recent,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode HTTP response", logfields.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
