package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/job"
	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the batch enrichment API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/batches", func(r chi.Router) {
		r.Post("/", handleSubmit(env))
		r.Get("/", handleList(env))
		r.Get("/{id}", handleGet(env))
		r.Post("/{id}/pause", handleLifecycle(env, env.Manager.Pause))
		r.Post("/{id}/resume", handleLifecycle(env, env.Manager.Resume))
		r.Post("/{id}/cancel", handleLifecycle(env, env.Manager.Cancel))
		r.Post("/{id}/retry", handleLifecycle(env, env.Manager.Retry))
		r.Get("/{id}/events", handleEvents(env))
	})

	return r
}

type submitRequest struct {
	CampaignID string           `json:"campaign_id"`
	Prospects  []model.Prospect `json:"prospects"`
	Config     model.JobConfig  `json:"config"`
}

func handleSubmit(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Prospects) == 0 {
			writeError(w, http.StatusBadRequest, "prospects is required")
			return
		}
		for i := range req.Prospects {
			if req.Prospects[i].Email == "" {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("prospect %d: email is required", i))
				return
			}
		}

		jobID, err := env.Orch.Submit(r.Context(), req.CampaignID, req.Prospects, req.Config)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
	}
}

func handleList(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.BatchFilter{
			CampaignID: r.URL.Query().Get("campaign_id"),
			Status:     model.JobStatus(r.URL.Query().Get("status")),
		}
		jobs, err := env.Manager.List(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"batches": jobs})
	}
}

func handleGet(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch, err := env.Manager.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if eris.Is(err, job.ErrNotFound) {
				writeError(w, http.StatusNotFound, "batch not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, batch)
	}
}

// handleLifecycle adapts a Manager transition into an HTTP handler. Invalid
// transitions map to 409, unknown jobs to 404.
func handleLifecycle(env *appEnv, op func(ctx context.Context, jobID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := op(r.Context(), chi.URLParam(r, "id"))
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case eris.Is(err, job.ErrNotFound):
			writeError(w, http.StatusNotFound, "batch not found")
		case job.IsPrecondition(err):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

// handleEvents streams a batch's progress events over SSE. The subscription
// is buffered; slow consumers get dropped by the broadcaster and the stream
// ends.
func handleEvents(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		jobID := chi.URLParam(r, "id")

		// subscribe before reading the snapshot: an event published in the
		// gap would otherwise be lost. Buffered events the snapshot already
		// reflects are harmless repeats.
		sub := env.Bus.Subscribe(jobID)
		defer env.Bus.Unsubscribe(sub)

		batch, err := env.Manager.Get(r.Context(), jobID)
		if err != nil {
			if eris.Is(err, job.ErrNotFound) {
				writeError(w, http.StatusNotFound, "batch not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		// opening snapshot so late subscribers see current state
		writeSSE(w, "snapshot", batch) //nolint:errcheck
		flusher.Flush()

		if batch.Status.Terminal() {
			return
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case event, ok := <-sub.C:
				if !ok {
					return
				}
				if err := writeSSE(w, string(event.Type), event); err != nil {
					return
				}
				flusher.Flush()
				if event.Type == model.EventBatchTerminal {
					return
				}
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
