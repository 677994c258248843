package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gymdex/gymdex-cli/internal/model"
	"github.com/gymdex/gymdex-cli/internal/resilience"
	"github.com/gymdex/gymdex-cli/internal/session"
	"github.com/gymdex/gymdex-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		reg := prometheus.NewRegistry()
		if err := env.Monitor.Register(reg); err != nil {
			return eris.Wrap(err, "register metrics")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env, reg),
		}

		// Graceful shutdown
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

func newRouter(env *appEnv, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/api/sessions", func(w http.ResponseWriter, req *http.Request) {
		filter := store.SessionFilter{
			Status: model.SessionStatus(req.URL.Query().Get("status")),
			Limit:  queryInt(req, "limit", 50),
			Offset: queryInt(req, "offset", 0),
		}
		sessions, err := env.Store.ListSessions(req.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if sessions == nil {
			sessions = []model.CrawlSession{}
		}
		writeJSON(w, http.StatusOK, sessions)
	})

	r.Get("/api/merged", func(w http.ResponseWriter, req *http.Request) {
		merged, err := env.Store.ListMerged(req.Context(),
			queryInt(req, "limit", 100), queryInt(req, "offset", 0))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if merged == nil {
			merged = []model.MergedRecord{}
		}
		writeJSON(w, http.StatusOK, merged)
	})

	r.Post("/api/crawl", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Limit       int `json:"limit"`
			Concurrency int `json:"concurrency"`
		}
		if req.Body != nil && req.ContentLength != 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
				return
			}
		}
		if env.Runner.Running() {
			writeError(w, http.StatusConflict, resilience.ErrSessionAlreadyRunning)
			return
		}

		// The session outlives this request.
		go func() {
			sess, err := env.Runner.Run(context.Background(), session.Options{
				Limit:            body.Limit,
				InnerConcurrency: body.Concurrency,
			})
			if err != nil {
				zap.L().Error("async crawl session failed", zap.Error(err))
				return
			}
			zap.L().Info("async crawl session complete", zap.String("session_id", sess.ID))
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(req *http.Request, key string, def int) int {
	raw := req.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
