package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-admin/internal/export"
	"github.com/sells-group/lead-admin/internal/importer"
	"github.com/sells-group/lead-admin/internal/model"
	"github.com/sells-group/lead-admin/internal/parser"
	"github.com/sells-group/lead-admin/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local control-plane server",
	Long:  "Serves the import session controls (start, status, pause, resume, cancel) and read endpoints for the lead collection on localhost.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		orch := importer.New(st, importer.NopSink{}, orchestratorOptions())

		// A fresh checkpoint left by an interrupted session is offered for
		// resumption: it comes back paused, ready for POST /import/resume.
		if cp, err := importer.FindResumable(ctx, st, cfg.Import.CheckpointTTL(), nil); err != nil {
			return err
		} else if cp != nil {
			if err := orch.Restore(cp.Session); err != nil {
				return err
			}
			zap.L().Info("unfinished import found; resume with POST /import/resume",
				zap.Int("cursor", cp.Session.CurrentBatchIndex),
				zap.Int("batches", len(cp.Session.Batches)),
			)
		}

		srv := &server{store: st, orch: orch, runCtx: ctx}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: srv.routes(),
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

// server holds the control-plane dependencies.
type server struct {
	store store.Store
	orch  *importer.Orchestrator

	// runCtx bounds background import sessions to the server lifetime.
	runCtx context.Context
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/import", func(r chi.Router) {
		r.Post("/", s.handleImportStart)
		r.Get("/status", s.handleImportStatus)
		r.Post("/pause", s.handleImportPause)
		r.Post("/resume", s.handleImportResume)
		r.Post("/cancel", s.handleImportCancel)
	})

	r.Get("/leads", s.handleLeads)
	r.Get("/export.csv", s.handleExportCSV)

	return r
}

// handleImportStart accepts raw pasted tabular text as the request body,
// parses it, and starts a session in the background.
func (s *server) handleImportStart(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	result := parser.Parse(string(raw), importDefaults())
	if len(result.Records) == 0 {
		writeError(w, http.StatusBadRequest, "no importable rows found")
		return
	}

	if err := s.orch.Load(result.Records); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.runInBackground()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":             "accepted",
		"records":            len(result.Records),
		"duplicates_removed": len(result.DuplicatesRemoved),
	})
}

func (s *server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"state":    s.orch.State(),
		"progress": s.orch.Progress(),
	}
	if res := s.orch.LastResult(); res != nil {
		resp["result"] = res
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleImportPause(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Pause(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pausing"})
}

func (s *server) handleImportResume(w http.ResponseWriter, r *http.Request) {
	if s.orch.State() != model.SessionPaused {
		writeError(w, http.StatusConflict, "session not paused")
		return
	}
	go func() {
		if _, err := s.orch.Resume(s.runCtx); err != nil && !errors.Is(err, context.Canceled) {
			zap.L().Error("resumed import session failed", zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "resuming"})
}

// handleImportCancel requires explicit confirmation (?confirm=true) before
// discarding the checkpoint. Committed writes are never rolled back.
func (s *server) handleImportCancel(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusBadRequest, "cancellation requires confirm=true")
		return
	}
	if err := s.orch.Cancel(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (s *server) handleLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := s.store.ReadCollection(r.Context())
	if err != nil {
		zap.L().Error("read collection", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "read collection")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(leads), "leads": leads})
}

func (s *server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	leads, err := s.store.ReadCollection(r.Context())
	if err != nil {
		zap.L().Error("read collection", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "read collection")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="leads.csv"`)
	if err := export.WriteCSV(w, leads); err != nil {
		zap.L().Error("export csv", zap.Error(err))
	}
}

func (s *server) runInBackground() {
	go func() {
		if _, err := s.orch.Run(s.runCtx); err != nil && !errors.Is(err, context.Canceled) {
			zap.L().Error("import session failed", zap.Error(err))
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
