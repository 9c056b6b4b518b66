// Package api exposes the export control surface over HTTP: trigger an
// export, poll job status, discover the current active job, and sync or
// delete individual products. Start and status never block on the remote
// sink; only the asynchronously-scheduled batch step talks to it.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/you/qragasync/internal/catalog"
	"github.com/you/qragasync/internal/export"
	"github.com/you/qragasync/internal/sink"
)

type Server struct {
	ctrl   *export.Controller
	syncer *export.ItemSyncer
	log    *zap.Logger
}

func NewServer(ctrl *export.Controller, syncer *export.ItemSyncer, log *zap.Logger) *Server {
	return &Server{ctrl: ctrl, syncer: syncer, log: log}
}

func (s *Server) Router() http.Handler {
	rtr := chi.NewRouter()
	rtr.Use(middleware.RequestID)
	rtr.Use(middleware.RealIP)
	rtr.Use(s.requestLogger)
	rtr.Use(middleware.Recoverer)

	rtr.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	rtr.Handle("/metrics", promhttp.Handler())

	rtr.Route("/v1", func(rtr chi.Router) {
		rtr.Post("/export", s.startExport)
		rtr.Get("/export/current", s.currentActiveJob)
		rtr.Get("/export/{jobID}", s.jobStatus)
		rtr.Post("/products/{id}/sync", s.syncProduct)
		rtr.Delete("/products/{id}", s.deleteProduct)
	})
	return rtr
}

func (s *Server) startExport(w http.ResponseWriter, r *http.Request) {
	res, err := s.ctrl.Start(r.Context())
	switch {
	case errors.Is(err, sink.ErrNotConfigured):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, export.ErrScheduling):
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	case err != nil:
		s.log.Error("start export failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to start export")
		return
	}
	code := http.StatusOK
	if res.Status == export.StartQueued {
		code = http.StatusAccepted
	}
	respond(w, code, res)
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	rec, err := s.ctrl.JobStatus(r.Context(), jobID)
	if err != nil {
		s.log.Error("job status lookup failed", zap.String("job_id", jobID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load job status")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "export job not found or expired")
		return
	}
	respond(w, http.StatusOK, rec)
}

func (s *Server) currentActiveJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ctrl.CurrentActiveJob(r.Context())
	if err != nil {
		s.log.Error("active job lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to resolve active job")
		return
	}
	if rec == nil {
		respond(w, http.StatusOK, map[string]string{"status": "no_active_job"})
		return
	}
	respond(w, http.StatusOK, rec)
}

func (s *Server) syncProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	action, err := s.syncer.SyncProduct(r.Context(), id)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		respondError(w, http.StatusNotFound, "product not found")
		return
	case errors.Is(err, export.ErrNotSyncable):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, sink.ErrNotConfigured):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error("product sync failed", zap.Int64("product_id", id), zap.Error(err))
		respondError(w, http.StatusBadGateway, "product sync failed: "+err.Error())
		return
	}
	respond(w, http.StatusOK, map[string]any{"product_id": id, "action": action})
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	err := s.syncer.DeleteProduct(r.Context(), id)
	switch {
	case errors.Is(err, sink.ErrNotConfigured):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error("product delete failed", zap.Int64("product_id", id), zap.Error(err))
		respondError(w, http.StatusBadGateway, "product delete failed: "+err.Error())
		return
	}
	respond(w, http.StatusOK, map[string]any{"product_id": id, "action": export.ActionDeleted})
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respond(w, code, map[string]string{"error": msg})
}
