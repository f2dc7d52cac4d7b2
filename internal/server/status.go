// Package server exposes a read-only operator surface for the pipeline.
// It reports progress; it takes no part in the ingestion control path.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/videre-project/MTGOBot/internal/service"
)

type StatusServer struct {
	worker *service.Worker
}

func NewStatusServer(worker *service.Worker) *StatusServer {
	return &StatusServer{worker: worker}
}

type statusResponse struct {
	LastDrain    *time.Time `json:"last_drain,omitempty"`
	LastBackfill *time.Time `json:"last_backfill,omitempty"`
	QueueReady   int        `json:"queue_ready"`
	QueueWaiting int        `json:"queue_waiting"`
}

func (s *StatusServer) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *StatusServer) Status(w http.ResponseWriter, r *http.Request) {
	lastDrain, lastBackfill, ready, upcoming := s.worker.Snapshot()

	resp := statusResponse{
		QueueReady:   ready,
		QueueWaiting: upcoming,
	}
	if !lastDrain.IsZero() {
		resp.LastDrain = &lastDrain
	}
	if !lastBackfill.IsZero() {
		resp.LastBackfill = &lastBackfill
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
