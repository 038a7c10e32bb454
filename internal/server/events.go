package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/SebastianCielma/RAG/internal/logging"
	"github.com/SebastianCielma/RAG/internal/ragerr"
	"github.com/SebastianCielma/RAG/internal/workflow"
)

// handleTrigger handles POST /api/events. It persists and enqueues one
// workflow run for the named event and replies 202 with the event ID; run
// progress is polled via GET /api/events/{id}/runs. The payload is handed
// to the run unparsed, so schema errors surface in the run's own status
// rather than here.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ragerr.New(ragerr.KindValidation, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, ragerr.New(ragerr.KindValidation, "event name is required"))
		return
	}

	var payload any
	if len(req.Data) > 0 {
		payload = req.Data
	}

	eventID, err := s.runner.Trigger(r.Context(), req.Name, payload)
	if err != nil {
		log.Warn("event rejected",
			slog.String("event", req.Name),
			slog.Any("error", err),
		)
		writeError(w, err)
		return
	}

	log.Info("event accepted",
		slog.String("event", req.Name),
		slog.String("event_id", eventID),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(eventResponse{IDs: []string{eventID}})
}

// handleRuns handles GET /api/events/{id}/runs. Unknown event IDs yield an
// empty data array rather than 404 so pollers can start before the trigger
// response lands.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	runs, err := s.runner.RunsForEvent(r.Context(), eventID)
	if err != nil {
		logging.FromContext(r.Context()).Error("run lookup failed",
			slog.String("event_id", eventID),
			slog.Any("error", err),
		)
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []workflow.RunStatus{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(runsResponse{Data: runs})
}
