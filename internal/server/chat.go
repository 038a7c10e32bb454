package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/SebastianCielma/RAG/internal/llm"
	"github.com/SebastianCielma/RAG/internal/logging"
	"github.com/SebastianCielma/RAG/internal/ragerr"
	"github.com/SebastianCielma/RAG/internal/retrieval"
)

// Chat outcome label values for the Prometheus counters.
const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
	outcomeInvalid = "invalid"
)

// handleChat handles POST /api/chat. The response is line-delimited: the
// first line is one JSON object with the retrieved sources and contexts,
// then raw answer fragments follow as they arrive from the model, flushed
// per fragment with no trailing framing. Generation failures after the
// first byte surface as an in-band notice at the end of the stream, never
// as an HTTP error.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.chatRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeError(w, ragerr.New(ragerr.KindValidation, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.metrics.chatRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeError(w, ragerr.New(ragerr.KindValidation, "question is required"))
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}

	// The stream has no WriteTimeout; this deadline is the only cap on a
	// wedged model call.
	ctx := r.Context()
	if s.cfg.ChatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ChatTimeout)
		defer cancel()
	}

	start := time.Now()

	found, err := s.retriever.Retrieve(ctx, req.Question, topK, req.SourceFilter)
	if err != nil {
		log.Error("retrieval failed", slog.Any("error", err))
		s.metrics.chatRequestsTotal.WithLabelValues(outcomeError).Inc()
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	rc := http.NewResponseController(w)

	// First line: metadata as one JSON object plus "\n" (Encode appends the
	// newline). Sources are kept raw and index-aligned with Contexts so the
	// client can resolve citation [i]; empty retrieval still sends the line
	// with empty arrays.
	meta := chatMetadata{Sources: found.Sources, Contexts: found.Contexts}
	if meta.Sources == nil {
		meta.Sources = []string{}
	}
	if meta.Contexts == nil {
		meta.Contexts = []string{}
	}
	if err := json.NewEncoder(w).Encode(meta); err != nil {
		s.metrics.chatRequestsTotal.WithLabelValues(outcomeError).Inc()
		return
	}
	if err := rc.Flush(); err != nil {
		log.Error("response not flushable", slog.Any("error", err))
		s.metrics.chatRequestsTotal.WithLabelValues(outcomeError).Inc()
		return
	}

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()

	outcome := outcomeOK

	if found.Empty() {
		// Nothing retrieved: answer without calling the model.
		_, _ = io.WriteString(w, retrieval.NoContextAnswer)
		_ = rc.Flush()
	} else {
		msgs := llm.BuildPrompt(req.Question, found.ContextBlock)

		for chunk := range s.streamer.StreamChat(ctx, msgs, req.Model) {
			if chunk.Err {
				outcome = outcomeError
			}
			if _, err := io.WriteString(w, chunk.Text); err != nil {
				log.Warn("client gone mid-stream", slog.Any("error", err))
				outcome = outcomeError
				break
			}
			_ = rc.Flush()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = outcomeTimeout
		}
	}

	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	log.Info("chat completed",
		slog.String("outcome", outcome),
		slog.Int("contexts", len(found.Contexts)),
		slog.Duration("duration", time.Since(start)),
	)
}
