package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/SebastianCielma/RAG/internal/retrieval"
)

// gatherCounter walks the gathered families for a counter with the given
// name and labels and returns its value, or -1 when absent.
func gatherCounter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for k, v := range labels {
				found := false
				for _, lp := range m.GetLabel() {
					if lp.GetName() == k && lp.GetValue() == v {
						found = true
						break
					}
				}
				if !found {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return -1
}

// Test_Metrics_ChatOutcomeRecorded verifies a completed chat request lands in
// the outcome counter and duration histogram.
func Test_Metrics_ChatOutcomeRecorded(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s := newHandlerTestServer(
		&fakeRetriever{ret: retrieval.Retrieved{
			ContextBlock: "[1] Source: a.txt\nAlpha.",
			Contexts:     []string{"Alpha."},
			Sources:      []string{"a.txt"},
		}},
		&fakeStreamer{fragments: []string{"done"}},
		nil,
	)
	s.metrics = newServerMetrics(reg)

	req := quietRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"question":"q"}`))
	s.handleChat(httptest.NewRecorder(), req)

	if got := gatherCounter(t, reg, "rag_chat_requests_total", map[string]string{"outcome": "ok"}); got != 1 {
		t.Errorf("rag_chat_requests_total{outcome=ok}: expected 1, got %v", got)
	}

	// The histogram must have exactly one observation for the same outcome.
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "rag_chat_duration_seconds" {
			continue
		}
		if n := mf.GetMetric()[0].GetHistogram().GetSampleCount(); n != 1 {
			t.Errorf("duration histogram: expected 1 sample, got %d", n)
		}
	}
}

// Test_Metrics_InvalidRequestCounted verifies rejected requests are counted
// under their own outcome.
func Test_Metrics_InvalidRequestCounted(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s := newHandlerTestServer(nil, nil, nil)
	s.metrics = newServerMetrics(reg)

	req := quietRequest(http.MethodPost, "/api/chat", strings.NewReader(`{}`))
	s.handleChat(httptest.NewRecorder(), req)

	if got := gatherCounter(t, reg, "rag_chat_requests_total", map[string]string{"outcome": "invalid"}); got != 1 {
		t.Errorf("rag_chat_requests_total{outcome=invalid}: expected 1, got %v", got)
	}
}

// Test_Metrics_ActiveStreamsGauge verifies the gauge tracks open streams.
func Test_Metrics_ActiveStreamsGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := newServerMetrics(reg)

	m.chatActiveStreams.Inc()
	m.chatActiveStreams.Inc()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() == "rag_chat_active_streams" {
			if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 2 {
				t.Errorf("expected active_streams=2, got %v", v)
			}
			return
		}
	}
	t.Error("rag_chat_active_streams not found in gathered metrics")
}

// Test_Metrics_HTTPRequestsLabelledByRoute verifies the full middleware
// chain counts requests under the mux pattern, and that GET /metrics then
// exposes them.
func Test_Metrics_HTTPRequestsLabelledByRoute(t *testing.T) {
	t.Parallel()

	s, reg := newFullTestServer(t, nil, nil, nil, nil)
	h := s.Handler()

	// Two requests to distinct event IDs must fold into one route series.
	for _, id := range []string{"ev-1", "ev-2"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events/"+id+"/runs", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GET runs: expected 200, got %d — body: %s", w.Code, w.Body.String())
		}
	}

	got := gatherCounter(t, reg, "rag_http_requests_total", map[string]string{
		"method": http.MethodGet,
		"route":  "/api/events/{id}/runs",
		"code":   "200",
	})
	if got != 2 {
		t.Errorf("expected one series with 2 hits for the runs route, got %v", got)
	}

	// The exposition endpoint serves through the same chain.
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics: expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "rag_http_requests_total") {
		t.Error("expected rag_http_requests_total in exposition output")
	}
}

// Test_Metrics_UnmatchedRouteCounted verifies requests that hit no pattern
// still land in the counter under a bounded label.
func Test_Metrics_UnmatchedRouteCounted(t *testing.T) {
	t.Parallel()

	s, reg := newFullTestServer(t, nil, nil, nil, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	got := gatherCounter(t, reg, "rag_http_requests_total", map[string]string{
		"route": "unmatched",
		"code":  "404",
	})
	if got != 1 {
		t.Errorf("expected unmatched route counted once, got %v", got)
	}
}
