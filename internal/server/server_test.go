package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SebastianCielma/RAG/internal/llm"
	"github.com/SebastianCielma/RAG/internal/logging"
	"github.com/SebastianCielma/RAG/internal/retrieval"
	"github.com/SebastianCielma/RAG/internal/workflow"
)

// ---------------------------------------------------------------------------
// Shared fakes
// ---------------------------------------------------------------------------

// fakeRetriever implements the retriever interface with canned results.
type fakeRetriever struct {
	// ret is returned by every Retrieve call when err is nil.
	ret retrieval.Retrieved
	// err, when set, fails every Retrieve call.
	err error

	calls       int
	gotQuestion string
	gotTopK     int
	gotFilter   string
}

func (f *fakeRetriever) Retrieve(_ context.Context, question string, topK int, filter string) (retrieval.Retrieved, error) {
	f.calls++
	f.gotQuestion = question
	f.gotTopK = topK
	f.gotFilter = filter
	if f.err != nil {
		return retrieval.Retrieved{}, f.err
	}
	return f.ret, nil
}

// fakeStreamer implements the streamer interface. It emits fragments in
// order, then the optional error fragment, then closes the channel.
type fakeStreamer struct {
	// fragments are emitted as plain token chunks.
	fragments []string
	// errText, when non-empty, is appended as the terminal Err chunk.
	errText string

	calls    int
	gotMsgs  []*schema.Message
	gotModel string
}

func (f *fakeStreamer) StreamChat(_ context.Context, msgs []*schema.Message, modelName string) <-chan llm.Chunk {
	f.calls++
	f.gotMsgs = msgs
	f.gotModel = modelName

	out := make(chan llm.Chunk, len(f.fragments)+1)
	for _, fr := range f.fragments {
		out <- llm.Chunk{Text: fr}
	}
	if f.errText != "" {
		out <- llm.Chunk{Text: f.errText, Err: true}
	}
	close(out)
	return out
}

// fakeRunner implements the runner interface.
type fakeRunner struct {
	// eventID is returned by Trigger when triggerErr is nil.
	eventID string
	// triggerErr, when set, fails every Trigger call.
	triggerErr error
	// runs is returned by RunsForEvent when runsErr is nil.
	runs []workflow.RunStatus
	// runsErr, when set, fails every RunsForEvent call.
	runsErr error

	gotEvent   string
	gotPayload any
	gotEventID string
}

func (f *fakeRunner) Trigger(_ context.Context, event string, payload any) (string, error) {
	f.gotEvent = event
	f.gotPayload = payload
	if f.triggerErr != nil {
		return "", f.triggerErr
	}
	return f.eventID, nil
}

func (f *fakeRunner) RunsForEvent(_ context.Context, eventID string) ([]workflow.RunStatus, error) {
	f.gotEventID = eventID
	if f.runsErr != nil {
		return nil, f.runsErr
	}
	return f.runs, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// quietRequest builds a test request whose context carries a discard logger
// so handlers do not write to test output.
func quietRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(logging.WithLogger(req.Context(), logging.Discard()))
}

// newHandlerTestServer builds a bare *Server for direct handler calls,
// bypassing New and the middleware chain.
func newHandlerTestServer(ret retriever, str streamer, run runner) *Server {
	if ret == nil {
		ret = &fakeRetriever{}
	}
	if str == nil {
		str = &fakeStreamer{}
	}
	if run == nil {
		run = &fakeRunner{}
	}
	return &Server{
		retriever: ret,
		streamer:  str,
		runner:    run,
		cfg:       &Config{ChatTimeout: time.Minute},
		log:       logging.Discard(),
		metrics:   newServerMetrics(nil),
	}
}

// newFullTestServer builds a Server through New so requests traverse the
// whole middleware chain via s.Handler(). The rate limiter's eviction
// goroutine is stopped on cleanup.
func newFullTestServer(t *testing.T, cfg *Config, ret retriever, str streamer, run runner) (*Server, *prometheus.Registry) {
	t.Helper()

	if ret == nil {
		ret = &fakeRetriever{}
	}
	if str == nil {
		str = &fakeStreamer{}
	}
	if run == nil {
		run = &fakeRunner{eventID: "ev-test"}
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = prometheus.NewRegistry()
	}

	s, err := New(ret, str, run, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s, cfg.Metrics
}

// decodeErrorBody unmarshals a JSON error reply.
func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v — body: %s", err, w.Body.String())
	}
	return resp
}

// ---------------------------------------------------------------------------
// New — dependency validation and defaults
// ---------------------------------------------------------------------------

func Test_New_RequiresDependencies(t *testing.T) {
	t.Parallel()

	cfg := &Config{Logger: logging.Discard(), Metrics: prometheus.NewRegistry()}

	if _, err := New(nil, &fakeStreamer{}, &fakeRunner{}, cfg); err == nil {
		t.Error("expected error for nil retriever")
	}
	if _, err := New(&fakeRetriever{}, nil, &fakeRunner{}, cfg); err == nil {
		t.Error("expected error for nil streamer")
	}
	if _, err := New(&fakeRetriever{}, &fakeStreamer{}, nil, cfg); err == nil {
		t.Error("expected error for nil runner")
	}
}

func Test_New_FillsDefaults(t *testing.T) {
	t.Parallel()

	s, _ := newFullTestServer(t, nil, nil, nil, nil)

	if s.cfg.Host != "0.0.0.0" {
		t.Errorf("Host: expected 0.0.0.0, got %q", s.cfg.Host)
	}
	if s.cfg.Port != 8000 {
		t.Errorf("Port: expected 8000, got %d", s.cfg.Port)
	}
	if s.cfg.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout: expected 30s, got %v", s.cfg.ReadTimeout)
	}
	if s.cfg.ChatTimeout != 5*time.Minute {
		t.Errorf("ChatTimeout: expected 5m, got %v", s.cfg.ChatTimeout)
	}
	if s.cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout: expected 10s, got %v", s.cfg.ShutdownTimeout)
	}
	if s.httpServer.Addr != "0.0.0.0:8000" {
		t.Errorf("Addr: expected 0.0.0.0:8000, got %q", s.httpServer.Addr)
	}
	if s.httpServer.WriteTimeout != 0 {
		t.Errorf("WriteTimeout: expected 0 for streaming, got %v", s.httpServer.WriteTimeout)
	}
}

// ---------------------------------------------------------------------------
// Route layout — auth exemptions through the full chain
// ---------------------------------------------------------------------------

// Test_Routes_AuthProtectsAPI verifies that with an API key configured the
// /api/ routes demand a Bearer token while /health and /api/ready stay open.
func Test_Routes_AuthProtectsAPI(t *testing.T) {
	t.Parallel()

	s, _ := newFullTestServer(t, &Config{APIKey: "secret"}, nil, nil, nil)
	h := s.Handler()

	// Liveness and readiness must work unauthenticated.
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /health: expected 200 without token, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /api/ready: expected 200 without token, got %d", w.Code)
	}

	// A protected route without a token is rejected.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/events",
		strings.NewReader(`{"name":"rag/list_documents"}`)))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/events: expected 401 without token, got %d", w.Code)
	}

	// The same route with the token reaches the handler.
	req := httptest.NewRequest(http.MethodPost, "/api/events",
		strings.NewReader(`{"name":"rag/list_documents"}`))
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("POST /api/events: expected 202 with token, got %d — body: %s",
			w.Code, w.Body.String())
	}
}

// Test_Routes_MethodNotAllowed verifies the mux rejects wrong methods on
// registered paths.
func Test_Routes_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	s, _ := newFullTestServer(t, nil, nil, nil, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/chat: expected 405, got %d", w.Code)
	}
}

// Test_Routes_ChatThroughFullChain drives a chat request through logging,
// metrics, auth, and rate-limit middleware to prove streaming still works
// behind the wrapped ResponseWriters.
func Test_Routes_ChatThroughFullChain(t *testing.T) {
	t.Parallel()

	ret := &fakeRetriever{ret: retrieval.Retrieved{
		ContextBlock: "[1] Source: a.txt\nAlpha.",
		Contexts:     []string{"Alpha."},
		Sources:      []string{"a.txt"},
	}}
	str := &fakeStreamer{fragments: []string{"Hello ", "world."}}

	s, _ := newFullTestServer(t, nil, ret, str, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"question":"What is alpha?"}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	idx := strings.IndexByte(body, '\n')
	if idx < 0 {
		t.Fatalf("expected metadata line, got body %q", body)
	}
	if rest := body[idx+1:]; rest != "Hello world." {
		t.Errorf("expected streamed answer after metadata, got %q", rest)
	}
	if !w.Flushed {
		t.Error("expected response to be flushed through the middleware chain")
	}
}
