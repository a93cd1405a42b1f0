package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/compressa-ai/compressa-perf/internal/clientpool"
	"github.com/compressa-ai/compressa-perf/internal/store"
	"github.com/compressa-ai/compressa-perf/internal/store/writequeue"
)

func streamingTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)

		chunk := func(v any) {
			b, _ := json.Marshal(v)
			w.Write([]byte("data:"))
			w.Write(b)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
		chunk(map[string]any{"choices": []map[string]any{{"delta": map[string]any{"content": "A"}}}})
		chunk(map[string]any{"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 1}})
		w.Write([]byte("data:[DONE]\n\n"))
		flusher.Flush()
	}))
}

func openMemStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open("file::memory:?cache=shared&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoundedRunnerDispatchesExactlyNumTasks(t *testing.T) {
	srv := streamingTestServer(t)
	defer srv.Close()

	s := openMemStore(t)
	expID, err := s.InsertExperiment(context.Background(), "bounded-test", "")
	if err != nil {
		t.Fatalf("InsertExperiment: %v", err)
	}

	w := writequeue.New(s.DB(), nil, writequeue.Config{BatchSize: 2, FlushInterval: 10 * time.Millisecond})

	pool := clientpool.New(clientpool.Config{NumRunners: 3})

	cfg := Config{
		Endpoint:     srv.URL,
		Model:        "test-model",
		MaxTokens:    16,
		ExperimentID: expID,
		Seed:         1,
		Pool:         pool,
		Writer:       w,
	}

	br := NewBounded(cfg, 3, 7, []string{"hello", "world"})
	br.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.WaitForWrite(ctx, time.Second); err != nil {
		t.Fatalf("WaitForWrite: %v", err)
	}
	w.Close()

	ms, err := s.Measurements(context.Background(), expID)
	if err != nil {
		t.Fatalf("Measurements: %v", err)
	}
	if len(ms) != 7 {
		t.Fatalf("expected 7 measurements, got %d", len(ms))
	}
}
