package runner

import (
	"context"
	"testing"
	"time"

	"github.com/compressa-ai/compressa-perf/internal/clientpool"
	"github.com/compressa-ai/compressa-perf/internal/store/writequeue"
)

func TestStressRunnerStopsOnCancelAndReachesTerminated(t *testing.T) {
	srv := streamingTestServer(t)
	defer srv.Close()

	s := openMemStore(t)
	expID, err := s.InsertExperiment(context.Background(), "stress-test", "")
	if err != nil {
		t.Fatalf("InsertExperiment: %v", err)
	}

	w := writequeue.New(s.DB(), nil, writequeue.Config{BatchSize: 2, FlushInterval: 10 * time.Millisecond})
	defer w.Close()

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

	sr := NewStress(cfg, 2, []string{"hello"}, 50*time.Millisecond, s)

	if sr.State() != StateRunning {
		t.Fatalf("expected initial state zero-value to read as StateRunning constant, got %v", sr.State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sr.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StressRunner.Run did not return after context cancellation")
	}

	if sr.State() != StateTerminated {
		t.Errorf("expected StateTerminated after Run returns, got %v", sr.State())
	}
}
