// Package inference binds one logical worker to the HTTP client pool: it
// builds the chat-completion request, drives the streaming decoder, and
// produces exactly one Measurement per call, successful or failed.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/compressa-ai/compressa-perf/internal/data"
	"github.com/compressa-ai/compressa-perf/internal/otel"
	"github.com/compressa-ai/compressa-perf/internal/signing"
	"github.com/compressa-ai/compressa-perf/internal/streaming"
	"go.uber.org/zap"
)

// Request describes one chat-completion call to issue.
type Request struct {
	Endpoint  string
	Model     string
	Prompt    string
	MaxTokens int
}

// SigningMode selects how (or whether) a request is signed.
type SigningMode struct {
	Signer  *signing.Signer // nil => signing disabled
	OldSign bool
}

type wirePayload struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	StreamOpts  wireStreamOpt `json:"stream_options"`
	Nonce       uint32        `json:"_nonce"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireStreamOpt struct {
	IncludeUsage bool `json:"include_usage"`
}

// Runner executes one request against a shared HTTP client and yields one
// Measurement. A Runner is cheap and stateless aside from its RNG use for
// the request nonce; one is typically constructed per worker goroutine.
type Runner struct {
	client       *http.Client
	experimentID int64
	log          *zap.Logger
	rng          *rand.Rand
}

// New builds a Runner bound to client, recording measurements against
// experimentID.
func New(client *http.Client, experimentID int64, log *zap.Logger, seed int64) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		client:       client,
		experimentID: experimentID,
		log:          log,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// Run issues one streaming chat-completion request and returns the
// resulting Measurement. Transport and protocol failures are captured in
// the Measurement's status, not returned as errors — only a failure to
// construct the HTTP request itself (which indicates a programming error,
// not a runtime condition) is returned as an error.
func (r *Runner) Run(ctx context.Context, req Request, mode SigningMode) (data.Measurement, error) {
	tracer := otel.GetGlobalTracer()
	ctx, span := tracer.StartInferenceSpan(ctx, otel.InferenceSpanOptions{
		ExperimentID: fmt.Sprintf("%d", r.experimentID),
		Model:        req.Model,
	})
	defer span.End()

	m, err := r.run(ctx, req, mode)

	metrics := otel.GetGlobalMetrics()
	if err == nil {
		metrics.RecordRequest(ctx, m.Status == data.StatusSuccess, m.TTFT, m.EndTime-m.StartTime, m.NInput, m.NOutput)
		if m.Status != data.StatusSuccess {
			metrics.RecordFailure(ctx, "request")
		}
	}
	if err != nil {
		otel.RecordError(span, err, "internal", false)
	}
	return m, err
}

func (r *Runner) run(ctx context.Context, req Request, mode SigningMode) (data.Measurement, error) {
	body := wirePayload{
		Model:       req.Model,
		Messages:    []wireMessage{{Role: "user", Content: req.Prompt}},
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: 0.8,
		StreamOpts:  wireStreamOpt{IncludeUsage: true},
		Nonce:       r.rng.Uint32(),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return data.Measurement{}, fmt.Errorf("inference: marshal payload: %w", err)
	}

	start := nowSeconds()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return data.Measurement{}, fmt.Errorf("inference: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	if err := r.applySigning(httpReq, payload, mode); err != nil {
		return data.Measurement{}, fmt.Errorf("inference: sign request: %w", err)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		end := nowSeconds()
		r.log.Warn("transport error", zap.Error(err))
		return data.Failed(r.experimentID, start, end, 0, 0, 0), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		end := nowSeconds()
		msg := readErrorField(resp.Body)
		r.log.Warn("protocol error: non-2xx status",
			zap.Int("status", resp.StatusCode), zap.String("server_error", msg))
		return data.Failed(r.experimentID, start, end, 0, 0, 0), nil
	}

	return r.consumeStream(resp.Body, start)
}

func (r *Runner) consumeStream(body io.Reader, start float64) (data.Measurement, error) {
	dec := streaming.NewDecoder(body)

	var (
		contentChunks   int
		emptyTolerated  bool
		ttft            float64
		ttftSet         bool
		nInput, nOutput int
		sawUsage        bool
		sawDone         bool
	)

	for {
		ev, ok, err := dec.Next()
		if err != nil {
			end := nowSeconds()
			r.log.Warn("protocol error: stream read failed", zap.Error(err))
			return data.Failed(r.experimentID, start, end, nInput, nOutput, ttft), nil
		}
		if !ok {
			break
		}

		switch ev.Kind {
		case streaming.EventDone:
			sawDone = true
		case streaming.EventUsage:
			nInput, nOutput = ev.NInput, ev.NOutput
			sawUsage = true
		case streaming.EventContent:
			if ev.Content == "" {
				if emptyTolerated && !ttftSet {
					end := nowSeconds()
					r.log.Warn("protocol error: repeated empty first content chunk")
					return data.Failed(r.experimentID, start, end, nInput, nOutput, ttft), nil
				}
				if !ttftSet {
					emptyTolerated = true
					continue
				}
			}
			contentChunks++
			if !ttftSet {
				ttft = nowSeconds() - start
				ttftSet = true
			}
		}

		if sawDone {
			break
		}
	}

	end := nowSeconds()

	if contentChunks == 0 || !sawUsage {
		r.log.Warn("protocol error: incomplete stream",
			zap.Int("content_chunks", contentChunks), zap.Bool("saw_usage", sawUsage))
		return data.Failed(r.experimentID, start, end, nInput, nOutput, ttft), nil
	}

	return data.Succeeded(r.experimentID, start, end, nInput, nOutput, ttft), nil
}

func (r *Runner) applySigning(req *http.Request, payload []byte, mode SigningMode) error {
	if mode.Signer == nil {
		return nil
	}

	ts := time.Now().UnixNano()
	var (
		sig string
		err error
	)
	if mode.OldSign {
		sig, err = mode.Signer.SignLegacy(payload)
	} else {
		sig, err = mode.Signer.Sign(payload, ts, mode.Signer.Address)
	}
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", sig)
	req.Header.Set("X-Requester-Address", mode.Signer.Address)
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", ts))
	return nil
}

func readErrorField(r io.Reader) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	body, err := io.ReadAll(io.LimitReader(r, 64*1024))
	if err != nil {
		return ""
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return string(body)
	}
	return payload.Error.Message
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
