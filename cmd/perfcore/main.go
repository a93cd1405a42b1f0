// Command perfcore runs one load-generation experiment against an
// OpenAI-compatible streaming chat-completion endpoint and persists its
// measurements and metrics to a local SQLite database. It is a manual
// smoke-test harness standing in for the out-of-scope CLI/YAML
// collaborator that would normally assemble a RunConfig from a config
// file or richer flag set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/compressa-ai/compressa-perf/internal/config"
	"github.com/compressa-ai/compressa-perf/internal/harness"
	"github.com/compressa-ai/compressa-perf/internal/prompt"
	"github.com/compressa-ai/compressa-perf/internal/sysinfo"
)

func main() {
	endpoint := flag.String("endpoint", "", "chat-completion endpoint URL (required)")
	model := flag.String("model", "", "model name sent in the request body")
	numRunners := flag.Int("runners", 10, "number of concurrent worker goroutines")
	numTasks := flag.Int("tasks", 0, "total requests to issue; 0 selects continuous stress mode")
	maxTokens := flag.Int("max-tokens", 256, "max_tokens sent in the request body")
	reportFreq := flag.Duration("report-freq", config.DefaultReportFrequency, "stress-mode window period")
	promptLen := flag.Int("prompt-len", 500, "target length of generated prompts")
	promptCount := flag.Int("prompt-count", 50, "number of distinct generated prompts to cycle through")
	seed := flag.Int64("seed", config.DefaultSeed, "seed for prompt generation and per-worker request nonces")
	dbPath := flag.String("db", "compressa-perf.db", "path to the SQLite database file")
	experimentName := flag.String("name", "experiment", "experiment name recorded in the store")

	signEnabled := flag.Bool("sign", false, "enable request signing")
	oldSign := flag.Bool("old-sign", false, "use legacy signing (payload-only, no timestamp/address mixed in)")
	privateKeyHex := flag.String("private-key", "", "hex-encoded secp256k1 private key (required when -sign is set)")
	requesterAddress := flag.String("address", "", "address reported in X-Requester-Address and mixed into the signature")

	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfcore: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if warn := sysinfo.CheckLimits(*numRunners); warn != "" {
		log.Warn("perfcore: system limits check", zap.String("detail", warn))
	}

	prompts := prompt.New(*seed).GenerateBatch(*promptCount, *promptLen)

	cfg := harness.RunConfig{
		ExperimentName: *experimentName,
		Endpoint:       *endpoint,
		ModelName:      *model,
		NumRunners:     *numRunners,
		NumTasks:       *numTasks,
		Prompts:        prompts,
		MaxTokens:      *maxTokens,
		ReportFreq:     *reportFreq,
		Seed:           *seed,
		DBPath:         *dbPath,
		Signing: harness.SigningConfig{
			Enabled:          *signEnabled,
			OldSign:          *oldSign,
			PrivateKeyHex:    strings.TrimSpace(*privateKeyHex),
			RequesterAddress: *requesterAddress,
		},
	}

	h, err := harness.New(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfcore: %v\n", err)
		os.Exit(1)
	}
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nperfcore: shutdown signal received, draining in-flight requests...")
		cancel()
	}()

	expID, err := h.Run(ctx, cfg)
	if err != nil {
		log.Error("experiment failed", zap.Error(err))
		os.Exit(1)
	}

	fmt.Printf("perfcore: experiment %d complete\n", expID)
}
