// File: cmd/probe/main.go
//
// Smoke probe for the remote image-transformation endpoint. Submits one
// job, polls it to a terminal state and saves the result. By design the
// process always exits 0: this is a best-effort connectivity probe, not
// a correctness check, and it must never fail a build pipeline.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"runpod-probe/internal/config"
	"runpod-probe/internal/infra/logging"
	"runpod-probe/internal/infra/runpod"
	"runpod-probe/internal/probe"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode (console logs)")
	flag.Parse()

	// Optional .env for local runs; CI sets real env vars.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		// Even a broken config file must not fail the pipeline.
		log.Printf("config: %v (continuing with defaults)", err)
		cfg = config.Default(*devMode)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	ctx := logging.WithTraceID(context.Background(), uuid.NewString())
	runLog := logging.With(ctx, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := runpod.NewClient(cfg.Probe.BaseURL, cfg.Probe.APIKey, runLog)
	rep := probe.New(client, cfg.Probe, runLog).Run(ctx)

	evt := runLog.Info().
		Str("outcome", string(rep.Outcome)).
		Int("polls", rep.Polls).
		Dur("elapsed", rep.Elapsed)
	if rep.JobID != "" {
		evt = evt.Str("job_id", rep.JobID)
	}
	if rep.FinalStatus != "" {
		evt = evt.Str("final_status", string(rep.FinalStatus))
	}
	if rep.ResultPath != "" {
		evt = evt.Str("result", rep.ResultPath)
	}
	evt.Msg(rep.Message)

	os.Exit(0)
}
