// Package main runs a one-shot price backfill and/or max-since refresh.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mention-lab/internal/app"
	"mention-lab/internal/config"
	"mention-lab/internal/logging"
	"mention-lab/internal/orchestrator"
	"mention-lab/internal/pricing"
)

func main() {
	configPath := flag.String("config", os.Getenv("MENTIONLAB_CONFIG"), "Path to TOML config file")
	prices := flag.Bool("prices", true, "Backfill price at mention for unpriced mentions")
	maxSince := flag.Bool("max-since", true, "Recompute max price since mention for all mentions")
	limit := flag.Int("limit", -1, "Pending mentions to price (default from config, 0 = all)")
	workers := flag.Int("workers", 0, "Price workers (default from config)")
	flag.Parse()

	if !*prices && !*maxSince {
		fmt.Fprintln(os.Stderr, "nothing to do: --prices and --max-since are both false")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *limit >= 0 {
		cfg.Orchestrator.BatchSize = *limit
	}
	if *workers > 0 {
		cfg.Orchestrator.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger, app.Hooks{OnProgress: logProgress(logger)})
	if err != nil {
		logger.Fatal("wire application", zap.Error(err))
	}
	defer a.Close()

	if *prices {
		res, err := a.Orchestrator.BackfillPending(ctx)
		if err != nil {
			logger.Fatal("price backfill failed", zap.Error(err))
		}
		fmt.Printf("prices: total=%d ok=%d updated=%d failed=%d duration=%s\n",
			res.Total, res.OK, res.Updated, res.Failed, res.Duration.Round(time.Millisecond))
		reasons := make([]pricing.Reason, 0, len(res.Reasons))
		for r := range res.Reasons {
			reasons = append(reasons, r)
		}
		sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
		for _, r := range reasons {
			fmt.Printf("  %-16s %d\n", r, res.Reasons[r])
		}
	}

	if *maxSince {
		res, err := a.Orchestrator.MaxSince(ctx)
		if err != nil {
			logger.Fatal("max since failed", zap.Error(err))
		}
		fmt.Printf("max-since: tokens=%d mentions=%d priced=%d failed=%d duration=%s\n",
			res.Tokens, res.Mentions, res.Priced, res.Failed, res.Duration.Round(time.Millisecond))
	}
}

// logProgress logs phase snapshots as they arrive.
func logProgress(logger *zap.Logger) func(orchestrator.Progress) {
	return func(p orchestrator.Progress) {
		logger.Info("progress",
			zap.String("phase", string(p.Phase)),
			zap.Int("processed", p.Processed),
			zap.Int("total", p.Total),
			zap.Float64("percent", p.Percent),
			zap.Duration("eta", p.ETA),
			zap.Bool("done", p.Done),
		)
	}
}
