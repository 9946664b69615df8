// Package main runs a one-shot mention scan over a post time window.
//
// Usage:
//
//	scan --since 24h
//	scan --since 2024-01-09T00:00:00Z --until 2024-01-10T00:00:00Z --import posts.jsonl
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mention-lab/internal/app"
	"mention-lab/internal/config"
	"mention-lab/internal/domain"
	"mention-lab/internal/logging"
	"mention-lab/internal/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("MENTIONLAB_CONFIG"), "Path to TOML config file")
	since := flag.String("since", "24h", "Window start: RFC3339 time or duration before --until")
	until := flag.String("until", "", "Window end: RFC3339 time (default now)")
	importPath := flag.String("import", "", "JSONL file of posts to upsert before scanning")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
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

	end, start, err := parseWindow(*since, *until, time.Now())
	if err != nil {
		logger.Fatal("invalid window", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger, app.Hooks{})
	if err != nil {
		logger.Fatal("wire application", zap.Error(err))
	}
	defer a.Close()

	if *importPath != "" {
		n, err := importPosts(ctx, a.Stores.Posts, *importPath)
		if err != nil {
			logger.Fatal("import posts", zap.String("path", *importPath), zap.Error(err))
		}
		logger.Info("posts imported", zap.Int("count", n))
	}

	res, err := a.Orchestrator.ScanWindow(ctx, start, end)
	if err != nil {
		logger.Fatal("scan failed", zap.Error(err))
	}

	fmt.Printf("scanned=%d detected=%d inserted=%d updated=%d noop=%d unresolved=%d suppressed=%d duration=%s\n",
		res.Scanned, res.Detected, res.Inserted, res.Updated, res.Noop, res.Unresolved, res.Suppressed,
		res.Duration.Round(time.Millisecond))
}

// parseWindow returns [start, end]. since is an RFC3339 time or a duration
// counted back from end; an empty until means now.
func parseWindow(since, until string, now time.Time) (end, start time.Time, err error) {
	end = now
	if until != "" {
		end, err = time.Parse(time.RFC3339, until)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--until: %w", err)
		}
	}

	if d, derr := time.ParseDuration(since); derr == nil {
		start = end.Add(-d)
	} else {
		start, err = time.Parse(time.RFC3339, since)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--since: want duration or RFC3339 time, got %q", since)
		}
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("window start %s is not before end %s", start, end)
	}
	return end, start, nil
}

// postLine is one JSONL record of the import file.
type postLine struct {
	PostID    string    `json:"post_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func importPosts(ctx context.Context, posts storage.PostStore, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var batch []*domain.Post
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var pl postLine
		if err := json.Unmarshal(sc.Bytes(), &pl); err != nil {
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		if pl.PostID == "" {
			return 0, fmt.Errorf("line %d: post_id is required", line)
		}
		batch = append(batch, &domain.Post{
			PostID:       pl.PostID,
			AuthorHandle: pl.Author,
			Text:         pl.Text,
			CreatedAt:    pl.CreatedAt.UnixMilli(),
		})
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}

	if err := posts.Upsert(ctx, batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}
