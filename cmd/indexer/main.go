// Command indexer loads optional seed matches into the store, builds the
// player and champion indexes once and reports the most frequent entities.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	seedPath := flag.String("seed", "", "JSON file with an array of matches to load before indexing")
	top := flag.Int("top", 5, "entities to report per index")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *seedPath, *top); err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, seedPath string, top int) error {
	matches, err := store.Open(ctx, *cfg, nil)
	if err != nil {
		return fmt.Errorf("opening match store: %w", err)
	}
	defer matches.Close()

	if seedPath != "" {
		records, err := readSeed(seedPath)
		if err != nil {
			return err
		}
		inserted, err := matches.Save(ctx, records...)
		if err != nil {
			return fmt.Errorf("loading seed matches: %w", err)
		}
		slog.Info("seed matches loaded", "file", seedPath, "read", len(records), "inserted", inserted)
	}

	mgr := index.NewManager(matches, cfg.Index, nil)
	res, err := mgr.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("building indexes: %w", err)
	}

	fmt.Printf("indexed %d matches in %s (rebuild %s)\n", res.Records, res.Duration.Round(time.Millisecond), res.ID)
	for _, report := range res.Reports {
		fmt.Printf("\n%s index: %d entities, %d records indexed, %d skipped\n",
			report.Kind, report.Entities, report.Indexed, report.Skipped)
		ix, _ := mgr.ByKind(report.Kind)
		for i, e := range ix.Top(top) {
			fmt.Printf("  %d. %s: %d matches\n", i+1, e.Key, e.Count)
		}
	}
	return nil
}

func readSeed(path string) ([]match.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var records []match.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return records, nil
}
