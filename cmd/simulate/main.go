// Command simulate replays demo emergency payloads against a running
// dashboard through POST /api/push, the way the reporting app would.
// With -preview it instead writes the canonical records the dashboard
// would derive, using a fixed clock so the output is reproducible.
//
// Usage:
//
//	go run ./cmd/simulate -target http://localhost:8080 -interval 3s
//	go run ./cmd/simulate -file data/demo.json -preview out/canonical.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/couchcryptid/rescuecom-dashboard/internal/adapter/demo"
	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
)

// previewTime pins the display time and age arithmetic of -preview output.
var previewTime = time.Date(2025, time.December, 28, 9, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	target := flag.String("target", "http://localhost:8080", "dashboard base URL")
	file := flag.String("file", "", "JSON array of raw payloads (default: bundled demo data)")
	interval := flag.Duration("interval", 2*time.Second, "delay between pushes")
	rounds := flag.Int("rounds", 1, "number of passes over the payloads (0 loops until interrupted)")
	preview := flag.String("preview", "", "write normalized records to this path instead of pushing")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	raws, err := demo.NewSource(*file, logger).Fetch(context.Background())
	if err != nil {
		return fmt.Errorf("load payloads: %w", err)
	}
	if len(raws) == 0 {
		return fmt.Errorf("no payloads to send")
	}

	if *preview != "" {
		return writePreview(*preview, raws)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := resty.New().
		SetBaseURL(*target).
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json")

	sent := 0
	for round := 0; *rounds == 0 || round < *rounds; round++ {
		for _, raw := range raws {
			if err := push(ctx, client, raw); err != nil {
				return err
			}
			sent++
			if !retry.SleepWithContext(ctx, *interval) {
				log.Printf("interrupted after %d pushes", sent)
				return nil
			}
		}
	}
	log.Printf("sent %d pushes", sent)
	return nil
}

func push(ctx context.Context, client *resty.Client, raw domain.RawEmergency) error {
	var accepted domain.Request
	resp, err := client.R().
		SetContext(ctx).
		SetBody(raw).
		SetResult(&accepted).
		Post("/api/push")
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push rejected: status %d: %s", resp.StatusCode(), resp.String())
	}
	log.Printf("%s %-6s %s", accepted.ID, accepted.Priority, accepted.Type)
	return nil
}

func writePreview(path string, raws []domain.RawEmergency) error {
	normalizer := domain.NewNormalizer(
		domain.WithClock(clockwork.NewFakeClockAt(previewTime)),
		domain.WithLocation(time.UTC),
	)
	reqs := normalizer.NormalizeAll(raws)

	counts := map[domain.Priority]int{}
	for _, r := range reqs {
		counts[r.Priority]++
	}

	data, err := json.MarshalIndent(reqs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	log.Printf("wrote %d records to %s (high=%d medium=%d low=%d)", len(reqs), path,
		counts[domain.PriorityHigh], counts[domain.PriorityMedium], counts[domain.PriorityLow])
	return nil
}
