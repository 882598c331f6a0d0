// Command obsync-tail follows the dashboard's log stream in a terminal.
// It wires a logs view the same way a dashboard page would: paginated
// history, live prepends over the websocket, and filter state from
// flags instead of a URL bar.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/glasswing/obsync/internal/config"
	"github.com/glasswing/obsync/internal/logging"
	"github.com/glasswing/obsync/pkg/client"
	"github.com/glasswing/obsync/pkg/colorstore"
	"github.com/glasswing/obsync/pkg/pagestore"
	"github.com/glasswing/obsync/pkg/views"
)

func main() {
	if err := run(); err != nil {
		slog.Error("obsync-tail failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	var (
		baseURL = pflag.String("base-url", cfg.BaseURL, "dashboard Data API base URL")
		appName = pflag.String("app", "", "only show records for this application")
		level   = pflag.String("level", "", "only show records at this severity")
		session = pflag.String("session", "", "only show records for this session")
		limit   = pflag.Int("limit", cfg.PageSize, "history page size")
		noLive  = pflag.Bool("no-live", false, "disable the live stream, rely on polling")
		poll    = pflag.Bool("poll", false, "poll for new records in the background")
	)
	pflag.Parse()
	cfg.BaseURL = *baseURL
	cfg.PageSize = *limit

	cleanup, err := logging.Setup(logging.Config{
		Level:      cfg.LogLevel,
		FilePath:   cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	})
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	api := client.New(client.WithBaseURL(cfg.BaseURL))
	colors := colorstore.Open(cfg.ColorMapPath)

	view, err := views.NewLogsView(views.Deps{Client: api, Config: cfg})
	if err != nil {
		return fmt.Errorf("creating logs view: %w", err)
	}
	defer view.Close()

	var mu sync.Mutex
	printed := make(map[string]bool)
	cancelSub := view.Subscribe(func(snap pagestore.Snapshot[client.LogRecord]) {
		if snap.Err != nil {
			slog.Warn("fetch failed", "error", snap.Err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		// Records accumulate head-first, so walk backwards to print
		// oldest-unseen first.
		for i := len(snap.Items) - 1; i >= 0; i-- {
			rec := snap.Items[i]
			if printed[rec.ID] {
				continue
			}
			printed[rec.ID] = true
			printRecord(rec, colors)
		}
	})
	defer cancelSub()

	filters := map[string]any{}
	if *appName != "" {
		filters["appName"] = *appName
	}
	if *level != "" {
		filters["level"] = *level
	}
	if *session != "" {
		filters["sessionId"] = *session
	}
	if len(filters) > 0 {
		view.SetFilters(ctx, filters)
	}

	if err := view.Activate(ctx); err != nil {
		return fmt.Errorf("activating view: %w", err)
	}
	if *noLive {
		view.SetLiveMode(false)
	}
	if *poll {
		view.TogglePolling(ctx)
	}

	slog.Info("tailing logs", "base_url", cfg.BaseURL, "live", !*noLive)
	<-ctx.Done()
	slog.Info("stopped")
	return nil
}

func printRecord(rec client.LogRecord, colors *colorstore.Store) {
	fmt.Printf("%s %-5s [%s/%s] %s\n",
		rec.Timestamp.Format(time.RFC3339),
		rec.Level,
		colors.ColorFor(rec.AppName),
		rec.AppName,
		rec.Message,
	)
}
