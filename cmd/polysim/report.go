package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/polysim/config"
	"github.com/alejandrodnm/polysim/internal/adapters/export"
	"github.com/alejandrodnm/polysim/internal/adapters/notify"
)

// Default lookback for -report when the database holds a long history.
const reportLookback = 7 * 24 * time.Hour

// runReport prints the PnL history stored by previous runs. Only the
// SQLite backend has a read path; the XLSX books are for direct viewing.
func runReport(ctx context.Context, cfg *config.Config, console *notify.Console) {
	if cfg.Export.Format != "sqlite" {
		slog.Error("report mode needs the sqlite export backend", "format", cfg.Export.Format)
		os.Exit(1)
	}

	sink, err := export.NewSQLiteSink(cfg.Export.DSN)
	if err != nil {
		slog.Error("failed to open export database", "err", err, "dsn", cfg.Export.DSN)
		os.Exit(1)
	}
	defer sink.Close()

	now := time.Now()
	reports, err := sink.GetPnLReports(ctx, now.Add(-reportLookback), now)
	if err != nil {
		slog.Error("failed to read PnL history", "err", err)
		os.Exit(1)
	}

	rows := make([]notify.PnLHistoryRow, len(reports))
	for i, r := range reports {
		rows[i] = notify.PnLHistoryRow{
			RecordedAt:       r.RecordedAt,
			OpenCount:        r.OpenCount,
			RealizedPnLUSD:   r.RealizedPnLUSD,
			UnrealizedPnLUSD: r.UnrealizedPnLUSD,
			TotalPnLUSD:      r.TotalPnLUSD,
			SuccessRate:      r.SuccessRate,
		}
	}
	console.PrintPnLHistory(rows)
}
