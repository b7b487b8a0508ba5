// Command audit recomputes every cached total from the ledger and exits
// non-zero when any of them has drifted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/sheikh-saqib/service-hours-ledger/internal/app"
	"github.com/sheikh-saqib/service-hours-ledger/internal/audit"
	"github.com/sheikh-saqib/service-hours-ledger/internal/config"
	"github.com/sheikh-saqib/service-hours-ledger/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logger.NewLogger("service-hours-audit")
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		return 2
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Error("open store", "error", err)
		return 2
	}
	defer store.Close()

	report, err := audit.Verify(ctx, store)
	if err != nil {
		log.Error("verify totals", "error", err)
		return 2
	}
	for _, drift := range report.Drifts {
		log.Warn("total drifted", "detail", drift.String())
	}
	log.Info("audit finished",
		"members", report.Members, "memberships", report.Memberships, "entries", report.Entries, "drifts", len(report.Drifts))
	if !report.OK() {
		return 1
	}
	return 0
}
