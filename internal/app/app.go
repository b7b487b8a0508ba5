// Package app wires configuration, storage, event publishing and the ledger
// components into one runnable unit.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/sheikh-saqib/service-hours-ledger/internal/awards"
	"github.com/sheikh-saqib/service-hours-ledger/internal/config"
	"github.com/sheikh-saqib/service-hours-ledger/internal/enrollment"
	eventbus "github.com/sheikh-saqib/service-hours-ledger/internal/events"
	"github.com/sheikh-saqib/service-hours-ledger/internal/events/kafka"
	"github.com/sheikh-saqib/service-hours-ledger/internal/interfaces"
	"github.com/sheikh-saqib/service-hours-ledger/internal/ledger"
	"github.com/sheikh-saqib/service-hours-ledger/internal/lifecycle"
	"github.com/sheikh-saqib/service-hours-ledger/internal/logger"
	"github.com/sheikh-saqib/service-hours-ledger/internal/membership"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage/postgres"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage/sqlite"
)

type App struct {
	Config      config.Config
	Store       interfaces.Store
	Memberships *membership.Registry
	Ledger      *ledger.Ledger
	Lifecycle   *lifecycle.Manager
	Enrollment  *enrollment.Enroller
	Awards      *awards.Resolver

	log     *logger.Logger
	closers []func() error
}

// New opens the configured store, seeds award tiers and builds every
// component on top of it.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Store: store, log: log}
	a.closers = append(a.closers, store.Close)

	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	roles, err := cfg.Roles()
	if err != nil {
		return err
	}

	var publisher interfaces.EventPublisher = eventbus.Discard{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, kp.Close)
		publisher = kp
		a.log.Info("publishing ledger events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	if cfg.AwardsFile != "" {
		tiers, err := awards.LoadFile(cfg.AwardsFile)
		if err != nil {
			return err
		}
		if err := a.Store.ReplaceAwardTiers(ctx, tiers); err != nil {
			return fmt.Errorf("seed award tiers: %w", err)
		}
		a.log.Info("award tiers seeded", "file", cfg.AwardsFile, "tiers", len(tiers))
	}
	tiers, err := a.Store.ListAwardTiers(ctx)
	if err != nil {
		return fmt.Errorf("list award tiers: %w", err)
	}
	a.Awards = awards.NewResolver(tiers)

	a.Memberships = membership.NewRegistry(a.Store,
		membership.WithPublisher(publisher),
		membership.WithLogger(a.log))
	a.Ledger = ledger.NewLedger(a.Store, a.Memberships,
		ledger.WithPublisher(publisher),
		ledger.WithLogger(a.log),
		ledger.WithLocation(loc),
		ledger.WithLimits(ledger.Limits{MaxHours: cfg.MaxEntryHours, MaxDescription: cfg.MaxDescription}))
	a.Lifecycle = lifecycle.NewManager(a.Store, a.Memberships, a.Ledger,
		lifecycle.WithPublisher(publisher),
		lifecycle.WithLogger(a.log),
		lifecycle.WithMaxGroupName(cfg.MaxGroupName))
	a.Enrollment = enrollment.NewEnroller(a.Store, enrollment.Settings{
		RoleNames:          roles,
		EmailDomain:        cfg.EmailDomain,
		ProfilePlaceholder: cfg.ProfilePlaceholder,
	}, enrollment.WithPublisher(publisher), enrollment.WithLogger(a.log))
	return nil
}

// Close releases the publisher and the store, newest first.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}

// OpenStore opens the store kind named by cfg.Store.
func OpenStore(ctx context.Context, cfg config.Config) (interfaces.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.NewMemoryLedgerStore(), nil
	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
