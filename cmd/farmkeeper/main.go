package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farmkeeper/farmkeeper/internal/breaker"
	"github.com/farmkeeper/farmkeeper/internal/cache"
	"github.com/farmkeeper/farmkeeper/internal/cli"
	"github.com/farmkeeper/farmkeeper/internal/config"
	"github.com/farmkeeper/farmkeeper/internal/events"
	"github.com/farmkeeper/farmkeeper/internal/logging"
	"github.com/farmkeeper/farmkeeper/internal/netx"
	"github.com/farmkeeper/farmkeeper/internal/remote"
	"github.com/farmkeeper/farmkeeper/internal/serializer"
	"github.com/farmkeeper/farmkeeper/internal/store"
	"github.com/farmkeeper/farmkeeper/internal/syncer"
	"github.com/farmkeeper/farmkeeper/internal/vault"
)

// probeTimeout bounds a single connectivity ping.
const probeTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "farmkeeper:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	log := logging.NewText(os.Stderr, slog.LevelWarn)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	writes := serializer.New(cfg.WriteQueueCapacity, cfg.WriteWarnWait, log)

	st, err := store.Open(ctx, store.Config{
		Path:          cfg.DatabasePath,
		InitAttempts:  cfg.StoreInitAttempts,
		InitBaseDelay: cfg.StoreInitBaseDelay,
	}, writes, log)
	if err != nil {
		writes.Close()
		return fmt.Errorf("opening store: %w", err)
	}

	client := remote.NewHTTPClient(cfg.ServerBaseURL, cfg.RequestTimeout, log)
	monitor := netx.NewMonitor(client, cfg.OnlineCheckInterval, probeTimeout, log)

	breakers := breaker.NewRegistry(breaker.Settings{}, log)
	breakers.Configure(syncer.BreakerAPI, breaker.Settings{
		FailureThreshold: cfg.APIBreaker.FailureThreshold,
		Cooldown:         cfg.APIBreaker.Cooldown,
		Timeout:          cfg.APIBreaker.Timeout,
	})
	breakers.Configure(syncer.BreakerSync, breaker.Settings{
		FailureThreshold: cfg.SyncBreaker.FailureThreshold,
		Cooldown:         cfg.SyncBreaker.Cooldown,
		Timeout:          cfg.SyncBreaker.Timeout,
	})

	bus := events.NewBus(log)

	orch, err := syncer.New(syncer.Deps{
		Store:    st,
		Writes:   writes,
		Remote:   client,
		Breakers: breakers,
		Cache:    cache.New(cfg.CacheTTL, log),
		Vault:    vault.New(st, vault.AllowAll, log),
		Monitor:  monitor,
		Bus:      bus,
		Log:      log,
	}, syncer.Config{
		SyncInterval: cfg.SyncInterval,
		MaxAttempts:  cfg.SyncMaxAttempts,
		SummaryTTL:   cfg.CacheTTL,
	})
	if err != nil {
		return err
	}

	go monitor.Run(ctx)
	go orch.Run(ctx)

	app := cli.NewApp(cfg, orch, bus, log)
	app.Run(ctx)

	// The REPL is done; stop background work, then flush and close in
	// dependency order (queue drains into the store, so it goes first).
	stop()
	bus.Close()
	writes.Close()
	if err := st.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}
