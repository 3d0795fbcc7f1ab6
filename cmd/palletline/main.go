// Command palletline runs the warehouse event backbone: the HTTP command
// API, the outbox dispatcher, the agent consumer and the cron scheduler in
// one process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/palletline-systems/palletline-stack/internal/agent"
	"github.com/palletline-systems/palletline-stack/internal/agents"
	"github.com/palletline-systems/palletline-stack/internal/config"
	"github.com/palletline-systems/palletline-stack/internal/consumer"
	"github.com/palletline-systems/palletline-stack/internal/database"
	"github.com/palletline-systems/palletline-stack/internal/directory"
	"github.com/palletline-systems/palletline-stack/internal/eventstore"
	"github.com/palletline-systems/palletline-stack/internal/handlers"
	"github.com/palletline-systems/palletline-stack/internal/inventory"
	"github.com/palletline-systems/palletline-stack/internal/logging"
	natsbroker "github.com/palletline-systems/palletline-stack/internal/messaging/nats"
	"github.com/palletline-systems/palletline-stack/internal/outbox"
	"github.com/palletline-systems/palletline-stack/internal/scheduler"
	"github.com/palletline-systems/palletline-stack/internal/server"
	"github.com/palletline-systems/palletline-stack/internal/service"
	"github.com/palletline-systems/palletline-stack/internal/slotting"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	migrations := flag.String("migrations", "file://migrations", "migrations source URL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(log)

	if err := database.Migrate(cfg.Database.URL(), *migrations); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database.URL(), int32(cfg.Database.MaxConns))
	if err != nil {
		return err
	}
	defer pool.Close()

	js, err := natsbroker.NewJetStreamClient(natsbroker.Config{
		URL:           cfg.NATS.URL,
		Name:          cfg.NATS.Name,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		return err
	}
	defer js.Close()

	// Repositories. Every repository joins the transaction carried in the
	// context, which is what keeps the outbox transactional.
	inv := inventory.NewPostgresRepository(pool)
	store := eventstore.NewPostgresStore(pool)
	box := outbox.NewPostgresRepository(pool)
	dir := directory.NewPostgresDirectory(pool)
	mutator := inventory.NewMutator(inv)
	runTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return database.InTx(ctx, pool, fn)
	}

	// Agents.
	registry := agent.NewRegistry(log)
	registry.Register(agents.NewAuditTrailAgent())
	registry.Register(agents.NewSlottingAgent(inv, slotting.NewScorer(slotting.DefaultWeights())))
	registry.Register(agents.NewLowStockAgent(inv, inv))
	registry.Register(agents.NewExpiryAgent(inv))
	registry.Register(agents.NewFefoAgent(inv, inv, inv, inv, mutator))
	registry.Register(agents.NewAbcXyzAgent(inv, inv))
	registry.Register(agents.NewSafetyStockAgent(inv, inv))
	registry.Register(agents.NewForecastAgent(inv, inv))

	runtime := agent.NewRuntime(registry, agent.RuntimeConfig{
		Concurrency:     cfg.Agents.Concurrency,
		Timeout:         cfg.Agents.Timeout(),
		ContinueOnError: cfg.Agents.ContinueOnError,
	}, log)

	// Consumer with its idempotency guard.
	var guard consumer.Guard
	if cfg.Redis.Enabled {
		opts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := goredis.NewClient(opts)
		defer rdb.Close()
		guard = consumer.NewRedisGuard(rdb, cfg.Redis.GuardTTL)
	} else {
		guard = consumer.NewMemoryGuard(cfg.Redis.GuardTTL)
	}

	cons := consumer.New(runtime, js, store, guard, consumer.Config{
		MaxDeliver: cfg.Consumer.MaxRetries + 1,
		Prefetch:   cfg.Consumer.PrefetchCount,
	}, log)
	runner := consumer.NewRunner(cons, js)
	if err := runner.Start(ctx); err != nil {
		return err
	}
	defer runner.Stop()

	// Outbox dispatcher.
	if cfg.Outbox.MaxRetries > 0 {
		outbox.DefaultMaxRetries = cfg.Outbox.MaxRetries
	}
	dispatcher := outbox.NewDispatcher(box, js, outbox.DispatcherConfig{
		PollInterval: cfg.Dispatcher.PollInterval(),
		BatchSize:    cfg.Dispatcher.BatchSize,
	}, log)
	if err := dispatcher.Start(ctx); err != nil {
		return err
	}
	defer dispatcher.Stop()

	// Scheduler.
	if cfg.Scheduler.Enabled {
		jobs, err := scheduler.LoadJobs(cfg.Scheduler.JobsFile)
		if err != nil {
			return err
		}
		sched := scheduler.New(jobs, dir, store, box, runTx, cfg.Outbox.GCAge(), log)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
	}

	// HTTP front end.
	svc := service.New(inv, inv, inv, mutator, store, box, runTx, log)
	handler := handlers.NewHandler(svc, inv, store, box, log)
	srv := server.New(cfg.Server, handler, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logging.Error(err))
	}
	return nil
}
