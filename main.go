package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Dalmocabral/crewcenter/awards"
	"github.com/Dalmocabral/crewcenter/config"
	"github.com/Dalmocabral/crewcenter/events"
	"github.com/Dalmocabral/crewcenter/models"
	"github.com/Dalmocabral/crewcenter/routes"
	"github.com/Dalmocabral/crewcenter/tasks"
	"github.com/Dalmocabral/crewcenter/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(
		&models.User{},
		&models.Award{},
		&models.Leg{},
		&models.AllowedAircraft{},
		&models.AllowedOperatorCode{},
		&models.PirepFlight{},
		&models.UserAward{},
		&models.Notification{},
	)

	store := awards.NewGormStore(db)
	cache := utils.NewCache(utils.GetRedis())
	deps := awards.Deps{
		Progress: store,
		Flights:  store,
		Users:    store,
		Notifier: awards.NewNotifier(store, utils.Logger),
		Cache:    awards.NewRedisProgressCache(cache, time.Duration(cfg.ProgressCacheTTLSeconds)*time.Second),
		Logger:   utils.Logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var replay *tasks.Client
	if cfg.ReplayEnabled {
		replay = tasks.NewClient(cfg)
		deps.Replayer = replay
	}

	engine := awards.NewEngine(deps, awards.Config{
		MaxAttempts:          cfg.ReconcileMaxAttempts,
		RetryBackoff:         time.Duration(cfg.ReconcileRetryBackoffMs) * time.Millisecond,
		BroadcastConcurrency: cfg.BroadcastConcurrency,
	})
	bus := events.NewInMemoryBus(utils.Logger)
	engine.Subscribe(bus)

	if cfg.ReplayEnabled {
		worker := tasks.NewWorker(cfg, engine, utils.Logger)
		go worker.Run(ctx)
	}

	r := routes.SetupRouter(db, engine, bus, cache, utils.Logger)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	err := utils.GraceServer(ctx, ":"+cfg.AppPort, r, func() {
		bus.Wait()
		cancel()
		if replay != nil {
			if err := replay.Close(); err != nil {
				utils.Logger.Warn("replay client close failed", zap.Error(err))
			}
		}
	})
	if err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
