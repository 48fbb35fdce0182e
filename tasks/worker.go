package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Dalmocabral/crewcenter/apperr"
	"github.com/Dalmocabral/crewcenter/awards"
	"github.com/Dalmocabral/crewcenter/config"
)

// Reconciler replays an approved flight.
type Reconciler interface {
	ReconcileFlight(ctx context.Context, flight awards.FlightReviewed) error
}

// Worker consumes the replay queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	engine Reconciler
	log    *zap.Logger
}

func NewWorker(cfg config.AppConfig, engine Reconciler, log *zap.Logger) *Worker {
	concurrency := cfg.ReplayConcurrency
	if concurrency < 1 {
		concurrency = 2
	}
	server := asynq.NewServer(redisClientOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName(cfg): 1},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		engine: engine,
		log:    log.Named("replay"),
	}
	w.mux.HandleFunc(TaskReconcileFlight, w.handleReconcileFlight)
	return w
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}
	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("replay worker failed to start", zap.Error(err))
		return
	}
	<-ctx.Done()
	w.server.Shutdown()
}

func (w *Worker) handleReconcileFlight(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReconcileFlightPayload(task)
	if err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	err = w.engine.ReconcileFlight(ctx, payload.Flight())
	switch {
	case err == nil:
		w.log.Info("replayed reconciliation",
			zap.Uint("pirep_id", payload.PirepID),
			zap.Uint("pilot_id", payload.PilotID),
			zap.String("event_id", payload.EventID))
		return nil
	case apperr.IsRetryable(err):
		return err
	default:
		w.log.Error("replay dropped",
			zap.Uint("pirep_id", payload.PirepID),
			zap.Uint("pilot_id", payload.PilotID),
			zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
}
