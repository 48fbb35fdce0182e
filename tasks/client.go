package tasks

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/Dalmocabral/crewcenter/awards"
	"github.com/Dalmocabral/crewcenter/config"
)

// Client enqueues reconciliation replays.
type Client struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

func redisClientOpt(cfg config.AppConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

func queueName(cfg config.AppConfig) string {
	if cfg.ReplayQueue == "" {
		return "reconcile"
	}
	return cfg.ReplayQueue
}

func NewClient(cfg config.AppConfig) *Client {
	return &Client{
		client:   asynq.NewClient(redisClientOpt(cfg)),
		queue:    queueName(cfg),
		maxRetry: cfg.ReplayMaxRetry,
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleReplay queues flight for another reconciliation attempt. A replay
// already queued for the same PIREP is left in place.
func (c *Client) ScheduleReplay(ctx context.Context, flight awards.FlightReviewed) error {
	if c == nil || c.client == nil {
		return nil
	}
	task, err := NewReconcileFlightTask(PayloadFromFlight(flight))
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Queue(c.queue), asynq.TaskID(replayTaskID(flight.PirepID))}
	if c.maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(c.maxRetry))
	}
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}
