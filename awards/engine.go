package awards

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Dalmocabral/crewcenter/apperr"
	"github.com/Dalmocabral/crewcenter/events"
	"github.com/Dalmocabral/crewcenter/metrics"
	"github.com/Dalmocabral/crewcenter/models"
	"github.com/Dalmocabral/crewcenter/utils"
)

// Replayer hands a failed reconciliation to a durable retry queue.
type Replayer interface {
	ScheduleReplay(ctx context.Context, flight FlightReviewed) error
}

// Config tunes retries and fan-out.
type Config struct {
	MaxAttempts          int
	RetryBackoff         time.Duration
	BroadcastConcurrency int
}

// Deps are the collaborators of an Engine. Cache and Replayer are optional.
type Deps struct {
	Progress ProgressStore
	Flights  FlightSource
	Users    UserDirectory
	Notifier *Notifier
	Cache    ProgressCache
	Replayer Replayer
	Logger   *zap.Logger
	Now      func() time.Time
}

// Engine reconciles award progress when flights are approved and announces
// new awards.
type Engine struct {
	progress   ProgressStore
	flights    FlightSource
	users      UserDirectory
	notifier   *Notifier
	cache      ProgressCache
	replayer   Replayer
	aggregator *Aggregator
	validate   *validator.Validate
	log        *zap.Logger
	now        func() time.Time
	cfg        Config
}

func NewEngine(deps Deps, cfg Config) *Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Cache == nil {
		deps.Cache = noopCache{}
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BroadcastConcurrency < 1 {
		cfg.BroadcastConcurrency = 1
	}
	log := deps.Logger.Named("awards")
	return &Engine{
		progress:   deps.Progress,
		flights:    deps.Flights,
		users:      deps.Users,
		notifier:   deps.Notifier,
		cache:      deps.Cache,
		replayer:   deps.Replayer,
		aggregator: NewAggregator(log),
		validate:   validator.New(),
		log:        log,
		now:        deps.Now,
		cfg:        cfg,
	}
}

// Subscribe registers the engine's handlers. For a reviewed flight the pilot
// is notified first and reconciliation runs second.
func (e *Engine) Subscribe(bus events.Bus) {
	bus.Subscribe(EventFlightReviewed, events.HandlerFunc(e.handleReviewNotification))
	bus.Subscribe(EventFlightReviewed, events.HandlerFunc(e.handleReconciliation))
	bus.Subscribe(EventAwardCreated, events.HandlerFunc(e.handleAwardCreated))
}

func (e *Engine) handleReviewNotification(ctx context.Context, ev events.Event) error {
	flight, err := asFlightReviewed(ev)
	if err != nil {
		return err
	}
	return e.NotifyReview(ctx, flight)
}

func (e *Engine) handleReconciliation(ctx context.Context, ev events.Event) error {
	flight, err := asFlightReviewed(ev)
	if err != nil {
		return err
	}
	if !flight.Approved {
		return nil
	}
	return e.TriggerReconciliation(ctx, flight)
}

func (e *Engine) handleAwardCreated(ctx context.Context, ev events.Event) error {
	var created AwardCreated
	switch v := ev.(type) {
	case AwardCreated:
		created = v
	case *AwardCreated:
		created = *v
	default:
		return apperr.Internal(fmt.Sprintf("unexpected event type %T", ev))
	}
	_, err := e.AnnounceAward(ctx, created)
	return err
}

func asFlightReviewed(ev events.Event) (FlightReviewed, error) {
	switch v := ev.(type) {
	case FlightReviewed:
		return v, nil
	case *FlightReviewed:
		return *v, nil
	default:
		return FlightReviewed{}, apperr.Internal(fmt.Sprintf("unexpected event type %T", ev))
	}
}

// NotifyReview tells the pilot their flight was approved or rejected.
func (e *Engine) NotifyReview(ctx context.Context, flight FlightReviewed) error {
	if err := e.validateEvent(flight); err != nil {
		return err
	}
	msg := ReviewMessage(flight.OperatorCode, flight.FlightNumber, flight.Approved)
	created, err := e.notifier.Notify(ctx, flight.PilotID, msg)
	if err != nil {
		return err
	}
	if created {
		metrics.NotificationsCreatedTotal.WithLabelValues(metrics.NotificationReview).Inc()
	}
	return nil
}

// TriggerReconciliation runs ReconcileFlight and, when it still fails with a
// retryable error, schedules a replay. The returned error is informational:
// the approval itself has already been committed. The replay is enqueued even
// when ctx is already cancelled.
func (e *Engine) TriggerReconciliation(ctx context.Context, flight FlightReviewed) error {
	err := e.ReconcileFlight(ctx, flight)
	if err == nil || !apperr.IsRetryable(err) || e.replayer == nil {
		return err
	}
	if rerr := e.replayer.ScheduleReplay(context.WithoutCancel(ctx), flight); rerr != nil {
		e.log.Error("schedule replay failed",
			zap.Uint("pirep_id", flight.PirepID),
			zap.Uint("pilot_id", flight.PilotID),
			zap.Error(rerr))
		return errors.Join(err, rerr)
	}
	metrics.ReplaysEnqueuedTotal.Inc()
	e.log.Warn("reconciliation deferred to replay queue",
		zap.Uint("pirep_id", flight.PirepID),
		zap.Uint("pilot_id", flight.PilotID),
		zap.Error(err))
	return err
}

// ReconcileFlight recomputes every award with a leg on the flight's route.
// It is idempotent and safe to call again with the same flight.
func (e *Engine) ReconcileFlight(ctx context.Context, flight FlightReviewed) (err error) {
	start := time.Now()
	outcome := metrics.OutcomeOK
	defer func() {
		if err != nil {
			outcome = metrics.OutcomeFailed
		}
		metrics.ReconciliationsTotal.WithLabelValues(outcome).Inc()
		metrics.ReconciliationDuration.Observe(time.Since(start).Seconds())
	}()

	if err := e.validateEvent(flight); err != nil {
		return err
	}
	if !flight.Approved {
		return apperr.Validation("flight is not approved")
	}

	var awardIDs []uint
	err = e.retry(ctx, "find awards", func() error {
		var ferr error
		awardIDs, ferr = e.progress.AwardIDsForRoute(ctx, flight.DepartureAirport, flight.ArrivalAirport)
		return ferr
	})
	if err != nil {
		return err
	}
	if len(awardIDs) == 0 {
		outcome = metrics.OutcomeNoop
		e.log.Debug("no award leg on route",
			zap.Uint("pilot_id", flight.PilotID),
			zap.Uint("pirep_id", flight.PirepID),
			zap.String("route", flight.DepartureAirport+"-"+flight.ArrivalAirport))
		return nil
	}

	return e.reconcileAwards(ctx, flight.PilotID, awardIDs)
}

// RecomputePilot recomputes every award the pilot has a record for or has
// flown a leg of. It repairs progress left stale by failed reconciliations.
func (e *Engine) RecomputePilot(ctx context.Context, pilotID uint) error {
	ok, err := e.users.HasUser(ctx, pilotID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("pilot not found")
	}

	flights, err := e.flights.ApprovedFlights(ctx, pilotID)
	if err != nil {
		return err
	}
	existing, err := e.progress.ListProgress(ctx, pilotID)
	if err != nil {
		return err
	}

	var awardIDs []uint
	for _, p := range existing {
		awardIDs = append(awardIDs, p.AwardID)
	}
	seen := map[string]bool{}
	for _, f := range flights {
		route := f.DepartureAirport + "-" + f.ArrivalAirport
		if seen[route] {
			continue
		}
		seen[route] = true
		ids, err := e.progress.AwardIDsForRoute(ctx, f.DepartureAirport, f.ArrivalAirport)
		if err != nil {
			return err
		}
		awardIDs = append(awardIDs, ids...)
	}
	return e.reconcileAwards(ctx, pilotID, utils.UniqueUint(awardIDs))
}

func (e *Engine) reconcileAwards(ctx context.Context, pilotID uint, awardIDs []uint) error {
	defer e.cache.Invalidate(ctx, pilotID)

	var errs []error
	for _, awardID := range awardIDs {
		err := e.retry(ctx, "reconcile award", func() error {
			return e.reconcileAward(ctx, pilotID, awardID)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("award %d: %w", awardID, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) reconcileAward(ctx context.Context, pilotID, awardID uint) error {
	award, err := e.progress.LoadAward(ctx, awardID)
	if err != nil {
		return err
	}

	now := e.now()
	var result Result
	record, err := e.progress.UpdateProgress(ctx, pilotID, awardID, now,
		func(current models.UserAward, flights []ApprovedFlight) (models.UserAward, error) {
			result = e.aggregator.Recompute(award, current, flights)
			next := current
			if next.StartDate == nil {
				next.StartDate = &now
			}
			next.Progress = result.Progress
			if result.NewlyCompleted {
				next.EndDate = &now
			}
			if err := checkRecord(award, next); err != nil {
				return current, err
			}
			return next, nil
		})
	if err != nil {
		if apperr.Is(err, apperr.KindInvariant) {
			e.log.Error("progress invariant violated, record left unchanged",
				zap.Uint("pilot_id", pilotID),
				zap.Uint("award_id", awardID),
				zap.Int("progress", result.Progress),
				zap.Error(err))
		}
		return err
	}

	e.log.Debug("award progress stored",
		zap.Uint("pilot_id", pilotID),
		zap.Uint("award_id", awardID),
		zap.Int("progress", record.Progress),
		zap.Int("completed_legs", result.CompletedLegs),
		zap.Int("total_legs", result.TotalLegs))

	if result.NewlyCompleted {
		metrics.AwardsCompletedTotal.Inc()
		e.log.Info("award completed", zap.Uint("pilot_id", pilotID), zap.Uint("award_id", awardID))
	}
	if record.EndDate == nil {
		return nil
	}
	// requested on every pass over a completed record; dedup keeps it single
	created, err := e.notifier.Notify(ctx, pilotID, CompletionMessage(award.Name))
	if err != nil {
		return err
	}
	if created {
		metrics.NotificationsCreatedTotal.WithLabelValues(metrics.NotificationCompletion).Inc()
	}
	return nil
}

func checkRecord(award *models.Award, r models.UserAward) error {
	if r.Progress < 0 || r.Progress > 100 {
		return apperr.Invariant(fmt.Sprintf("progress %d out of range", r.Progress))
	}
	if len(award.Legs) == 0 && r.Progress != 0 {
		return apperr.Invariant("award without legs must stay at 0")
	}
	if r.EndDate != nil && r.Progress != 100 {
		return apperr.Invariant(fmt.Sprintf("completed record has progress %d", r.Progress))
	}
	return nil
}

// AnnounceAward notifies every user about a new award and returns how many
// notifications were created. Redelivery creates none.
func (e *Engine) AnnounceAward(ctx context.Context, ev AwardCreated) (int, error) {
	if err := e.validateEvent(ev); err != nil {
		return 0, err
	}
	userIDs, err := e.users.UserIDs(ctx)
	if err != nil {
		return 0, err
	}

	msg := AwardCreatedMessage(ev.Name)
	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BroadcastConcurrency)
	for _, id := range userIDs {
		g.Go(func() error {
			ok, err := e.notifier.Notify(gctx, id, msg)
			if err != nil {
				return fmt.Errorf("notify user %d: %w", id, err)
			}
			if ok {
				created.Add(1)
				metrics.NotificationsCreatedTotal.WithLabelValues(metrics.NotificationTourCreated).Inc()
			}
			return nil
		})
	}
	err = g.Wait()

	e.log.Info("award announced",
		zap.Uint("award_id", ev.AwardID),
		zap.Int("users", len(userIDs)),
		zap.Int64("created", created.Load()),
		zap.Error(err))
	return int(created.Load()), err
}

// GetUserAwardProgress lists the pilot's award records.
func (e *Engine) GetUserAwardProgress(ctx context.Context, pilotID uint) ([]AwardProgress, error) {
	if cached, ok := e.cache.Get(ctx, pilotID); ok {
		return cached, nil
	}
	version := e.cache.Version(ctx, pilotID)
	ok, err := e.users.HasUser(ctx, pilotID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("pilot not found")
	}
	rows, err := e.progress.ListProgress(ctx, pilotID)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, pilotID, version, rows)
	return rows, nil
}

// ListUnreadNotifications returns the recipient's unread notifications, newest first.
func (e *Engine) ListUnreadNotifications(ctx context.Context, recipient uint) ([]models.Notification, error) {
	return e.notifier.ListUnread(ctx, recipient)
}

// MarkRead flags one of the recipient's notifications as read.
func (e *Engine) MarkRead(ctx context.Context, recipient, notificationID uint) error {
	return e.notifier.MarkRead(ctx, recipient, notificationID)
}

func (e *Engine) validateEvent(ev interface{}) error {
	if err := e.validate.Struct(ev); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid event", err)
	}
	return nil
}

func (e *Engine) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !apperr.IsRetryable(err) || attempt == e.cfg.MaxAttempts {
			return err
		}
		e.log.Warn("transient failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(e.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
	return err
}
