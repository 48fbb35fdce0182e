package awards

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Dalmocabral/crewcenter/apperr"
	"github.com/Dalmocabral/crewcenter/events"
	"github.com/Dalmocabral/crewcenter/models"
	"github.com/Dalmocabral/crewcenter/utils"
)

var tourA = [][2]string{{"KJFK", "EGLL"}, {"EGLL", "LFPG"}}

func TestTourCompletionScenario(t *testing.T) {
	db := setupTestDB(t)
	engine, clock := newTestEngine(t, db)
	ctx := context.Background()

	pilot := createUser(t, db, "pilot")
	award := createAward(t, db, "Tour A", tourA, nil, nil)

	first := approvedPirep(t, db, pilot, "AAL", "100", "KJFK", "EGLL", "B77W")
	started := clock.now
	require.NoError(t, engine.ReconcileFlight(ctx, NewFlightReviewed(first)))

	ua := userAward(t, db, pilot, award.ID)
	assert.Equal(t, 50, ua.Progress)
	assert.Nil(t, ua.EndDate)
	require.NotNil(t, ua.StartDate)
	assert.True(t, started.Equal(*ua.StartDate))

	clock.now = clock.now.Add(48 * time.Hour)
	completed := clock.now
	second := approvedPirep(t, db, pilot, "BAW", "304", "EGLL", "LFPG", "A320")
	require.NoError(t, engine.ReconcileFlight(ctx, NewFlightReviewed(second)))

	ua = userAward(t, db, pilot, award.ID)
	assert.Equal(t, 100, ua.Progress)
	require.NotNil(t, ua.EndDate)
	assert.True(t, completed.Equal(*ua.EndDate))
	assert.True(t, started.Equal(*ua.StartDate))
	assert.EqualValues(t, 1, countNotifications(t, db, pilot, CompletionMessage("Tour A")))

	// replay of both events later must not move any timestamp
	clock.now = clock.now.Add(24 * time.Hour)
	require.NoError(t, engine.ReconcileFlight(ctx, NewFlightReviewed(second)))
	require.NoError(t, engine.ReconcileFlight(ctx, NewFlightReviewed(first)))

	again := userAward(t, db, pilot, award.ID)
	assert.Equal(t, 100, again.Progress)
	assert.True(t, completed.Equal(*again.EndDate))
	assert.True(t, started.Equal(*again.StartDate))
	assert.EqualValues(t, 1, countNotifications(t, db, pilot, CompletionMessage("Tour A")))
}

func TestReconcileRouteWithoutLegsIsNoop(t *testing.T) {
	db := setupTestDB(t)
	engine, _ := newTestEngine(t, db)
	pilot := createUser(t, db, "pilot")
	createAward(t, db, "Tour A", tourA, nil, nil)

	p := approvedPirep(t, db, pilot, "TAP", "1", "LPPT", "SBGR", "A339")
	require.NoError(t, engine.ReconcileFlight(context.Background(), NewFlightReviewed(p)))

	var count int64
	require.NoError(t, db.Model(&models.UserAward{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReconcileAppliesWhitelists(t *testing.T) {
	db := setupTestDB(t)
	engine, _ := newTestEngine(t, db)
	ctx := context.Background()
	pilot := createUser(t, db, "pilot")
	award := createAward(t, db, "Star Tour", [][2]string{{"LPPT", "SBGR"}}, []string{"A339"}, []string{"tap"})

	wrongType := approvedPirep(t, db, pilot, "TAP", "83", "LPPT", "SBGR", "A320")
	require.NoError(t, engine.ReconcileFlight(ctx, NewFlightReviewed(wrongType)))
	ua := userAward(t, db, pilot, award.ID)
	assert.Equal(t, 0, ua.Progress)
	assert.NotNil(t, ua.StartDate, "route match creates the record")

	wrongOperator := approvedPirep(t, db, pilot, "AZU", "8700", "LPPT", "SBGR", "A339")
	require.NoError(t, engine.ReconcileFlight(ctx, NewFlightReviewed(wrongOperator)))
	assert.Equal(t, 0, userAward(t, db, pilot, award.ID).Progress)

	good := approvedPirep(t, db, pilot, "tap", "85", "LPPT", "SBGR", "A339")
	require.NoError(t, engine.ReconcileFlight(ctx, NewFlightReviewed(good)))
	assert.Equal(t, 100, userAward(t, db, pilot, award.ID).Progress)
}

func TestReconcileRejectsUnapprovedOrInvalidFlights(t *testing.T) {
	db := setupTestDB(t)
	engine, _ := newTestEngine(t, db)

	err := engine.ReconcileFlight(context.Background(), FlightReviewed{PirepID: 1, PilotID: 1, OperatorCode: "TAP", FlightNumber: "1", DepartureAirport: "LPPT", ArrivalAirport: "SBGR"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	err = engine.ReconcileFlight(context.Background(), FlightReviewed{PilotID: 1, Approved: true})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestConcurrentReconciliationConverges(t *testing.T) {
	db := setupTestDB(t)
	engine, _ := newTestEngine(t, db)
	pilot := createUser(t, db, "pilot")
	award := createAward(t, db, "Tour A", tourA, nil, nil)
	a := approvedPirep(t, db, pilot, "AAL", "100", "KJFK", "EGLL", "B77W")
	b := approvedPirep(t, db, pilot, "BAW", "304", "EGLL", "LFPG", "A320")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		flight := a
		if i%2 == 1 {
			flight = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- engine.ReconcileFlight(context.Background(), NewFlightReviewed(flight))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var rows []models.UserAward
	require.NoError(t, db.Where("user_id = ?", pilot).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, award.ID, rows[0].AwardID)
	assert.Equal(t, 100, rows[0].Progress)
	assert.EqualValues(t, 1, countNotifications(t, db, pilot, CompletionMessage("Tour A")))
}

func TestInvariantViolationLeavesRecordUnchanged(t *testing.T) {
	db := setupTestDB(t)
	engine, _ := newTestEngine(t, db)
	ctx := context.Background()
	pilot := createUser(t, db, "pilot")
	award := createAward(t, db, "Tour A", tourA, nil, nil)
	a := approvedPirep(t, db, pilot, "AAL", "100", "KJFK", "EGLL", "B77W")
	b := approvedPirep(t, db, pilot, "BAW", "304", "EGLL", "LFPG", "A320")
	require.NoError(t, engine.ReconcileFlight(ctx, NewFlightReviewed(b)))
	before := userAward(t, db, pilot, award.ID)
	require.Equal(t, 100, before.Progress)

	// a completed tour losing one of its flights would need end_date cleared
	require.NoError(t, db.Model(&models.PirepFlight{}).Where("id = ?", b.ID).UpdateColumn("status", models.PirepRejected).Error)
	err := engine.ReconcileFlight(ctx, NewFlightReviewed(a))
	assert.True(t, apperr.Is(err, apperr.KindInvariant))

	after := userAward(t, db, pilot, award.ID)
	assert.Equal(t, 100, after.Progress)
	assert.True(t, before.EndDate.Equal(*after.EndDate))
}

func TestAnnounceAwardNotifiesEveryUserOnce(t *testing.T) {
	db := setupTestDB(t)
	engine, _ := newTestEngine(t, db)
	ctx := context.Background()
	users := []uint{createUser(t, db, "ana"), createUser(t, db, "bruno"), createUser(t, db, "carla")}
	award := createAward(t, db, "Volta ao Brasil", [][2]string{{"SBGR", "SBBR"}}, nil, nil)

	created, err := engine.AnnounceAward(ctx, NewAwardCreated(award))
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	created, err = engine.AnnounceAward(ctx, NewAwardCreated(award))
	require.NoError(t, err)
	assert.Zero(t, created)

	var all []models.Notification
	require.NoError(t, db.Find(&all).Error)
	require.Len(t, all, 3)
	for _, n := range all {
		assert.Contains(t, users, n.UserID)
		assert.Contains(t, n.Message, "Volta ao Brasil")
	}

	var progress int64
	require.NoError(t, db.Model(&models.UserAward{}).Count(&progress).Error)
	assert.Zero(t, progress)
}

func TestBusDispatchesReviewThenReconciliation(t *testing.T) {
	db := setupTestDB(t)
	engine, _ := newTestEngine(t, db)
	bus := events.NewInMemoryBus(zaptest.NewLogger(t))
	engine.Subscribe(bus)
	ctx := context.Background()
	pilot := createUser(t, db, "pilot")
	award := createAward(t, db, "Tour A", tourA, nil, nil)

	rejected := approvedPirep(t, db, pilot, "AAL", "100", "KJFK", "EGLL", "B77W")
	require.NoError(t, db.Model(&models.PirepFlight{}).Where("id = ?", rejected.ID).UpdateColumn("status", models.PirepRejected).Error)
	rejected.Status = models.PirepRejected
	require.NoError(t, bus.PublishSync(ctx, NewFlightReviewed(rejected)))
	assert.EqualValues(t, 1, countNotifications(t, db, pilot, "flight AAL100 was rejected"))
	var count int64
	require.NoError(t, db.Model(&models.UserAward{}).Count(&count).Error)
	assert.Zero(t, count)

	approved := approvedPirep(t, db, pilot, "AAL", "101", "KJFK", "EGLL", "B77W")
	require.NoError(t, bus.PublishSync(ctx, NewFlightReviewed(approved)))
	assert.EqualValues(t, 1, countNotifications(t, db, pilot, "flight AAL101 was approved"))
	assert.Equal(t, 50, userAward(t, db, pilot, award.ID).Progress)

	require.NoError(t, bus.PublishSync(ctx, NewAwardCreated(award)))
	assert.EqualValues(t, 1, countNotifications(t, db, pilot, AwardCreatedMessage("Tour A")))
}

func TestRecomputePilotRepairsMissedEvents(t *testing.T) {
	db := setupTestDB(t)
	engine, _ := newTestEngine(t, db)
	ctx := context.Background()
	pilot := createUser(t, db, "pilot")
	tour := createAward(t, db, "Tour A", tourA, nil, nil)
	other := createAward(t, db, "Channel Hop", [][2]string{{"EGLL", "LFPG"}}, nil, nil)
	approvedPirep(t, db, pilot, "AAL", "100", "KJFK", "EGLL", "B77W")
	approvedPirep(t, db, pilot, "BAW", "304", "EGLL", "LFPG", "A320")
	approvedPirep(t, db, pilot, "BAW", "306", "EGLL", "LFPG", "A320")

	require.NoError(t, engine.RecomputePilot(ctx, pilot))
	assert.Equal(t, 100, userAward(t, db, pilot, tour.ID).Progress)
	assert.Equal(t, 100, userAward(t, db, pilot, other.ID).Progress)

	err := engine.RecomputePilot(ctx, 4242)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestGetUserAwardProgressUsesAndInvalidatesCache(t *testing.T) {
	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	cache := NewRedisProgressCache(utils.NewCache(rc), time.Minute)
	engine, _ := newTestEngine(t, db, func(d *Deps) { d.Cache = cache })
	ctx := context.Background()
	pilot := createUser(t, db, "pilot")
	award := createAward(t, db, "Tour A", tourA, nil, nil)

	rows, err := engine.GetUserAwardProgress(ctx, pilot)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.True(t, mr.Exists(progressPrefix(pilot)+"awards"))

	p := approvedPirep(t, db, pilot, "AAL", "100", "KJFK", "EGLL", "B77W")
	require.NoError(t, engine.ReconcileFlight(ctx, NewFlightReviewed(p)))
	assert.False(t, mr.Exists(progressPrefix(pilot)+"awards"))

	rows, err = engine.GetUserAwardProgress(ctx, pilot)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, award.ID, rows[0].AwardID)
	assert.Equal(t, "Tour A", rows[0].AwardName)
	assert.Equal(t, 50, rows[0].Progress)
	assert.NotNil(t, rows[0].StartDate)
	assert.Nil(t, rows[0].EndDate)

	_, err = engine.GetUserAwardProgress(ctx, 4242)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

type flakyProgressStore struct {
	ProgressStore
	calls int
}

func (s *flakyProgressStore) AwardIDsForRoute(ctx context.Context, from, to string) ([]uint, error) {
	s.calls++
	return nil, apperr.Transient("find legs by route", context.DeadlineExceeded)
}

// recordingReplayer fails on a done context the way an enqueue over the
// network would.
type recordingReplayer struct {
	flights []FlightReviewed
}

func (r *recordingReplayer) ScheduleReplay(ctx context.Context, flight FlightReviewed) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.flights = append(r.flights, flight)
	return nil
}

func TestTransientFailureIsRetriedThenReplayed(t *testing.T) {
	db := setupTestDB(t)
	flaky := &flakyProgressStore{ProgressStore: NewGormStore(db)}
	replayer := &recordingReplayer{}
	engine, _ := newTestEngine(t, db, func(d *Deps) {
		d.Progress = flaky
		d.Replayer = replayer
	})
	flight := FlightReviewed{
		BaseEvent: events.NewBaseEvent(), PirepID: 5, PilotID: 1, OperatorCode: "TAP",
		FlightNumber: "1", DepartureAirport: "LPPT", ArrivalAirport: "SBGR", Approved: true,
	}

	err := engine.TriggerReconciliation(context.Background(), flight)
	require.Error(t, err)
	assert.True(t, apperr.IsRetryable(err))
	assert.Equal(t, 2, flaky.calls)
	require.Len(t, replayer.flights, 1)
	assert.Equal(t, uint(5), replayer.flights[0].PirepID)

	engine.replayer = nil
	err = engine.TriggerReconciliation(context.Background(), FlightReviewed{PilotID: 1, Approved: true})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Len(t, replayer.flights, 1)
}

func TestCancelledRequestStillSchedulesReplay(t *testing.T) {
	db := setupTestDB(t)
	replayer := &recordingReplayer{}
	engine, _ := newTestEngine(t, db, func(d *Deps) { d.Replayer = replayer })
	pilot := createUser(t, db, "pilot")
	award := createAward(t, db, "Tour A", tourA, nil, nil)
	flight := NewFlightReviewed(approvedPirep(t, db, pilot, "AAL", "100", "KJFK", "EGLL", "B77W"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := engine.TriggerReconciliation(ctx, flight)
	require.Error(t, err)
	assert.True(t, apperr.IsRetryable(err))
	require.Len(t, replayer.flights, 1)
	assert.Equal(t, flight.PirepID, replayer.flights[0].PirepID)

	var rows int64
	require.NoError(t, db.Model(&models.UserAward{}).Count(&rows).Error)
	assert.Zero(t, rows)

	require.NoError(t, engine.ReconcileFlight(context.Background(), replayer.flights[0]))
	assert.Equal(t, 50, userAward(t, db, pilot, award.ID).Progress)
}

func TestReconcileBackfillsMissingStartDate(t *testing.T) {
	db := setupTestDB(t)
	engine, clock := newTestEngine(t, db)
	ctx := context.Background()
	pilot := createUser(t, db, "pilot")
	award := createAward(t, db, "Tour A", tourA, nil, nil)
	require.NoError(t, db.Create(&models.UserAward{UserID: pilot, AwardID: award.ID}).Error)
	require.Nil(t, userAward(t, db, pilot, award.ID).StartDate)

	flight := approvedPirep(t, db, pilot, "AAL", "100", "KJFK", "EGLL", "B77W")
	backfilled := clock.now
	require.NoError(t, engine.ReconcileFlight(ctx, NewFlightReviewed(flight)))
	ua := userAward(t, db, pilot, award.ID)
	require.NotNil(t, ua.StartDate)
	assert.True(t, backfilled.Equal(*ua.StartDate))
	assert.Equal(t, 50, ua.Progress)

	clock.now = clock.now.Add(48 * time.Hour)
	require.NoError(t, engine.ReconcileFlight(ctx, NewFlightReviewed(flight)))
	ua = userAward(t, db, pilot, award.ID)
	require.NotNil(t, ua.StartDate)
	assert.True(t, backfilled.Equal(*ua.StartDate))
}

// flakyNotificationStore fails the first notification for one user.
type flakyNotificationStore struct {
	NotificationStore
	failFor  uint
	failures int
}

func (s *flakyNotificationStore) CreateIfAbsent(ctx context.Context, n *models.Notification) (bool, error) {
	if n.UserID == s.failFor && s.failures > 0 {
		s.failures--
		return false, apperr.Transient("create notification", context.DeadlineExceeded)
	}
	return s.NotificationStore.CreateIfAbsent(ctx, n)
}

func TestAnnounceAwardRerunFillsMissedUsers(t *testing.T) {
	db := setupTestDB(t)
	users := []uint{createUser(t, db, "ana"), createUser(t, db, "bruno"), createUser(t, db, "carla")}
	flaky := &flakyNotificationStore{NotificationStore: NewGormStore(db), failFor: users[1], failures: 1}
	engine, _ := newTestEngine(t, db, func(d *Deps) { d.Notifier = NewNotifier(flaky, d.Logger) })
	ctx := context.Background()
	award := createAward(t, db, "Volta ao Brasil", [][2]string{{"SBGR", "SBRJ"}}, nil, nil)
	ev := NewAwardCreated(award)

	first, err := engine.AnnounceAward(ctx, ev)
	require.Error(t, err)
	assert.True(t, apperr.IsRetryable(err))
	assert.Less(t, first, 3)

	second, err := engine.AnnounceAward(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, 3, first+second)

	for _, id := range users {
		assert.EqualValues(t, 1, countNotifications(t, db, id, AwardCreatedMessage("Volta ao Brasil")))
	}
	third, err := engine.AnnounceAward(ctx, ev)
	require.NoError(t, err)
	assert.Zero(t, third)
}

// invalidatingProgressStore lets a reconciliation land between the read of
// a pilot's rows and the cache fill.
type invalidatingProgressStore struct {
	ProgressStore
	afterList func()
}

func (s *invalidatingProgressStore) ListProgress(ctx context.Context, pilotID uint) ([]AwardProgress, error) {
	rows, err := s.ProgressStore.ListProgress(ctx, pilotID)
	if s.afterList != nil {
		s.afterList()
	}
	return rows, err
}

func TestProgressReadRacingInvalidateIsNotCached(t *testing.T) {
	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	cache := NewRedisProgressCache(utils.NewCache(rc), time.Minute)
	store := &invalidatingProgressStore{ProgressStore: NewGormStore(db)}
	engine, _ := newTestEngine(t, db, func(d *Deps) {
		d.Progress = store
		d.Cache = cache
	})
	ctx := context.Background()
	pilot := createUser(t, db, "pilot")
	key := progressPrefix(pilot) + "awards"

	store.afterList = func() { cache.Invalidate(ctx, pilot) }
	_, err := engine.GetUserAwardProgress(ctx, pilot)
	require.NoError(t, err)
	assert.False(t, mr.Exists(key), "rows read before the invalidation must not be cached")

	store.afterList = nil
	_, err = engine.GetUserAwardProgress(ctx, pilot)
	require.NoError(t, err)
	assert.True(t, mr.Exists(key))
}
