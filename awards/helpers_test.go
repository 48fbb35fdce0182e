package awards

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Dalmocabral/crewcenter/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Award{},
		&models.Leg{},
		&models.AllowedAircraft{},
		&models.AllowedOperatorCode{},
		&models.PirepFlight{},
		&models.UserAward{},
		&models.Notification{},
	))
	return db
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestEngine(t *testing.T, db *gorm.DB, opts ...func(*Deps)) (*Engine, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewGormStore(db)
	log := zaptest.NewLogger(t)
	deps := Deps{
		Progress: store,
		Flights:  store,
		Users:    store,
		Notifier: NewNotifier(store, log),
		Logger:   log,
		Now:      clock.Now,
	}
	for _, o := range opts {
		o(&deps)
	}
	return NewEngine(deps, Config{MaxAttempts: 2, BroadcastConcurrency: 4}), clock
}

func createUser(t *testing.T, db *gorm.DB, name string) uint {
	t.Helper()
	u := models.User{Username: name, Email: name + "@crew.test"}
	require.NoError(t, db.Create(&u).Error)
	return u.ID
}

func createAward(t *testing.T, db *gorm.DB, name string, routes [][2]string, aircraft, operators []string) models.Award {
	t.Helper()
	a := models.Award{Name: name}
	for i, r := range routes {
		a.Legs = append(a.Legs, models.Leg{Sequence: i + 1, FromAirport: r[0], ToAirport: r[1]})
	}
	for _, code := range aircraft {
		a.AllowedAircraft = append(a.AllowedAircraft, models.AllowedAircraft{Code: code})
	}
	for _, code := range operators {
		a.AllowedOperators = append(a.AllowedOperators, models.AllowedOperatorCode{Code: code})
	}
	require.NoError(t, db.Create(&a).Error)
	return a
}

func approvedPirep(t *testing.T, db *gorm.DB, pilotID uint, icao, number, from, to, aircraft string) models.PirepFlight {
	t.Helper()
	p := models.PirepFlight{
		PilotID:          pilotID,
		FlightICAO:       icao,
		FlightNumber:     number,
		DepartureAirport: from,
		ArrivalAirport:   to,
		Aircraft:         aircraft,
		Status:           models.PirepApproved,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func userAward(t *testing.T, db *gorm.DB, pilotID, awardID uint) models.UserAward {
	t.Helper()
	var ua models.UserAward
	require.NoError(t, db.Where("user_id = ? AND award_id = ?", pilotID, awardID).First(&ua).Error)
	return ua
}

func countNotifications(t *testing.T, db *gorm.DB, userID uint, message string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Notification{}).Where("user_id = ? AND message = ?", userID, message).Count(&n).Error)
	return n
}
