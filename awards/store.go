package awards

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Dalmocabral/crewcenter/apperr"
	"github.com/Dalmocabral/crewcenter/models"
)

// AwardProgress is one row of a pilot's award overview.
type AwardProgress struct {
	AwardID   uint       `json:"award_id"`
	AwardName string     `json:"award_name"`
	LinkImage string     `json:"link_image"`
	Progress  int        `json:"progress"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// ProgressFunc derives the next state of a locked record from the pilot's
// approved flights. Returning an error leaves the record unmodified.
type ProgressFunc func(current models.UserAward, flights []ApprovedFlight) (models.UserAward, error)

// ProgressStore persists UserAward records.
type ProgressStore interface {
	AwardIDsForRoute(ctx context.Context, from, to string) ([]uint, error)
	LoadAward(ctx context.Context, awardID uint) (*models.Award, error)
	// UpdateProgress creates the (pilot, award) record if absent with
	// start_date = now, locks it, and stores what fn returns. fn sees the
	// approved flights committed at lock time.
	UpdateProgress(ctx context.Context, pilotID, awardID uint, now time.Time, fn ProgressFunc) (models.UserAward, error)
	ListProgress(ctx context.Context, pilotID uint) ([]AwardProgress, error)
}

// FlightSource reads a pilot's approved flights.
type FlightSource interface {
	ApprovedFlights(ctx context.Context, pilotID uint) ([]ApprovedFlight, error)
}

// UserDirectory enumerates users.
type UserDirectory interface {
	UserIDs(ctx context.Context) ([]uint, error)
	HasUser(ctx context.Context, userID uint) (bool, error)
}

// GormStore implements the engine's storage interfaces on gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AwardIDsForRoute(ctx context.Context, from, to string) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.Leg{}).
		Where("from_airport = ? AND to_airport = ?", models.NormalizeCode(from), models.NormalizeCode(to)).
		Distinct("award_id").
		Order("award_id").
		Pluck("award_id", &ids).Error
	if err != nil {
		return nil, apperr.Transient("find legs by route", err)
	}
	return ids, nil
}

func (s *GormStore) LoadAward(ctx context.Context, awardID uint) (*models.Award, error) {
	var award models.Award
	err := s.db.WithContext(ctx).
		Preload("Legs", func(db *gorm.DB) *gorm.DB { return db.Order("sequence, id") }).
		Preload("AllowedAircraft").
		Preload("AllowedOperators").
		First(&award, awardID).Error
	if err != nil {
		return nil, classify(err, "award not found", "load award")
	}
	return &award, nil
}

func (s *GormStore) UpdateProgress(ctx context.Context, pilotID, awardID uint, now time.Time, fn ProgressFunc) (models.UserAward, error) {
	var out models.UserAward
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.UserAward{UserID: pilotID, AwardID: awardID, StartDate: &now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "award_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return apperr.Transient("create user award", err)
		}

		var current models.UserAward
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND award_id = ?", pilotID, awardID).
			First(&current).Error; err != nil {
			return classify(err, "user award not found", "lock user award")
		}

		flights, err := approvedFlights(tx, pilotID)
		if err != nil {
			return err
		}

		next, err := fn(current, flights)
		if err != nil {
			return err
		}

		if err := tx.Model(&current).Updates(map[string]interface{}{
			"progress":   next.Progress,
			"start_date": next.StartDate,
			"end_date":   next.EndDate,
		}).Error; err != nil {
			return apperr.Transient("save user award", err)
		}
		out = next
		out.ID = current.ID
		return nil
	})
	return out, err
}

func (s *GormStore) ListProgress(ctx context.Context, pilotID uint) ([]AwardProgress, error) {
	rows := []AwardProgress{}
	err := s.db.WithContext(ctx).Table("user_awards").
		Select("user_awards.award_id, awards.name AS award_name, awards.link_image, user_awards.progress, user_awards.start_date, user_awards.end_date").
		Joins("JOIN awards ON awards.id = user_awards.award_id").
		Where("user_awards.user_id = ?", pilotID).
		Order("user_awards.award_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Transient("list user awards", err)
	}
	return rows, nil
}

func (s *GormStore) ApprovedFlights(ctx context.Context, pilotID uint) ([]ApprovedFlight, error) {
	return approvedFlights(s.db.WithContext(ctx), pilotID)
}

func approvedFlights(db *gorm.DB, pilotID uint) ([]ApprovedFlight, error) {
	var pireps []models.PirepFlight
	if err := db.Where("pilot_id = ? AND status = ?", pilotID, models.PirepApproved).
		Order("id").
		Find(&pireps).Error; err != nil {
		return nil, apperr.Transient("load approved flights", err)
	}
	flights := make([]ApprovedFlight, 0, len(pireps))
	for _, p := range pireps {
		flights = append(flights, FlightFromPirep(p))
	}
	return flights, nil
}

func (s *GormStore) UserIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.User{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, apperr.Transient("list users", err)
	}
	return ids, nil
}

func (s *GormStore) HasUser(ctx context.Context, userID uint) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return false, apperr.Transient("count users", err)
	}
	return count > 0, nil
}

func (s *GormStore) CreateIfAbsent(ctx context.Context, n *models.Notification) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "dedup_key"}},
		DoNothing: true,
	}).Create(n)
	if res.Error != nil {
		return false, apperr.Transient("create notification", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ListUnread(ctx context.Context, userID uint) ([]models.Notification, error) {
	items := []models.Notification{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_read = ?", userID, false).
		Order("created_at DESC, id DESC").
		Find(&items).Error; err != nil {
		return nil, apperr.Transient("list notifications", err)
	}
	return items, nil
}

func (s *GormStore) MarkRead(ctx context.Context, userID, notificationID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n models.Notification
		if err := tx.Where("id = ? AND user_id = ?", notificationID, userID).First(&n).Error; err != nil {
			return classify(err, "notification not found", "load notification")
		}
		if n.IsRead {
			return nil
		}
		if err := tx.Model(&n).Update("is_read", true).Error; err != nil {
			return apperr.Transient("mark notification read", err)
		}
		return nil
	})
}

func classify(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(notFound)
	}
	return apperr.Transient(op, err)
}
