package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Dalmocabral/crewcenter/awards"
	"github.com/Dalmocabral/crewcenter/events"
	"github.com/Dalmocabral/crewcenter/models"
	"github.com/Dalmocabral/crewcenter/utils"
)

// PirepController handles flight report submission and review.
type PirepController struct {
	db  *gorm.DB
	bus events.Bus
	log *zap.Logger
}

func NewPirepController(db *gorm.DB, bus events.Bus, log *zap.Logger) *PirepController {
	return &PirepController{db: db, bus: bus, log: log}
}

type createPirepRequest struct {
	FlightICAO       string `json:"flight_icao" binding:"required,min=2,max=8,alphanum"`
	FlightNumber     string `json:"flight_number" binding:"required,max=16,alphanum"`
	DepartureAirport string `json:"departure_airport" binding:"required,min=3,max=8,alphanum"`
	ArrivalAirport   string `json:"arrival_airport" binding:"required,min=3,max=8,alphanum"`
	Aircraft         string `json:"aircraft" binding:"required,max=32"`
	FlightDuration   string `json:"flight_duration" binding:"omitempty,max=8"`
	Network          string `json:"network" binding:"omitempty,max=32"`
}

// CreatePirep files a report for the authenticated pilot. It starts In Review.
func (p *PirepController) CreatePirep(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40120, "unauthorized")
		return
	}
	var req createPirepRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, err.Error())
		return
	}
	pirep := models.PirepFlight{
		PilotID:          userID,
		FlightICAO:       req.FlightICAO,
		FlightNumber:     strings.TrimSpace(req.FlightNumber),
		DepartureAirport: req.DepartureAirport,
		ArrivalAirport:   req.ArrivalAirport,
		Aircraft:         strings.TrimSpace(req.Aircraft),
		FlightDuration:   strings.TrimSpace(req.FlightDuration),
		Network:          utils.SanitizeText(req.Network),
		Status:           models.PirepInReview,
	}
	if err := p.db.WithContext(ctx.Request.Context()).Create(&pirep).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to create pirep")
		return
	}
	utils.Created(ctx, pirep)
}

// ListMyPireps returns the caller's reports, newest first.
func (p *PirepController) ListMyPireps(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40121, "unauthorized")
		return
	}
	p.list(ctx, p.db.Where("pilot_id = ?", userID))
}

// ListPireps returns all reports, optionally filtered by status.
func (p *PirepController) ListPireps(ctx *gin.Context) {
	query := p.db
	if status := strings.TrimSpace(ctx.Query("status")); status != "" {
		if !validStatus(status) {
			utils.Error(ctx, http.StatusBadRequest, 40021, "invalid status")
			return
		}
		query = query.Where("status = ?", status)
	}
	p.list(ctx, query)
}

func (p *PirepController) list(ctx *gin.Context, query *gorm.DB) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	query = query.WithContext(ctx.Request.Context()).Model(&models.PirepFlight{})

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to count pireps")
		return
	}
	items := []models.PirepFlight{}
	if err := query.Order("registered_at DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&items).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to retrieve pireps")
		return
	}
	utils.Success(ctx, paginated(items, page, pageSize, total))
}

type reviewPirepRequest struct {
	Status string `json:"status" binding:"required,oneof=Approved Rejected"`
}

// ReviewPirep approves or rejects a report still In Review. The decision is
// committed before FlightReviewed is published, so award progress that fails
// to update does not undo the review.
func (p *PirepController) ReviewPirep(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid pirep id")
		return
	}
	var req reviewPirepRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, err.Error())
		return
	}

	var pirep models.PirepFlight
	err := p.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&pirep, id).Error; err != nil {
			return err
		}
		if pirep.Status != models.PirepInReview {
			return errAlreadyReviewed
		}
		now := time.Now()
		pirep.Status = req.Status
		pirep.ReviewedAt = &now
		return tx.Model(&pirep).Updates(map[string]interface{}{
			"status":      req.Status,
			"reviewed_at": now,
		}).Error
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.Error(ctx, http.StatusNotFound, 40420, "pirep not found")
		return
	case errors.Is(err, errAlreadyReviewed):
		utils.Error(ctx, http.StatusConflict, 40920, "pirep already reviewed")
		return
	case err != nil:
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to review pirep")
		return
	}

	// the review is committed; follow-up work must not die with the client
	pending := false
	if err := p.bus.PublishSync(context.WithoutCancel(ctx.Request.Context()), awards.NewFlightReviewed(pirep)); err != nil {
		pending = true
		p.log.Warn("review follow-up failed",
			zap.Uint("pirep_id", pirep.ID),
			zap.Uint("pilot_id", pirep.PilotID),
			zap.Error(err))
	}
	utils.Success(ctx, gin.H{"pirep": pirep, "progress_pending": pending})
}

var errAlreadyReviewed = errors.New("pirep already reviewed")

func validStatus(status string) bool {
	switch status {
	case models.PirepInReview, models.PirepApproved, models.PirepRejected:
		return true
	}
	return false
}
