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

	"github.com/Dalmocabral/crewcenter/awards"
	"github.com/Dalmocabral/crewcenter/events"
	"github.com/Dalmocabral/crewcenter/models"
	"github.com/Dalmocabral/crewcenter/utils"
)

// Announcer broadcasts a new award to every user. Repeating it only fills in
// users that were missed.
type Announcer interface {
	AnnounceAward(ctx context.Context, ev awards.AwardCreated) (int, error)
}

// AwardController manages tours and announces new ones.
type AwardController struct {
	db        *gorm.DB
	bus       events.Bus
	announcer Announcer
	log       *zap.Logger
}

func NewAwardController(db *gorm.DB, bus events.Bus, announcer Announcer, log *zap.Logger) *AwardController {
	return &AwardController{db: db, bus: bus, announcer: announcer, log: log}
}

type legRequest struct {
	FromAirport string `json:"from_airport" binding:"required,min=3,max=8,alphanum"`
	ToAirport   string `json:"to_airport" binding:"required,min=3,max=8,alphanum"`
}

type createAwardRequest struct {
	Name        string       `json:"name" binding:"required,max=128"`
	Description string       `json:"description"`
	LinkImage   string       `json:"link_image" binding:"omitempty,url,max=512"`
	StartDate   *time.Time   `json:"start_date"`
	EndDate     *time.Time   `json:"end_date"`
	Legs        []legRequest `json:"legs" binding:"required,min=1,dive"`
	Aircraft    []string     `json:"aircraft" binding:"omitempty,dive,required,max=32"`
	Operators   []string     `json:"operators" binding:"omitempty,dive,required,max=8"`
}

// CreateAward stores a tour with its legs and whitelists. The announcement to
// every pilot runs in the background; AnnounceAward repeats it.
func (a *AwardController) CreateAward(ctx *gin.Context) {
	var req createAwardRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, err.Error())
		return
	}
	name := utils.SanitizeText(req.Name)
	if name == "" {
		utils.Error(ctx, http.StatusBadRequest, 40011, "name is empty after sanitizing")
		return
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		utils.Error(ctx, http.StatusBadRequest, 40012, "end_date is before start_date")
		return
	}

	award := models.Award{
		Name:        name,
		Description: utils.Sanitize(req.Description),
		LinkImage:   strings.TrimSpace(req.LinkImage),
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	}
	for i, leg := range req.Legs {
		award.Legs = append(award.Legs, models.Leg{Sequence: i + 1, FromAirport: leg.FromAirport, ToAirport: leg.ToAirport})
	}
	for _, code := range uniqueCodes(req.Aircraft, strings.TrimSpace) {
		award.AllowedAircraft = append(award.AllowedAircraft, models.AllowedAircraft{Code: code})
	}
	for _, code := range uniqueCodes(req.Operators, models.NormalizeCode) {
		award.AllowedOperators = append(award.AllowedOperators, models.AllowedOperatorCode{Code: code})
	}

	if err := a.db.WithContext(ctx.Request.Context()).Create(&award).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to create award")
		return
	}

	a.bus.Publish(ctx.Request.Context(), awards.NewAwardCreated(award))
	utils.Created(ctx, award)
}

// AnnounceAward re-runs the creation broadcast for an existing award.
func (a *AwardController) AnnounceAward(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40014, "invalid award id")
		return
	}
	var award models.Award
	err := a.db.WithContext(ctx.Request.Context()).First(&award, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40411, "award not found")
		return
	}
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50014, "failed to retrieve award")
		return
	}

	created, err := a.announcer.AnnounceAward(context.WithoutCancel(ctx.Request.Context()), awards.NewAwardCreated(award))
	if err != nil {
		a.log.Warn("award announcement incomplete",
			zap.Uint("award_id", award.ID),
			zap.Int("created", created),
			zap.Error(err))
		utils.ErrorFrom(ctx, err, 10)
		return
	}
	utils.Success(ctx, gin.H{"award_id": award.ID, "created": created})
}

// ListAwards returns tours with their legs, newest first.
func (a *AwardController) ListAwards(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	db := a.db.WithContext(ctx.Request.Context())

	var total int64
	if err := db.Model(&models.Award{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to count awards")
		return
	}
	items := []models.Award{}
	if err := db.Preload("Legs", orderLegs).
		Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&items).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50012, "failed to retrieve awards")
		return
	}
	utils.Success(ctx, paginated(items, page, pageSize, total))
}

// GetAward returns one tour with legs and whitelists.
func (a *AwardController) GetAward(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40013, "invalid award id")
		return
	}
	var award models.Award
	err := a.db.WithContext(ctx.Request.Context()).
		Preload("Legs", orderLegs).
		Preload("AllowedAircraft").
		Preload("AllowedOperators").
		First(&award, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40410, "award not found")
		return
	}
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50013, "failed to retrieve award")
		return
	}
	utils.Success(ctx, award)
}

func orderLegs(db *gorm.DB) *gorm.DB {
	return db.Order("sequence, id")
}

func uniqueCodes(codes []string, normalize func(string) string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, c := range codes {
		c = normalize(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
