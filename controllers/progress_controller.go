package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Dalmocabral/crewcenter/awards"
	"github.com/Dalmocabral/crewcenter/utils"
)

// ProgressService is the part of the award engine the progress endpoints use.
type ProgressService interface {
	GetUserAwardProgress(ctx context.Context, pilotID uint) ([]awards.AwardProgress, error)
	RecomputePilot(ctx context.Context, pilotID uint) error
}

// ProgressController exposes per-pilot award progress.
type ProgressController struct {
	service ProgressService
}

func NewProgressController(service ProgressService) *ProgressController {
	return &ProgressController{service: service}
}

// MyProgress returns the caller's award progress.
func (p *ProgressController) MyProgress(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40130, "unauthorized")
		return
	}
	p.respond(ctx, userID)
}

// UserProgress returns any pilot's award progress.
func (p *ProgressController) UserProgress(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid user id")
		return
	}
	p.respond(ctx, id)
}

func (p *ProgressController) respond(ctx *gin.Context, pilotID uint) {
	rows, err := p.service.GetUserAwardProgress(ctx.Request.Context(), pilotID)
	if err != nil {
		utils.ErrorFrom(ctx, err, 30)
		return
	}
	if rows == nil {
		rows = []awards.AwardProgress{}
	}
	utils.Success(ctx, rows)
}

// Recompute rebuilds a pilot's progress from all approved flights.
func (p *ProgressController) Recompute(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40031, "invalid user id")
		return
	}
	if err := p.service.RecomputePilot(ctx.Request.Context(), id); err != nil {
		utils.ErrorFrom(ctx, err, 31)
		return
	}
	rows, err := p.service.GetUserAwardProgress(ctx.Request.Context(), id)
	if err != nil {
		utils.ErrorFrom(ctx, err, 32)
		return
	}
	utils.Success(ctx, gin.H{"user_id": id, "awards": rows})
}
