package controllers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Dalmocabral/crewcenter/models"
	"github.com/Dalmocabral/crewcenter/utils"
)

// StatsController provides crew center totals.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns aggregate counts for the crew center.
func (s *StatsController) GetStats(ctx *gin.Context) {
	db := s.db.WithContext(ctx.Request.Context())
	var userCount, awardCount, approvedCount, completedCount int64

	if err := db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		// Fallback to 0 instead of failing the whole endpoint
		userCount = 0
	}
	if err := db.Model(&models.Award{}).Count(&awardCount).Error; err != nil {
		awardCount = 0
	}
	if err := db.Model(&models.PirepFlight{}).Where("status = ?", models.PirepApproved).Count(&approvedCount).Error; err != nil {
		approvedCount = 0
	}
	if err := db.Model(&models.UserAward{}).Where("end_date IS NOT NULL").Count(&completedCount).Error; err != nil {
		completedCount = 0
	}

	utils.Success(ctx, gin.H{
		"user_count":             userCount,
		"award_count":            awardCount,
		"approved_pirep_count":   approvedCount,
		"completed_awards_count": completedCount,
	})
}
