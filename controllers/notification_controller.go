package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Dalmocabral/crewcenter/models"
	"github.com/Dalmocabral/crewcenter/utils"
)

// NotificationService reads and acknowledges a user's notifications.
type NotificationService interface {
	ListUnreadNotifications(ctx context.Context, recipient uint) ([]models.Notification, error)
	MarkRead(ctx context.Context, recipient, notificationID uint) error
}

type NotificationController struct {
	service NotificationService
}

func NewNotificationController(service NotificationService) *NotificationController {
	return &NotificationController{service: service}
}

// ListUnread returns the caller's unread notifications, newest first.
func (n *NotificationController) ListUnread(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40140, "unauthorized")
		return
	}
	items, err := n.service.ListUnreadNotifications(ctx.Request.Context(), userID)
	if err != nil {
		utils.ErrorFrom(ctx, err, 40)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	utils.Success(ctx, items)
}

func (n *NotificationController) MarkRead(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40141, "unauthorized")
		return
	}
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid notification id")
		return
	}
	if err := n.service.MarkRead(ctx.Request.Context(), userID, id); err != nil {
		utils.ErrorFrom(ctx, err, 41)
		return
	}
	utils.Success(ctx, gin.H{"id": id, "is_read": true})
}
