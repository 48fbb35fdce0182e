package awards

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Dalmocabral/crewcenter/apperr"
	"github.com/Dalmocabral/crewcenter/models"
)

// NotificationStore persists notifications. CreateIfAbsent must be atomic
// per (user, message) and report whether a row was inserted.
type NotificationStore interface {
	CreateIfAbsent(ctx context.Context, n *models.Notification) (bool, error)
	ListUnread(ctx context.Context, userID uint) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID uint) error
}

// Notifier creates deduplicated notifications.
type Notifier struct {
	store NotificationStore
	log   *zap.Logger
}

func NewNotifier(store NotificationStore, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{store: store, log: log}
}

// Notify stores message for recipient unless the same message already exists.
func (n *Notifier) Notify(ctx context.Context, recipient uint, message string) (bool, error) {
	if recipient == 0 || strings.TrimSpace(message) == "" {
		return false, apperr.Validation("notification needs a recipient and a message")
	}
	created, err := n.store.CreateIfAbsent(ctx, &models.Notification{UserID: recipient, Message: message})
	if err != nil {
		return false, err
	}
	if !created {
		n.log.Debug("notification deduplicated", zap.Uint("user_id", recipient), zap.String("message", message))
	}
	return created, nil
}

// ListUnread returns unread notifications, newest first.
func (n *Notifier) ListUnread(ctx context.Context, recipient uint) ([]models.Notification, error) {
	return n.store.ListUnread(ctx, recipient)
}

// MarkRead flags a notification owned by recipient as read.
func (n *Notifier) MarkRead(ctx context.Context, recipient, notificationID uint) error {
	return n.store.MarkRead(ctx, recipient, notificationID)
}

func ReviewMessage(operatorCode, flightNumber string, approved bool) string {
	verdict := "rejected"
	if approved {
		verdict = "approved"
	}
	return fmt.Sprintf("flight %s%s was %s", operatorCode, flightNumber, verdict)
}

func AwardCreatedMessage(name string) string {
	return fmt.Sprintf("a new tour '%s' was created", name)
}

func CompletionMessage(name string) string {
	return fmt.Sprintf("congratulations! you completed the tour '%s'", name)
}
