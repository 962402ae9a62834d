package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/poolride/carpool/pkg/logger"
	"github.com/poolride/carpool/pkg/models"
	"go.uber.org/zap"
)

// Sender is the hook the ride and booking engines use to inform passengers.
// Delivery is best-effort: failures are logged and never abort the caller.
type Sender interface {
	SendToUser(ctx context.Context, userID uuid.UUID, title, body string)
}

// RepositoryInterface defines the persistence operations for notifications.
type RepositoryInterface interface {
	Insert(ctx context.Context, userID uuid.UUID, title, body string) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Notification, int64, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
}

// Service persists notifications and logs delivery.
type Service struct {
	repo RepositoryInterface
}

// NewService creates a new notifications service
func NewService(repo RepositoryInterface) *Service {
	return &Service{repo: repo}
}

// SendToUser records a notification for the user. Errors are swallowed by
// contract; the primary operation must not fail because a notice did.
func (s *Service) SendToUser(ctx context.Context, userID uuid.UUID, title, body string) {
	if err := s.repo.Insert(ctx, userID, title, body); err != nil {
		logger.Warn("failed to store notification",
			zap.String("user_id", userID.String()),
			zap.String("title", title),
			zap.Error(err))
		return
	}

	logger.Info("notification sent",
		zap.String("user_id", userID.String()),
		zap.String("title", title))
}

// List returns a user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Notification, int64, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// MarkRead marks one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, notificationID)
}
