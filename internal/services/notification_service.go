package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/messaging"
	"github.com/smarttransit/ticket-bot/internal/models"
)

// NotificationService sends status messages to users and to the admin set
type NotificationService struct {
	messenger Messenger
	publisher Publisher
	users     UserStore
	adminIDs  []int64
	logger    *logrus.Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(messenger Messenger, publisher Publisher, users UserStore, adminIDs []int64, logger *logrus.Logger) *NotificationService {
	return &NotificationService{
		messenger: messenger,
		publisher: publisher,
		users:     users,
		adminIDs:  adminIDs,
		logger:    logger,
	}
}

// UserHandle names a user for admin messages: "@username (id)" when the
// username is known, else the bare id
func (s *NotificationService) UserHandle(ctx context.Context, userID int64) string {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Debug("Failed to load user for handle")
	}
	if user == nil {
		user = &models.User{ID: userID}
	}
	return user.Handle()
}

// NotifyUser sends a message straight to one user
func (s *NotificationService) NotifyUser(ctx context.Context, userID int64, text string, choices ...models.Choice) error {
	if err := s.messenger.SendMessage(ctx, userID, text, choices...); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to notify user")
		return &ExternalServiceError{Service: "chat", Err: err}
	}
	return nil
}

// SendDocument forwards a file to one user
func (s *NotificationService) SendDocument(ctx context.Context, userID int64, fileID, caption string) error {
	if err := s.messenger.SendDocument(ctx, userID, fileID, caption); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to send document")
		return &ExternalServiceError{Service: "chat", Err: err}
	}
	return nil
}

// NotifyAdmins queues a broadcast to the admins. If the broker refuses it the
// message is delivered inline instead.
func (s *NotificationService) NotifyAdmins(ctx context.Context, text string) {
	err := s.publisher.Publish(ctx, messaging.TopicAdminMessage, messaging.AdminMessage{Text: text})
	if err == nil {
		return
	}
	s.logger.WithError(err).Warn("Failed to queue admin message, delivering inline")
	s.DeliverToAdmins(ctx, text)
}

// QueueFollowUps asks for the delayed follow-up messages of a user who just paid.
// A refused publish only loses the reminders, so it is logged and dropped.
func (s *NotificationService) QueueFollowUps(ctx context.Context, userID int64) {
	if err := s.publisher.Publish(ctx, messaging.TopicUserFollowUp, messaging.UserFollowUp{UserID: userID}); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to queue follow-ups")
	}
}

// DeliverToAdmins sends text to each admin. A failing admin is logged and skipped.
func (s *NotificationService) DeliverToAdmins(ctx context.Context, text string) {
	for _, adminID := range s.adminIDs {
		if err := s.messenger.SendMessage(ctx, adminID, text); err != nil {
			s.logger.WithError(err).WithField("admin_id", adminID).Warn("Failed to notify admin")
		}
	}
}
