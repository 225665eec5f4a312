package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// FollowUp is one delayed message sent after a paid booking
type FollowUp struct {
	Delay time.Duration
	Text  string
}

// DefaultFollowUps are sent one and three hours after payment
var DefaultFollowUps = []FollowUp{
	{Delay: time.Hour, Text: "Thanks for choosing our bot! We hope your trip goes well. Feel free to leave a review."},
	{Delay: 3 * time.Hour, Text: "Need to book again? Try our new routes with /booking or see the monthly passes with /order_offers."},
}

// FollowUpService schedules the reminder messages of the noti_user topic
type FollowUpService struct {
	notifier  *NotificationService
	scheduler Scheduler
	followUps []FollowUp
	logger    *logrus.Logger
}

// NewFollowUpService creates a new FollowUpService
func NewFollowUpService(notifier *NotificationService, scheduler Scheduler, followUps []FollowUp, logger *logrus.Logger) *FollowUpService {
	return &FollowUpService{
		notifier:  notifier,
		scheduler: scheduler,
		followUps: followUps,
		logger:    logger,
	}
}

func followUpJobID(userID int64, i int) string {
	return fmt.Sprintf("user_notification_%d_%d", userID, i)
}

// ScheduleFollowUps arms one timer per follow-up. Timers still pending for the
// user are kept, so a second payment does not double the messages.
func (s *FollowUpService) ScheduleFollowUps(ctx context.Context, userID int64) error {
	for i, followUp := range s.followUps {
		text := followUp.Text
		err := s.scheduler.ScheduleOnce(followUpJobID(userID, i), followUp.Delay, func(ctx context.Context) {
			if err := s.notifier.NotifyUser(ctx, userID, text); err != nil {
				s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to send follow-up")
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling follow-up %d: %w", i, err)
		}
	}

	s.logger.WithFields(logrus.Fields{"user_id": userID, "count": len(s.followUps)}).Debug("Follow-ups scheduled")
	return nil
}
