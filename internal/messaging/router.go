package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/models"
)

// AdminBroadcaster delivers a text to every admin
type AdminBroadcaster interface {
	DeliverToAdmins(ctx context.Context, text string)
}

// InvoicePoller starts the recurring invoice check of a crypto booking
type InvoicePoller interface {
	StartInvoicePolling(ctx context.Context, check models.CryptoCheck) error
}

// ExpiryScheduler arms the one-shot expiry check of an unpaid booking
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, bookingID, userID int64, createdAt time.Time) error
}

// FollowUpScheduler arms the delayed follow-up messages of a user
type FollowUpScheduler interface {
	ScheduleFollowUps(ctx context.Context, userID int64) error
}

// RouterDeps are the consumers of the background topics
type RouterDeps struct {
	Subscriber  message.Subscriber
	Logger      watermill.LoggerAdapter
	AppLogger   *logrus.Logger
	Admins      AdminBroadcaster
	Invoices    InvoicePoller
	Expirations ExpiryScheduler
	FollowUps   FollowUpScheduler
}

// NewRouter wires one handler per topic
func NewRouter(deps RouterDeps) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)
	router.AddMiddleware(correlationIDMiddleware)
	router.AddMiddleware(handlerLogMiddleware(deps.AppLogger))
	router.AddMiddleware(middleware.Retry{
		MaxRetries:      5,
		InitialInterval: time.Millisecond * 100,
		MaxInterval:     time.Second * 5,
		Multiplier:      2,
		Logger:          deps.Logger,
	}.Middleware)

	router.AddNoPublisherHandler("admin-broadcast", TopicAdminMessage, deps.Subscriber,
		func(msg *message.Message) error {
			var payload AdminMessage
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				deps.AppLogger.WithError(err).Warn("Dropping malformed admin message")
				return nil
			}
			deps.Admins.DeliverToAdmins(msg.Context(), payload.Text)
			return nil
		})

	router.AddNoPublisherHandler("schedule-invoice-polling", TopicCryptoCheck, deps.Subscriber,
		func(msg *message.Message) error {
			var check models.CryptoCheck
			if err := json.Unmarshal(msg.Payload, &check); err != nil {
				deps.AppLogger.WithError(err).Warn("Dropping malformed crypto check")
				return nil
			}
			return deps.Invoices.StartInvoicePolling(msg.Context(), check)
		})

	router.AddNoPublisherHandler("schedule-expiry-check", TopicExpireCheck, deps.Subscriber,
		func(msg *message.Message) error {
			var check ExpireCheck
			if err := json.Unmarshal(msg.Payload, &check); err != nil {
				deps.AppLogger.WithError(err).Warn("Dropping malformed expire check")
				return nil
			}
			return deps.Expirations.ScheduleExpiry(msg.Context(), check.BookingID, check.UserID, check.CreatedAt)
		})

	router.AddNoPublisherHandler("schedule-user-follow-ups", TopicUserFollowUp, deps.Subscriber,
		func(msg *message.Message) error {
			var followUp UserFollowUp
			if err := json.Unmarshal(msg.Payload, &followUp); err != nil {
				deps.AppLogger.WithError(err).Warn("Dropping malformed user follow-up")
				return nil
			}
			return deps.FollowUps.ScheduleFollowUps(msg.Context(), followUp.UserID)
		})

	return router, nil
}
