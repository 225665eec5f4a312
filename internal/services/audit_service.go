package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/models"
)

// AuditService records payment events without ever failing the caller's operation
type AuditService struct {
	store  AuditLogger
	logger *logrus.Logger
}

// NewAuditService creates a new audit service. A nil store disables recording.
func NewAuditService(store AuditLogger, logger *logrus.Logger) *AuditService {
	return &AuditService{
		store:  store,
		logger: logger,
	}
}

// Record persists the entry, logging a failure instead of returning it
func (s *AuditService) Record(ctx context.Context, entry *models.PaymentAudit) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": entry.EventType,
			"booking_id": entry.BookingID,
		}).Warn("Payment audit not recorded")
	}
}
