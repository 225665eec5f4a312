package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/models"
)

// ReconciliationConfig holds the timings of the payment sweep
type ReconciliationConfig struct {
	PollInterval   time.Duration
	InvoiceTimeout time.Duration
	UnpaidExpiry   time.Duration
}

// ReconciliationService settles bookings outside the conversation: it polls crypto
// invoices, cancels invoices that time out and expires bookings left unpaid.
// Every write is conditional, and only the writer whose update applied notifies anyone.
type ReconciliationService struct {
	bookings  BookingStore
	invoices  InvoiceProvider
	notifier  *NotificationService
	scheduler Scheduler
	audit     *AuditService
	cfg       ReconciliationConfig
	now       Clock
	logger    *logrus.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	bookings BookingStore,
	invoices InvoiceProvider,
	notifier *NotificationService,
	scheduler Scheduler,
	audit *AuditService,
	cfg ReconciliationConfig,
	now Clock,
	logger *logrus.Logger,
) *ReconciliationService {
	if now == nil {
		now = time.Now
	}
	return &ReconciliationService{
		bookings:  bookings,
		invoices:  invoices,
		notifier:  notifier,
		scheduler: scheduler,
		audit:     audit,
		cfg:       cfg,
		now:       now,
		logger:    logger,
	}
}

func pollJobID(bookingID int64) string {
	return fmt.Sprintf("crypto_check_%d", bookingID)
}

func expiryJobID(bookingID int64) string {
	return fmt.Sprintf("expire_check_%d", bookingID)
}

// ============================================================================
// INVOICE POLLING
// ============================================================================

// StartInvoicePolling schedules the recurring status check of one crypto booking
func (s *ReconciliationService) StartInvoicePolling(ctx context.Context, check models.CryptoCheck) error {
	return s.scheduler.ScheduleInterval(pollJobID(check.BookingID), s.cfg.PollInterval, func(ctx context.Context) {
		s.CheckInvoice(ctx, check)
	})
}

// CheckInvoice runs one poll. Returns true once the booking needs no more polling.
func (s *ReconciliationService) CheckInvoice(ctx context.Context, check models.CryptoCheck) bool {
	log := s.logger.WithFields(logrus.Fields{
		"booking_id": check.BookingID,
		"invoice_id": check.InvoiceID,
		"user_id":    check.UserID,
	})

	booking, err := s.bookings.GetByID(ctx, check.BookingID)
	if err != nil {
		log.WithError(err).Error("Failed to load booking, retrying next tick")
		return false
	}
	if booking == nil || booking.Status.IsSettled() {
		s.stopPolling(check.BookingID)
		return true
	}

	status, err := s.invoices.GetInvoiceStatus(ctx, check.InvoiceID)
	if err != nil {
		log.WithError(err).Warn("Invoice status unavailable, retrying next tick")
		s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventStatusCheckFailed, models.PaymentSourceProvider).
			SetBooking(check.BookingID).
			SetInvoice(check.InvoiceID).
			SetError(err))
		return false
	}

	if status == models.InvoiceStatusPaid {
		s.settlePaid(ctx, log, booking, check)
		s.stopPolling(check.BookingID)
		return true
	}

	if s.now().Sub(booking.CreatedAt) > s.cfg.InvoiceTimeout {
		s.timeOut(ctx, log, booking, check)
		s.stopPolling(check.BookingID)
		return true
	}

	log.WithField("invoice_status", status).Debug("Invoice not paid yet")
	return false
}

func (s *ReconciliationService) settlePaid(ctx context.Context, log *logrus.Entry, booking *models.Booking, check models.CryptoCheck) {
	won, err := s.bookings.MarkPaid(ctx, booking.ID)
	if err != nil {
		log.WithError(err).Error("Failed to mark booking paid")
		return
	}

	if !won {
		current, err := s.bookings.GetByID(ctx, booking.ID)
		if err != nil {
			log.WithError(err).Error("Failed to reload booking")
			return
		}
		if current != nil && current.Status == models.BookingStatusCancelled {
			log.Warn("Invoice paid for a cancelled booking")
			s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventPaidAfterCancelled, models.PaymentSourceProvider).
				SetBooking(booking.ID).
				SetInvoice(check.InvoiceID).
				SetInvoiceStatus(models.InvoiceStatusPaid))
			s.notifier.NotifyAdmins(ctx, fmt.Sprintf(
				"Invoice %d was paid but booking #%d is cancelled. Please review and refund or reinstate.\nUser: %s",
				check.InvoiceID, booking.ID, s.notifier.UserHandle(ctx, booking.UserID)))
		}
		return
	}

	log.Info("Booking paid")
	booking.Status = models.BookingStatusPaid
	s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventPaid, models.PaymentSourceProvider).
		SetBooking(booking.ID).
		SetInvoice(check.InvoiceID).
		SetInvoiceStatus(models.InvoiceStatusPaid))

	_ = s.notifier.NotifyUser(ctx, booking.UserID, fmt.Sprintf("Payment received. Booking #%d is paid, your ticket will follow shortly.", booking.ID))
	s.notifier.NotifyAdmins(ctx, "Crypto payment received\n"+bookingSummary(booking)+"\nUser: "+s.notifier.UserHandle(ctx, booking.UserID))
	s.notifier.QueueFollowUps(ctx, booking.UserID)
}

func (s *ReconciliationService) timeOut(ctx context.Context, log *logrus.Entry, booking *models.Booking, check models.CryptoCheck) {
	won, err := s.bookings.CancelUnlessSettled(ctx, booking.ID)
	if err != nil {
		log.WithError(err).Error("Failed to cancel timed out booking")
		return
	}
	if !won {
		return
	}

	log.Info("Invoice timed out, booking cancelled")
	s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventTimedOut, models.PaymentSourceSweep).
		SetBooking(booking.ID).
		SetInvoice(check.InvoiceID))

	_ = s.notifier.NotifyUser(ctx, booking.UserID,
		fmt.Sprintf("Booking #%d was cancelled because the payment was not received in time.", booking.ID))

	if err := s.invoices.DeleteInvoice(ctx, check.InvoiceID); err != nil {
		log.WithError(err).Debug("Failed to delete expired invoice")
	}
}

func (s *ReconciliationService) stopPolling(bookingID int64) {
	s.scheduler.Cancel(pollJobID(bookingID))
}

// CancelJobs drops the timers of a booking settled by other means
func (s *ReconciliationService) CancelJobs(bookingID int64) {
	s.scheduler.Cancel(pollJobID(bookingID))
	s.scheduler.Cancel(expiryJobID(bookingID))
}

// ============================================================================
// UNPAID EXPIRATION
// ============================================================================

// ScheduleExpiry arms a one-shot check at createdAt + UnpaidExpiry
func (s *ReconciliationService) ScheduleExpiry(ctx context.Context, bookingID, userID int64, createdAt time.Time) error {
	delay := createdAt.Add(s.cfg.UnpaidExpiry).Sub(s.now())
	return s.scheduler.ScheduleOnce(expiryJobID(bookingID), delay, func(ctx context.Context) {
		if _, err := s.ExpireBooking(ctx, bookingID); err != nil {
			s.logger.WithError(err).WithField("booking_id", bookingID).Error("Expiry check failed")
		}
	})
}

// ExpireBooking cancels one booking if it is still unpaid and past its window.
// Returns true when this call cancelled it.
func (s *ReconciliationService) ExpireBooking(ctx context.Context, bookingID int64) (bool, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return false, storageErr("load booking", err)
	}
	if booking == nil {
		return false, nil
	}
	return s.expire(ctx, booking)
}

// SweepExpired cancels every booking left unpaid past the window. Returns how many it cancelled.
func (s *ReconciliationService) SweepExpired(ctx context.Context) int {
	cutoff := s.now().Add(-s.cfg.UnpaidExpiry)
	bookings, err := s.bookings.ListUnpaidCreatedBefore(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list expired bookings")
		return 0
	}
	if len(bookings) == 0 {
		return 0
	}

	s.logger.WithField("count", len(bookings)).Info("Processing expired bookings")

	cancelled := 0
	for i := range bookings {
		won, err := s.expire(ctx, &bookings[i])
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", bookings[i].ID).Error("Failed to expire booking")
			continue
		}
		if won {
			cancelled++
		}
	}
	return cancelled
}

func (s *ReconciliationService) expire(ctx context.Context, booking *models.Booking) (bool, error) {
	if booking.Status != models.BookingStatusUnpaid {
		return false, nil
	}
	if s.now().Before(booking.CreatedAt.Add(s.cfg.UnpaidExpiry)) {
		return false, nil
	}

	won, err := s.bookings.Transition(ctx, booking.ID, models.BookingStatusCancelled, models.BookingStatusUnpaid)
	if err != nil {
		return false, storageErr("expire booking", err)
	}
	if !won {
		return false, nil
	}

	s.scheduler.Cancel(expiryJobID(booking.ID))
	s.logger.WithFields(logrus.Fields{"booking_id": booking.ID, "user_id": booking.UserID}).Info("Unpaid booking expired")
	_ = s.notifier.NotifyUser(ctx, booking.UserID,
		fmt.Sprintf("Booking #%d was cancelled because it was not confirmed and paid in time.", booking.ID))
	return true, nil
}

// ============================================================================
// STARTUP
// ============================================================================

// Resume re-arms the timers lost with the previous process: invoice polling for
// pending crypto bookings and expiry checks for unpaid ones.
func (s *ReconciliationService) Resume(ctx context.Context) error {
	checks, err := s.bookings.ListAwaitingInvoice(ctx)
	if err != nil {
		return storageErr("list bookings awaiting invoice", err)
	}
	for _, check := range checks {
		if err := s.StartInvoicePolling(ctx, check); err != nil {
			s.logger.WithError(err).WithField("booking_id", check.BookingID).Error("Failed to resume invoice polling")
		}
	}

	unpaid, err := s.bookings.ListByStatus(ctx, models.BookingStatusUnpaid)
	if err != nil {
		return storageErr("list unpaid bookings", err)
	}
	for _, b := range unpaid {
		if err := s.ScheduleExpiry(ctx, b.ID, b.UserID, b.CreatedAt); err != nil {
			s.logger.WithError(err).WithField("booking_id", b.ID).Error("Failed to resume expiry check")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"invoice_polls": len(checks),
		"expiry_checks": len(unpaid),
	}).Info("Reconciliation timers resumed")
	return nil
}

