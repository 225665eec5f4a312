package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/messaging"
	"github.com/smarttransit/ticket-bot/internal/models"
)

// PaymentService attaches a payment method to the user's confirmed booking
type PaymentService struct {
	bookings  BookingStore
	invoices  InvoiceProvider
	notifier  *NotificationService
	publisher Publisher
	audit     *AuditService
	asset     string
	locks     *userLocks
	logger    *logrus.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	bookings BookingStore,
	invoices InvoiceProvider,
	notifier *NotificationService,
	publisher Publisher,
	audit *AuditService,
	asset string,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		bookings:  bookings,
		invoices:  invoices,
		notifier:  notifier,
		publisher: publisher,
		audit:     audit,
		asset:     asset,
		locks:     newUserLocks(),
		logger:    logger,
	}
}

// SelectPayment applies the chosen method to the user's most recent booking.
// Only one booking per user is expected to be in flight. Selections of one user
// are serialized, so a double tap creates at most one invoice.
func (s *PaymentService) SelectPayment(ctx context.Context, userID int64, method models.PaymentMethod) (*models.Payment, error) {
	log := s.logger.WithFields(logrus.Fields{"user_id": userID, "payment_method": method})

	unlock := s.locks.Lock(userID)
	defer unlock()

	if !method.IsValid() {
		return nil, &ValidationError{Field: "payment_method", Message: fmt.Sprintf("unsupported payment method %q", method)}
	}

	booking, err := s.bookings.GetLastByUser(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Failed to load last booking")
		_ = s.notifier.NotifyUser(ctx, userID, genericFailureText)
		return nil, storageErr("load last booking", err)
	}
	if booking == nil {
		_ = s.notifier.NotifyUser(ctx, userID, "You have no booking to pay for. Start one with /booking.")
		return nil, &NotFoundError{Resource: "booking"}
	}
	log = log.WithField("booking_id", booking.ID)

	if booking.Status != models.BookingStatusPending || booking.PaymentID != nil {
		_ = s.notifier.NotifyUser(ctx, userID, fmt.Sprintf("Booking #%d is %s and cannot take a payment choice.", booking.ID, booking.Status))
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("booking %d is %s", booking.ID, booking.Status)}
	}

	switch method {
	case models.PaymentMethodManual:
		return s.selectManual(ctx, log, booking)
	default:
		return s.selectCrypto(ctx, log, booking)
	}
}

func (s *PaymentService) selectManual(ctx context.Context, log *logrus.Entry, booking *models.Booking) (*models.Payment, error) {
	payment := &models.Payment{PaymentMethod: models.PaymentMethodManual}

	won, err := s.bookings.AttachPayment(ctx, booking.ID, payment, models.BookingStatusManual, models.BookingStatusPending)
	if err != nil {
		log.WithError(err).Error("Failed to attach manual payment")
		_ = s.notifier.NotifyUser(ctx, booking.UserID, genericFailureText)
		return nil, storageErr("attach payment", err)
	}
	if !won {
		_ = s.notifier.NotifyUser(ctx, booking.UserID, "A payment method was already chosen for this booking.")
		return nil, &ValidationError{Field: "payment", Message: "payment already attached"}
	}
	booking.PaymentID = &payment.ID
	booking.Status = models.BookingStatusManual
	log.Info("Manual payment selected")

	s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventManualSelected, models.PaymentSourceUser).
		SetBooking(booking.ID).
		SetAmount(booking.TotalPrice.Decimal, s.asset))

	s.notifier.NotifyAdmins(ctx, "Manual payment requested\n"+bookingSummary(booking)+"\nUser: "+s.notifier.UserHandle(ctx, booking.UserID))
	_ = s.notifier.NotifyUser(ctx, booking.UserID, "Our staff will contact you to complete the payment.")
	return payment, nil
}

// selectCrypto creates the invoice before touching the booking, so a provider
// failure leaves nothing behind.
func (s *PaymentService) selectCrypto(ctx context.Context, log *logrus.Entry, booking *models.Booking) (*models.Payment, error) {
	if !booking.TotalPrice.Valid {
		return nil, &ValidationError{Field: "total_price", Message: "booking has no price"}
	}

	invoice, err := s.invoices.CreateInvoice(ctx, booking.TotalPrice.Decimal, fmt.Sprintf("Booking #%d %s", booking.ID, booking.RouteLabel()))
	if err != nil {
		log.WithError(err).Error("Failed to create invoice")
		s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventInvoiceFailed, models.PaymentSourceUser).
			SetBooking(booking.ID).
			SetError(err))
		_ = s.notifier.NotifyUser(ctx, booking.UserID, "The payment provider is unavailable right now. Please try again in a moment.", paymentChoices()...)
		return nil, &ExternalServiceError{Service: "invoice provider", Err: err}
	}
	log = log.WithField("invoice_id", invoice.ID)

	payment := &models.Payment{
		PaymentMethod: models.PaymentMethodCrypto,
		InvoiceID:     &invoice.ID,
		PayURL:        &invoice.PayURL,
	}
	won, err := s.bookings.AttachPayment(ctx, booking.ID, payment, models.BookingStatusPending, models.BookingStatusPending)
	if err != nil {
		log.WithError(err).Error("Failed to attach crypto payment")
		s.dropUnattachedInvoice(ctx, log, invoice.ID)
		_ = s.notifier.NotifyUser(ctx, booking.UserID, genericFailureText)
		return nil, storageErr("attach payment", err)
	}
	if !won {
		s.dropUnattachedInvoice(ctx, log, invoice.ID)
		_ = s.notifier.NotifyUser(ctx, booking.UserID, "A payment method was already chosen for this booking.")
		return nil, &ValidationError{Field: "payment", Message: "payment already attached"}
	}
	log.Info("Crypto invoice attached")

	s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventInvoiceCreated, models.PaymentSourceUser).
		SetBooking(booking.ID).
		SetInvoice(invoice.ID).
		SetAmount(invoice.Amount, invoice.Asset))

	check := models.CryptoCheck{BookingID: booking.ID, InvoiceID: invoice.ID, UserID: booking.UserID}
	if err := s.publisher.Publish(ctx, messaging.TopicCryptoCheck, check); err != nil {
		log.WithError(err).Error("Failed to queue invoice polling, it resumes on restart")
	}

	_ = s.notifier.NotifyUser(ctx, booking.UserID,
		fmt.Sprintf("Pay %s %s to complete booking #%d. Unpaid invoices expire.",
			invoice.Amount.StringFixed(2), invoice.Asset, booking.ID),
		models.Choice{Label: "Pay", URL: invoice.PayURL})
	return payment, nil
}


// dropUnattachedInvoice deletes an invoice no booking refers to, so the user cannot pay it
func (s *PaymentService) dropUnattachedInvoice(ctx context.Context, log *logrus.Entry, invoiceID int64) {
	if err := s.invoices.DeleteInvoice(ctx, invoiceID); err != nil {
		log.WithError(err).Warn("Failed to delete unattached invoice")
		return
	}
	log.Info("Deleted unattached invoice")
}
