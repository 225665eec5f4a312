package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/models"
	"github.com/smarttransit/ticket-bot/pkg/validator"
)

// AdminService implements the staff operations: manual reconciliation,
// route management, exports and ticket delivery.
type AdminService struct {
	bookings       BookingStore
	routes         RouteStore
	payments       PaymentStore
	invoices       InvoiceProvider
	notifier       *NotificationService
	reconciliation *ReconciliationService
	audit          *AuditService
	isAdmin        func(userID int64) bool
	tickets        *ticketUploads
	logger         *logrus.Logger
}

// NewAdminService creates a new AdminService
func NewAdminService(
	bookings BookingStore,
	routes RouteStore,
	payments PaymentStore,
	invoices InvoiceProvider,
	notifier *NotificationService,
	reconciliation *ReconciliationService,
	audit *AuditService,
	isAdmin func(userID int64) bool,
	logger *logrus.Logger,
) *AdminService {
	return &AdminService{
		bookings:       bookings,
		routes:         routes,
		payments:       payments,
		invoices:       invoices,
		notifier:       notifier,
		reconciliation: reconciliation,
		audit:          audit,
		isAdmin:        isAdmin,
		tickets:        newTicketUploads(),
		logger:         logger,
	}
}

// Authorize rejects users outside the admin set
func (s *AdminService) Authorize(userID int64) error {
	if !s.isAdmin(userID) {
		return &AuthorizationError{UserID: userID}
	}
	return nil
}

func (s *AdminService) loadBooking(ctx context.Context, id int64) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("load booking", err)
	}
	if booking == nil {
		return nil, &NotFoundError{Resource: "booking", ID: id}
	}
	return booking, nil
}

// GetBooking returns one booking
func (s *AdminService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.loadBooking(ctx, id)
}

// ============================================================================
// RECONCILIATION
// ============================================================================

// MarkPaid settles a booking by hand. A booking without a payment gets a manual one.
// Marking an already paid booking is a no-op and notifies nobody; changed reports
// whether this call did the settling.
func (s *AdminService) MarkPaid(ctx context.Context, bookingID int64) (booking *models.Booking, changed bool, err error) {
	booking, err = s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, false, err
	}
	switch booking.Status {
	case models.BookingStatusPaid, models.BookingStatusProcessed:
		return booking, false, nil
	case models.BookingStatusCancelled:
		return booking, false, &ValidationError{Field: "status", Message: fmt.Sprintf("booking %d is cancelled", bookingID)}
	}

	var won bool
	if booking.PaymentID == nil {
		payment := &models.Payment{PaymentMethod: models.PaymentMethodManual}
		won, err = s.bookings.AttachPayment(ctx, bookingID, payment, models.BookingStatusPaid,
			models.OverrideSources(models.BookingStatusPaid)...)
		if err == nil && won {
			booking.PaymentID = &payment.ID
		}
	} else {
		won, err = s.bookings.MarkPaid(ctx, bookingID)
	}
	if err != nil {
		return nil, false, storageErr("mark booking paid", err)
	}

	if !won {
		current, err := s.loadBooking(ctx, bookingID)
		if err != nil {
			return nil, false, err
		}
		if current.Status == models.BookingStatusPaid || current.Status == models.BookingStatusProcessed {
			return current, false, nil
		}
		return current, false, &ValidationError{Field: "status", Message: fmt.Sprintf("booking %d changed to %s, try again", bookingID, current.Status)}
	}

	booking.Status = models.BookingStatusPaid
	s.reconciliation.CancelJobs(bookingID)
	s.logger.WithFields(logrus.Fields{"booking_id": bookingID, "user_id": booking.UserID}).Info("Booking marked paid by admin")
	s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventAdminMarkedPaid, models.PaymentSourceAdmin).
		SetBooking(bookingID))

	_ = s.notifier.NotifyUser(ctx, booking.UserID, fmt.Sprintf("Your payment for booking #%d is confirmed. Your ticket will follow shortly.", bookingID))
	s.notifier.QueueFollowUps(ctx, booking.UserID)
	return booking, true, nil
}

// Cancel cancels a booking from any status. Cancelling a cancelled booking is a no-op.
func (s *AdminService) Cancel(ctx context.Context, bookingID int64) (booking *models.Booking, changed bool, err error) {
	booking, err = s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, false, err
	}
	if booking.Status == models.BookingStatusCancelled {
		return booking, false, nil
	}

	won, err := s.bookings.Transition(ctx, bookingID, models.BookingStatusCancelled,
		models.OverrideSources(models.BookingStatusCancelled)...)
	if err != nil {
		return nil, false, storageErr("cancel booking", err)
	}
	if !won {
		return booking, false, nil
	}

	previous := booking.Status
	booking.Status = models.BookingStatusCancelled
	s.reconciliation.CancelJobs(bookingID)
	s.logger.WithFields(logrus.Fields{"booking_id": bookingID, "previous_status": previous}).Info("Booking cancelled by admin")

	if previous == models.BookingStatusPending && booking.PaymentID != nil {
		s.dropInvoice(ctx, *booking.PaymentID)
	}

	_ = s.notifier.NotifyUser(ctx, booking.UserID, fmt.Sprintf("Booking #%d was cancelled by our staff.", bookingID))
	return booking, true, nil
}

func (s *AdminService) dropInvoice(ctx context.Context, paymentID int64) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil || payment == nil || payment.InvoiceID == nil {
		return
	}
	if err := s.invoices.DeleteInvoice(ctx, *payment.InvoiceID); err != nil {
		s.logger.WithError(err).WithField("invoice_id", *payment.InvoiceID).Debug("Failed to delete invoice")
	}
}

// SetStatus is the direct status override. Paid and cancelled go through MarkPaid and Cancel.
func (s *AdminService) SetStatus(ctx context.Context, bookingID int64, status models.BookingStatus) (*models.Booking, error) {
	if !status.IsValid() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	switch status {
	case models.BookingStatusPaid:
		booking, _, err := s.MarkPaid(ctx, bookingID)
		return booking, err
	case models.BookingStatusCancelled:
		booking, _, err := s.Cancel(ctx, bookingID)
		return booking, err
	}

	ok, err := s.bookings.SetStatus(ctx, bookingID, status)
	if err != nil {
		return nil, storageErr("set booking status", err)
	}
	if !ok {
		return nil, &NotFoundError{Resource: "booking", ID: bookingID}
	}
	s.logger.WithFields(logrus.Fields{"booking_id": bookingID, "status": status}).Info("Booking status set by admin")
	return s.loadBooking(ctx, bookingID)
}

// DeleteBooking hard-deletes a booking
func (s *AdminService) DeleteBooking(ctx context.Context, bookingID int64) error {
	ok, err := s.bookings.Delete(ctx, bookingID)
	if err != nil {
		return storageErr("delete booking", err)
	}
	if !ok {
		return &NotFoundError{Resource: "booking", ID: bookingID}
	}
	s.reconciliation.CancelJobs(bookingID)
	s.logger.WithField("booking_id", bookingID).Warn("Booking deleted by admin")
	return nil
}

// ListBookings returns all bookings, or those in one status when status is set
func (s *AdminService) ListBookings(ctx context.Context, status *models.BookingStatus) ([]models.Booking, error) {
	var (
		bookings []models.Booking
		err      error
	)
	if status != nil {
		if !status.IsValid() {
			return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *status)}
		}
		bookings, err = s.bookings.ListByStatus(ctx, *status)
	} else {
		bookings, err = s.bookings.ListAll(ctx)
	}
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	return bookings, nil
}

// ExportCSV writes every booking as CSV
func (s *AdminService) ExportCSV(ctx context.Context, w io.Writer) error {
	bookings, err := s.bookings.ListAll(ctx)
	if err != nil {
		return storageErr("export bookings", err)
	}

	cw := csv.NewWriter(w)
	header := []string{"id", "user_id", "departure", "destination", "travel_date", "seat_class",
		"quantity", "unit_price", "total_price", "status", "payment_id", "created_at"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, b := range bookings {
		unit := ""
		if b.UnitPrice.Valid {
			unit = b.UnitPrice.Decimal.StringFixed(2)
		}
		total := ""
		if b.TotalPrice.Valid {
			total = b.TotalPrice.Decimal.StringFixed(2)
		}
		payment := ""
		if b.PaymentID != nil {
			payment = strconv.FormatInt(*b.PaymentID, 10)
		}
		record := []string{
			strconv.FormatInt(b.ID, 10),
			strconv.FormatInt(b.UserID, 10),
			b.Departure,
			b.Destination,
			b.TravelDate,
			string(b.SeatClass),
			strconv.Itoa(b.Quantity),
			unit,
			total,
			string(b.Status),
			payment,
			b.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ============================================================================
// ROUTES
// ============================================================================

// AddRoute creates or reprices a route
func (s *AdminService) AddRoute(ctx context.Context, departure, destination, cost string) (*models.Route, error) {
	dep, err := validator.NormalizeCity(departure)
	if err != nil {
		return nil, &ValidationError{Field: "departure", Message: err.Error()}
	}
	dest, err := validator.NormalizeCity(destination)
	if err != nil {
		return nil, &ValidationError{Field: "destination", Message: err.Error()}
	}
	price, err := validator.ParseCost(cost)
	if err != nil {
		return nil, &ValidationError{Field: "cost", Message: err.Error()}
	}

	route, err := s.routes.Upsert(ctx, dep, dest, price)
	if err != nil {
		return nil, storageErr("upsert route", err)
	}
	s.logger.WithFields(logrus.Fields{"route_id": route.ID, "cost": route.Cost.StringFixed(2)}).Info("Route saved")
	return route, nil
}

// ListRoutes returns every route
func (s *AdminService) ListRoutes(ctx context.Context) ([]models.Route, error) {
	routes, err := s.routes.List(ctx)
	if err != nil {
		return nil, storageErr("list routes", err)
	}
	return routes, nil
}

// DeleteRoute removes a route. Bookings keep their copied departure and destination.
func (s *AdminService) DeleteRoute(ctx context.Context, routeID int64) error {
	ok, err := s.routes.Delete(ctx, routeID)
	if err != nil {
		return storageErr("delete route", err)
	}
	if !ok {
		return &NotFoundError{Resource: "route", ID: routeID}
	}
	return nil
}

// ============================================================================
// TICKET DELIVERY
// ============================================================================

// BeginTicketUpload remembers which booking the admin's next document belongs to
func (s *AdminService) BeginTicketUpload(ctx context.Context, adminID, bookingID int64) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPaid && booking.Status != models.BookingStatusProcessed {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("booking %d is %s, tickets go to paid bookings", bookingID, booking.Status)}
	}
	s.tickets.set(adminID, bookingID)
	return booking, nil
}

// AttachTicket forwards the admin's document to the booking's user and marks the booking processed.
// The pending upload is kept when delivery fails so the admin can resend.
func (s *AdminService) AttachTicket(ctx context.Context, adminID int64, fileID string) (*models.Booking, error) {
	bookingID, ok := s.tickets.get(adminID)
	if !ok {
		return nil, &NotFoundError{Resource: "pending ticket upload"}
	}
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	caption := fmt.Sprintf("Your ticket for booking #%d, %s on %s", booking.ID, booking.RouteLabel(), booking.TravelDate)
	if err := s.notifier.SendDocument(ctx, booking.UserID, fileID, caption); err != nil {
		return nil, err
	}
	s.tickets.evict(adminID)

	if _, err := s.bookings.Transition(ctx, bookingID, models.BookingStatusProcessed, models.BookingStatusPaid); err != nil {
		return nil, storageErr("mark booking processed", err)
	}
	booking.Status = models.BookingStatusProcessed
	s.logger.WithFields(logrus.Fields{"booking_id": bookingID, "admin_id": adminID}).Info("Ticket delivered")
	return booking, nil
}

// ticketUploads maps admin → booking awaiting that admin's document. Process-local.
type ticketUploads struct {
	mu      sync.Mutex
	pending map[int64]int64
}

func newTicketUploads() *ticketUploads {
	return &ticketUploads{pending: make(map[int64]int64)}
}

func (t *ticketUploads) set(adminID, bookingID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[adminID] = bookingID
}

func (t *ticketUploads) get(adminID int64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.pending[adminID]
	return id, ok
}

func (t *ticketUploads) evict(adminID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, adminID)
}
