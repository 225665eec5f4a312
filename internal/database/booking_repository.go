package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/smarttransit/ticket-bot/internal/models"
)

// BookingRepository handles database operations for bookings table.
// Every status change is a conditional write: the caller states which statuses
// it expects to move from and learns whether its write won.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, user_id, route_id, departure, destination, travel_date,
	seat_class, quantity, unit_price, total_price, payment_id, status,
	created_at, updated_at`

// checkTransition rejects a conditional write that the status table does not allow.
// Keeping a status (from == to) is allowed so a payment can be attached in place.
func checkTransition(to models.BookingStatus, from []models.BookingStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("no source status given for transition to %s", to)
	}
	for _, f := range from {
		if f != to && !f.CanOverrideTo(to) {
			return fmt.Errorf("transition %s -> %s is not allowed", f, to)
		}
	}
	return nil
}

func statusArray(statuses []models.BookingStatus) interface{} {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return pq.Array(values)
}

// ============================================================================
// CREATE / READ
// ============================================================================

// Create inserts a booking and fills in its id and timestamps
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if err := booking.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO bookings (
			user_id, route_id, departure, destination, travel_date,
			seat_class, quantity, unit_price, total_price, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		booking.UserID, booking.RouteID, booking.Departure, booking.Destination, booking.TravelDate,
		booking.SeatClass, booking.Quantity, booking.UnitPrice, booking.TotalPrice, booking.Status,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by id. Returns nil, nil when not found.
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	err := r.db.GetContext(ctx, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetLastByUser returns the most recently created booking of a user, or nil, nil
func (r *BookingRepository) GetLastByUser(ctx context.Context, userID int64) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY id DESC LIMIT 1`

	err := r.db.GetContext(ctx, &booking, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last booking: %w", err)
	}
	return &booking, nil
}

// ListByUser returns a user's bookings, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY id DESC LIMIT $2`

	if err := r.db.SelectContext(ctx, &bookings, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list user bookings: %w", err)
	}
	return bookings, nil
}

// ListByStatus returns all bookings in one status, oldest first
func (r *BookingRepository) ListByStatus(ctx context.Context, status models.BookingStatus) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = $1 ORDER BY id`

	if err := r.db.SelectContext(ctx, &bookings, query, status); err != nil {
		return nil, fmt.Errorf("failed to list bookings by status: %w", err)
	}
	return bookings, nil
}

// ListAll returns every booking, oldest first
func (r *BookingRepository) ListAll(ctx context.Context) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY id`

	if err := r.db.SelectContext(ctx, &bookings, query); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ListUnpaidCreatedBefore returns unpaid bookings created at or before the cutoff
func (r *BookingRepository) ListUnpaidCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `
		SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = $1 AND created_at <= $2
		ORDER BY created_at
	`

	if err := r.db.SelectContext(ctx, &bookings, query, models.BookingStatusUnpaid, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list expired unpaid bookings: %w", err)
	}
	return bookings, nil
}

// ListAwaitingInvoice returns the pending crypto bookings that still wait on their invoice
func (r *BookingRepository) ListAwaitingInvoice(ctx context.Context) ([]models.CryptoCheck, error) {
	checks := []models.CryptoCheck{}
	query := `
		SELECT b.id AS booking_id, p.invoice_id, b.user_id
		FROM bookings b
		JOIN payments p ON p.id = b.payment_id
		WHERE b.status = $1
		  AND p.payment_method = $2
		  AND p.invoice_id IS NOT NULL
		ORDER BY b.id
	`

	err := r.db.SelectContext(ctx, &checks, query, models.BookingStatusPending, models.PaymentMethodCrypto)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings awaiting invoice: %w", err)
	}
	return checks, nil
}

// ============================================================================
// CONDITIONAL STATUS WRITES
// ============================================================================

// Transition moves the booking to status "to" only if it is currently in one of "from".
// Returns false when the booking is missing or in another status.
func (r *BookingRepository) Transition(ctx context.Context, id int64, to models.BookingStatus, from ...models.BookingStatus) (bool, error) {
	if err := checkTransition(to, from); err != nil {
		return false, err
	}
	query := `
		UPDATE bookings
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`
	return r.execConditional(ctx, "transition booking", query, id, to, statusArray(from))
}

// MarkPaid settles a booking that already references a payment.
// Only statuses the lifecycle lets reach paid are matched.
func (r *BookingRepository) MarkPaid(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND payment_id IS NOT NULL AND status = ANY($3)
	`
	return r.execConditional(ctx, "mark booking paid", query, id, models.BookingStatusPaid,
		statusArray(models.TransitionSources(models.BookingStatusPaid)))
}

// CancelUnlessSettled cancels a booking the lifecycle still allows to be cancelled
func (r *BookingRepository) CancelUnlessSettled(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`
	return r.execConditional(ctx, "cancel booking", query, id, models.BookingStatusCancelled,
		statusArray(models.TransitionSources(models.BookingStatusCancelled)))
}

// SetStatus overwrites the status unconditionally. Admin override only.
func (r *BookingRepository) SetStatus(ctx context.Context, id int64, status models.BookingStatus) (bool, error) {
	query := `UPDATE bookings SET status = $2, updated_at = NOW() WHERE id = $1`
	return r.execConditional(ctx, "set booking status", query, id, status)
}

// AttachPayment inserts the payment and links it to the booking in one transaction.
// The booking must have no payment yet and be in one of "from"; otherwise nothing is written.
func (r *BookingRepository) AttachPayment(ctx context.Context, bookingID int64, payment *models.Payment, to models.BookingStatus, from ...models.BookingStatus) (bool, error) {
	if err := checkTransition(to, from); err != nil {
		return false, err
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO payments (payment_method, invoice_id, pay_url, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`, payment.PaymentMethod, payment.InvoiceID, payment.PayURL).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create payment: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET payment_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND payment_id IS NULL AND status = ANY($4)
	`, bookingID, payment.ID, to, statusArray(from))
	if err != nil {
		return false, fmt.Errorf("failed to attach payment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit payment: %w", err)
	}
	return true, nil
}

// Delete hard-deletes a booking. Admin only.
func (r *BookingRepository) Delete(ctx context.Context, id int64) (bool, error) {
	return r.execConditional(ctx, "delete booking", `DELETE FROM bookings WHERE id = $1`, id)
}

func (r *BookingRepository) execConditional(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
