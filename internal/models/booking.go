package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smarttransit/ticket-bot/pkg/validator"
)

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusUnpaid     BookingStatus = "unpaid"
	BookingStatusConfirming BookingStatus = "confirming"
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusPaid       BookingStatus = "paid"
	BookingStatusManual     BookingStatus = "manual"
	BookingStatusCancelled  BookingStatus = "cancelled"
	BookingStatusProcessed  BookingStatus = "processed"
)

// bookingStatuses lists every status in lifecycle order
var bookingStatuses = []BookingStatus{
	BookingStatusUnpaid,
	BookingStatusConfirming,
	BookingStatusPending,
	BookingStatusManual,
	BookingStatusPaid,
	BookingStatusCancelled,
	BookingStatusProcessed,
}

// bookingTransitions lists the transitions the dialog and reconciliation may make
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusUnpaid:     {BookingStatusPending, BookingStatusCancelled},
	BookingStatusConfirming: {BookingStatusPending, BookingStatusCancelled},
	BookingStatusPending:    {BookingStatusPaid, BookingStatusCancelled, BookingStatusManual},
	BookingStatusManual:     {BookingStatusPaid, BookingStatusCancelled},
	BookingStatusPaid:       {BookingStatusProcessed},
	BookingStatusCancelled:  {},
	BookingStatusProcessed:  {},
}

// overrideTransitions are the extra moves open to admins: settling a booking that
// never got a payment and cancelling a settled one
var overrideTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusUnpaid:     {BookingStatusPaid},
	BookingStatusConfirming: {BookingStatusPaid},
	BookingStatusPaid:       {BookingStatusCancelled},
	BookingStatusProcessed:  {BookingStatusCancelled},
}

// IsValid returns true if the status is a recognized booking status
func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// CanTransitionTo returns true if the lifecycle allows moving from s to target
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	return contains(bookingTransitions[s], target)
}

// CanOverrideTo returns true if an admin may move a booking from s to target
func (s BookingStatus) CanOverrideTo(target BookingStatus) bool {
	return s.CanTransitionTo(target) || contains(overrideTransitions[s], target)
}

// TransitionSources returns the statuses the lifecycle allows to reach target
func TransitionSources(target BookingStatus) []BookingStatus {
	return sources(target, BookingStatus.CanTransitionTo)
}

// OverrideSources returns the statuses an admin may move to target
func OverrideSources(target BookingStatus) []BookingStatus {
	return sources(target, BookingStatus.CanOverrideTo)
}

func sources(target BookingStatus, allowed func(BookingStatus, BookingStatus) bool) []BookingStatus {
	var out []BookingStatus
	for _, s := range bookingStatuses {
		if allowed(s, target) {
			out = append(out, s)
		}
	}
	return out
}

func contains(statuses []BookingStatus, target BookingStatus) bool {
	for _, s := range statuses {
		if s == target {
			return true
		}
	}
	return false
}

// IsSettled reports whether payment reconciliation is finished for this status.
// Settled bookings are never touched by the sweep.
func (s BookingStatus) IsSettled() bool {
	return s == BookingStatusPaid || s == BookingStatusCancelled || s == BookingStatusProcessed
}

// ParseBookingStatus converts a string to a BookingStatus
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

// SeatClass is the seat category chosen in the dialog
type SeatClass string

const (
	SeatClassStandard SeatClass = "standard"
	SeatClassBusiness SeatClass = "business"
	SeatClassSleeper  SeatClass = "sleeper"
)

// SeatClasses lists the classes in display order
var SeatClasses = []SeatClass{SeatClassStandard, SeatClassBusiness, SeatClassSleeper}

// IsValid returns true if the seat class is known
func (c SeatClass) IsValid() bool {
	switch c {
	case SeatClassStandard, SeatClassBusiness, SeatClassSleeper:
		return true
	}
	return false
}

// ParseSeatClass accepts a class name in any case, as typed or carried by a button
func ParseSeatClass(input string) (SeatClass, error) {
	class := SeatClass(strings.ToLower(strings.TrimSpace(input)))
	if !class.IsValid() {
		return "", fmt.Errorf("unknown seat class %q", input)
	}
	return class, nil
}

// Booking represents a user's request to purchase seats on a route
type Booking struct {
	ID          int64               `json:"id" db:"id"`
	UserID      int64               `json:"user_id" db:"user_id"`
	RouteID     *int64              `json:"route_id,omitempty" db:"route_id"`
	Departure   string              `json:"departure" db:"departure"`
	Destination string              `json:"destination" db:"destination"`
	TravelDate  string              `json:"travel_date" db:"travel_date"`
	SeatClass   SeatClass           `json:"seat_class" db:"seat_class"`
	Quantity    int                 `json:"quantity" db:"quantity"`
	UnitPrice   decimal.NullDecimal `json:"unit_price" db:"unit_price"`
	TotalPrice  decimal.NullDecimal `json:"total_price" db:"total_price"`
	PaymentID   *int64              `json:"payment_id,omitempty" db:"payment_id"`
	Status      BookingStatus       `json:"status" db:"status"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at" db:"updated_at"`
}

// NewPricedBooking builds an unpaid booking with its fare resolved.
// The total is computed once, here.
func NewPricedBooking(userID int64, routeID int64, draft BookingDraft, unitPrice decimal.Decimal) *Booking {
	total := unitPrice.Mul(decimal.NewFromInt(int64(draft.Quantity)))
	return &Booking{
		UserID:      userID,
		RouteID:     &routeID,
		Departure:   draft.Departure,
		Destination: draft.Destination,
		TravelDate:  draft.TravelDate,
		SeatClass:   draft.SeatClass,
		Quantity:    draft.Quantity,
		UnitPrice:   decimal.NullDecimal{Decimal: unitPrice, Valid: true},
		TotalPrice:  decimal.NullDecimal{Decimal: total, Valid: true},
		Status:      BookingStatusUnpaid,
	}
}

// Validate checks the booking invariants
func (b *Booking) Validate() error {
	if !b.Status.IsValid() {
		return fmt.Errorf("invalid booking status: %s", b.Status)
	}
	if b.Quantity < validator.MinQuantity || b.Quantity > validator.MaxQuantity {
		return validator.ErrQuantityOutOfRange
	}
	if b.TotalPrice.Valid && b.TotalPrice.Decimal.IsNegative() {
		return fmt.Errorf("total price cannot be negative")
	}
	if b.Status == BookingStatusPaid && b.PaymentID == nil {
		return fmt.Errorf("paid booking must reference a payment")
	}
	return nil
}

// RouteLabel returns "Departure → Destination"
func (b *Booking) RouteLabel() string {
	return b.Departure + " → " + b.Destination
}

// TotalLabel formats the total price, or "-" while unresolved
func (b *Booking) TotalLabel() string {
	if !b.TotalPrice.Valid {
		return "-"
	}
	return b.TotalPrice.Decimal.StringFixed(2)
}

// BookingDraft accumulates the dialog answers before a booking exists
type BookingDraft struct {
	Departure   string    `json:"departure"`
	Destination string    `json:"destination"`
	TravelDate  string    `json:"travel_date"`
	SeatClass   SeatClass `json:"seat_class"`
	Quantity    int       `json:"quantity"`
}
