package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventInvoiceCreated     PaymentEventType = "invoice_created"
	PaymentEventInvoiceFailed      PaymentEventType = "invoice_failed"
	PaymentEventStatusChecked      PaymentEventType = "status_checked"
	PaymentEventStatusCheckFailed  PaymentEventType = "status_check_failed"
	PaymentEventManualSelected     PaymentEventType = "manual_selected"
	PaymentEventPaid               PaymentEventType = "payment_paid"
	PaymentEventTimedOut           PaymentEventType = "payment_timed_out"
	PaymentEventAdminMarkedPaid    PaymentEventType = "admin_marked_paid"
	PaymentEventPaidAfterCancelled PaymentEventType = "paid_after_cancelled"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceUser     PaymentEventSource = "user"
	PaymentSourceProvider PaymentEventSource = "crypto_pay"
	PaymentSourceSweep    PaymentEventSource = "sweep"
	PaymentSourceAdmin    PaymentEventSource = "admin"
)

// JSONB is a custom type for handling JSONB fields
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	BookingID   *int64             `json:"booking_id,omitempty" db:"booking_id"`
	InvoiceID   *int64             `json:"invoice_id,omitempty" db:"invoice_id"`
	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	Amount        decimal.NullDecimal `json:"amount,omitempty" db:"amount"`
	Asset         *string             `json:"asset,omitempty" db:"asset"`
	InvoiceStatus *string             `json:"invoice_status,omitempty" db:"invoice_status"`

	Details      JSONB   `json:"details,omitempty" db:"details"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetBooking sets the booking the event belongs to
func (pa *PaymentAudit) SetBooking(bookingID int64) *PaymentAudit {
	pa.BookingID = &bookingID
	return pa
}

// SetInvoice sets the provider invoice id
func (pa *PaymentAudit) SetInvoice(invoiceID int64) *PaymentAudit {
	pa.InvoiceID = &invoiceID
	return pa
}

// SetAmount sets the invoiced amount and asset
func (pa *PaymentAudit) SetAmount(amount decimal.Decimal, asset string) *PaymentAudit {
	pa.Amount = decimal.NullDecimal{Decimal: amount, Valid: true}
	pa.Asset = &asset
	return pa
}

// SetInvoiceStatus sets the status reported by the provider
func (pa *PaymentAudit) SetInvoiceStatus(status InvoiceStatus) *PaymentAudit {
	s := string(status)
	pa.InvoiceStatus = &s
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(err error) *PaymentAudit {
	msg := err.Error()
	pa.ErrorMessage = &msg
	return pa
}

// SetDetail adds a key to the free-form details
func (pa *PaymentAudit) SetDetail(key string, value interface{}) *PaymentAudit {
	if pa.Details == nil {
		pa.Details = JSONB{}
	}
	pa.Details[key] = value
	return pa
}
