package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is the way a user settles a booking
type PaymentMethod string

const (
	PaymentMethodManual PaymentMethod = "manual"
	PaymentMethodCrypto PaymentMethod = "crypto"
)

// IsValid returns true if the payment method is supported
func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodManual || m == PaymentMethodCrypto
}

// Payment is attached 1:1 to the booking that chose it
type Payment struct {
	ID            int64         `json:"id" db:"id"`
	PaymentMethod PaymentMethod `json:"payment_method" db:"payment_method"`
	InvoiceID     *int64        `json:"invoice_id,omitempty" db:"invoice_id"`
	PayURL        *string       `json:"pay_url,omitempty" db:"pay_url"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// InvoiceStatus is the provider-side state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusExpired InvoiceStatus = "expired"
)

// Invoice is the handle returned by the invoice provider
type Invoice struct {
	ID     int64
	PayURL string
	Amount decimal.Decimal
	Asset  string
}

// CryptoCheck identifies one per-booking invoice polling job
type CryptoCheck struct {
	BookingID int64 `json:"booking_id" db:"booking_id"`
	InvoiceID int64 `json:"invoice_id" db:"invoice_id"`
	UserID    int64 `json:"user_id" db:"user_id"`
}
