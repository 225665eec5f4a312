package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RegionalOffer is a monthly travel pass product published by admins
type RegionalOffer struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Advantages  string          `json:"advantages" db:"advantages"`
	URL         string          `json:"url" db:"url"`
	Price       decimal.Decimal `json:"price" db:"price"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Label is the button text of an offer
func (o *RegionalOffer) Label() string {
	return fmt.Sprintf("%s - %s", o.Name, o.Price.StringFixed(2))
}

// OfferDraft accumulates the admin's answers while an offer is being added
type OfferDraft struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Advantages  string `json:"advantages"`
	URL         string `json:"url"`
}

// PassStatus is the lifecycle status of a monthly pass order
type PassStatus string

const (
	PassStatusUnpaid    PassStatus = "unpaid"
	PassStatusPaid      PassStatus = "paid"
	PassStatusCancelled PassStatus = "cancelled"
)

// IsValid returns true if the status is a recognized pass status
func (s PassStatus) IsValid() bool {
	switch s {
	case PassStatusUnpaid, PassStatusPaid, PassStatusCancelled:
		return true
	}
	return false
}

// MonthlyPass is a user's order of a regional offer for one calendar month.
// Passes are settled by admins; there is no invoice flow.
type MonthlyPass struct {
	ID        int64           `json:"id" db:"id"`
	UserID    int64           `json:"user_id" db:"user_id"`
	OfferID   int64           `json:"offer_id" db:"offer_id"`
	Month     time.Time       `json:"month" db:"month"`
	FullName  string          `json:"full_name" db:"full_name"`
	Age       int             `json:"age" db:"age"`
	PostCode  string          `json:"post_code" db:"post_code"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Status    PassStatus      `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// MonthLabel formats the pass month as "October 2026"
func (p *MonthlyPass) MonthLabel() string {
	return p.Month.Format("January 2006")
}

// PassDraft accumulates the user's answers while a pass is being ordered
type PassDraft struct {
	OfferID  int64  `json:"offer_id"`
	FullName string `json:"full_name"`
	Age      int    `json:"age"`
	PostCode string `json:"post_code"`
	Month    string `json:"month"`
}
