package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Route is a priced departure/destination pair managed by admins
type Route struct {
	ID          int64           `json:"id" db:"id"`
	Departure   string          `json:"departure" db:"departure"`
	Destination string          `json:"destination" db:"destination"`
	Cost        decimal.Decimal `json:"cost" db:"cost"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// RouteDisplayName returns a formatted route display name
func (r *Route) RouteDisplayName() string {
	return r.Departure + " → " + r.Destination
}

// FareQuote is the result of a fare lookup. Found is false when no route matches.
type FareQuote struct {
	Found     bool
	RouteID   int64
	UnitPrice decimal.Decimal
}

// UpsertRouteRequest represents the admin request to add or reprice a route
type UpsertRouteRequest struct {
	Departure   string `json:"departure" binding:"required"`
	Destination string `json:"destination" binding:"required"`
	Cost        string `json:"cost" binding:"required"`
}
