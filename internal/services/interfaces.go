package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smarttransit/ticket-bot/internal/models"
)

// BookingStore is the booking persistence used by the services.
// Implemented by database.BookingRepository.
type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	GetLastByUser(ctx context.Context, userID int64) (*models.Booking, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.Booking, error)
	ListByStatus(ctx context.Context, status models.BookingStatus) ([]models.Booking, error)
	ListAll(ctx context.Context) ([]models.Booking, error)
	ListUnpaidCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
	ListAwaitingInvoice(ctx context.Context) ([]models.CryptoCheck, error)
	Transition(ctx context.Context, id int64, to models.BookingStatus, from ...models.BookingStatus) (bool, error)
	MarkPaid(ctx context.Context, id int64) (bool, error)
	CancelUnlessSettled(ctx context.Context, id int64) (bool, error)
	SetStatus(ctx context.Context, id int64, status models.BookingStatus) (bool, error)
	AttachPayment(ctx context.Context, bookingID int64, payment *models.Payment, to models.BookingStatus, from ...models.BookingStatus) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// RouteStore is the route persistence. Implemented by database.RouteRepository.
type RouteStore interface {
	FindByPair(ctx context.Context, departure, destination string) (*models.Route, error)
	Upsert(ctx context.Context, departure, destination string, cost decimal.Decimal) (*models.Route, error)
	List(ctx context.Context) ([]models.Route, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// UserStore is the user persistence. Implemented by database.UserRepository.
type UserStore interface {
	Upsert(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// PaymentStore reads payments. Implemented by database.PaymentRepository.
type PaymentStore interface {
	GetByID(ctx context.Context, id int64) (*models.Payment, error)
}

// AuditLogger records payment events. Implemented by database.PaymentAuditRepository.
type AuditLogger interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// InvoiceProvider issues and inspects external payment invoices
type InvoiceProvider interface {
	CreateInvoice(ctx context.Context, amount decimal.Decimal, description string) (*models.Invoice, error)
	GetInvoiceStatus(ctx context.Context, invoiceID int64) (models.InvoiceStatus, error)
	DeleteInvoice(ctx context.Context, invoiceID int64) error
}

// Messenger delivers chat messages to a user
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, choices ...models.Choice) error
	SendDocument(ctx context.Context, chatID int64, fileID, caption string) error
}

// Publisher hands a payload to a background topic
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// Job is a unit of scheduled work
type Job func(ctx context.Context)

// Scheduler runs timers on behalf of the services
type Scheduler interface {
	ScheduleOnce(jobID string, delay time.Duration, job Job) error
	ScheduleInterval(jobID string, period time.Duration, job Job) error
	Cancel(jobID string) bool
}

// Clock returns the current time. Injected so time-based rules can be tested.
type Clock func() time.Time

// OfferStore is the regional offer persistence. Implemented by database.OfferRepository.
type OfferStore interface {
	Upsert(ctx context.Context, offer *models.RegionalOffer) error
	GetByID(ctx context.Context, id int64) (*models.RegionalOffer, error)
	List(ctx context.Context) ([]models.RegionalOffer, error)
}

// PassStore is the monthly pass persistence. Implemented by database.PassRepository.
type PassStore interface {
	Create(ctx context.Context, pass *models.MonthlyPass) error
	GetByID(ctx context.Context, id int64) (*models.MonthlyPass, error)
	ListByStatus(ctx context.Context, status models.PassStatus) ([]models.MonthlyPass, error)
	MarkPaid(ctx context.Context, id int64) (bool, error)
}
