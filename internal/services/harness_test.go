package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smarttransit/ticket-bot/internal/messaging"
	"github.com/smarttransit/ticket-bot/internal/models"
)

const (
	testUserID  int64 = 1001
	testAdminID int64 = 9
)

var testTimings = ReconciliationConfig{
	PollInterval:   30 * time.Second,
	InvoiceTimeout: 30 * time.Minute,
	UnpaidExpiry:   60 * time.Minute,
}

// testEnv wires the services over in-memory fakes
type testEnv struct {
	clock     *fakeClock
	bookings  *fakeBookings
	routes    *fakeRoutes
	users     *fakeUsers
	offers    *fakeOffers
	passes    *fakePasses
	messenger *fakeMessenger
	publisher *fakePublisher
	scheduler *fakeScheduler
	invoices  *fakeInvoices
	audits    *fakeAudit
	sessions  *MemorySessionStore

	notifier       *NotificationService
	offerService   *OfferService
	followUps      *FollowUpService
	conversation   *ConversationService
	payments       *PaymentService
	reconciliation *ReconciliationService
	admin          *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()

	env := &testEnv{
		clock:     newFakeClock(),
		routes:    &fakeRoutes{},
		users:     &fakeUsers{},
		offers:    &fakeOffers{},
		passes:    &fakePasses{},
		messenger: &fakeMessenger{fail: map[int64]bool{}},
		publisher: &fakePublisher{},
		scheduler: newFakeScheduler(),
		invoices:  newFakeInvoices(),
		audits:    &fakeAudit{},
	}
	env.bookings = newFakeBookings(env.clock.Now)
	env.sessions = NewMemorySessionStore(time.Hour, env.clock.Now)

	audit := NewAuditService(env.audits, logger)
	env.notifier = NewNotificationService(env.messenger, env.publisher, env.users, []int64{testAdminID}, logger)
	env.offerService = NewOfferService(env.offers, env.passes, env.notifier, env.clock.Now, logger)
	env.followUps = NewFollowUpService(env.notifier, env.scheduler, DefaultFollowUps, logger)
	env.conversation = NewConversationService(env.sessions, NewFareService(env.routes), env.bookings, env.users,
		env.offerService, env.notifier, env.publisher, logger)
	env.payments = NewPaymentService(env.bookings, env.invoices, env.notifier, env.publisher, audit, "USDT", logger)
	env.reconciliation = NewReconciliationService(env.bookings, env.invoices, env.notifier, env.scheduler, audit, testTimings, env.clock.Now, logger)
	env.admin = NewAdminService(env.bookings, env.routes, fakePayments{env.bookings}, env.invoices, env.notifier,
		env.reconciliation, audit, func(id int64) bool { return id == testAdminID }, logger)
	return env
}

func (e *testEnv) addRoute(dep, dest, cost string) {
	e.routes.routes = append(e.routes.routes, models.Route{
		ID:          int64(len(e.routes.routes) + 1),
		Departure:   dep,
		Destination: dest,
		Cost:        decimal.RequireFromString(cost),
	})
}

func (e *testEnv) addOffer(name, price string) *models.RegionalOffer {
	offer := &models.RegionalOffer{
		Name:        name,
		Description: name + " regional trains",
		Advantages:  "Unlimited rides",
		URL:         "https://example.com/" + name,
		Price:       decimal.RequireFromString(price),
	}
	_ = e.offers.Upsert(context.Background(), offer)
	return offer
}

// followUpRequests are the user ids queued on the follow-up topic
func (e *testEnv) followUpRequests() []int64 {
	var out []int64
	for _, p := range e.publisher.onTopic(messaging.TopicUserFollowUp) {
		out = append(out, p.(messaging.UserFollowUp).UserID)
	}
	return out
}

// seedBooking stores a priced booking in status at the current fake time
func (e *testEnv) seedBooking(status models.BookingStatus, quantity int, unit string) *models.Booking {
	draft := models.BookingDraft{
		Departure:   "Berlin",
		Destination: "Munich",
		TravelDate:  "2026-03-10",
		SeatClass:   models.SeatClassStandard,
		Quantity:    quantity,
	}
	b := models.NewPricedBooking(testUserID, 1, draft, decimal.RequireFromString(unit))
	b.Status = status
	return e.bookings.put(*b)
}

// adminMessages are the texts queued for the admin broadcast
func (e *testEnv) adminMessages() []string {
	var out []string
	for _, p := range e.publisher.onTopic(messaging.TopicAdminMessage) {
		out = append(out, p.(messaging.AdminMessage).Text)
	}
	return out
}
