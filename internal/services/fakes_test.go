package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smarttransit/ticket-bot/internal/models"
)

var errFake = errors.New("boom")

// fakeClock is a settable Clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeBookings mirrors the conditional-update semantics of BookingRepository
type fakeBookings struct {
	mu       sync.Mutex
	now      Clock
	bookings map[int64]*models.Booking
	payments map[int64]*models.Payment
	nextID   int64
	nextPay  int64
	err      error
}

func newFakeBookings(now Clock) *fakeBookings {
	return &fakeBookings{
		now:      now,
		bookings: make(map[int64]*models.Booking),
		payments: make(map[int64]*models.Payment),
	}
}

func (f *fakeBookings) get(id int64) *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil
	}
	cp := *b
	return &cp
}

func (f *fakeBookings) put(b models.Booking) *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == 0 {
		f.nextID++
		b.ID = f.nextID
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = f.now()
	}
	f.bookings[b.ID] = &b
	return &b
}

func (f *fakeBookings) Create(ctx context.Context, booking *models.Booking) error {
	if f.err != nil {
		return f.err
	}
	if err := booking.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	booking.ID = f.nextID
	booking.CreatedAt = f.now()
	booking.UpdatedAt = booking.CreatedAt
	cp := *booking
	f.bookings[cp.ID] = &cp
	return nil
}

func (f *fakeBookings) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.get(id), nil
}

func (f *fakeBookings) GetLastByUser(ctx context.Context, userID int64) (*models.Booking, error) {
	list, err := f.ListByUser(ctx, userID, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (f *fakeBookings) filter(keep func(*models.Booking) bool) []models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		if keep(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (f *fakeBookings) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.filter(func(b *models.Booking) bool { return b.UserID == userID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeBookings) ListByStatus(ctx context.Context, status models.BookingStatus) ([]models.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.filter(func(b *models.Booking) bool { return b.Status == status }), nil
}

func (f *fakeBookings) ListAll(ctx context.Context) ([]models.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.filter(func(*models.Booking) bool { return true })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBookings) ListUnpaidCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.filter(func(b *models.Booking) bool {
		return b.Status == models.BookingStatusUnpaid && !b.CreatedAt.After(cutoff)
	}), nil
}

func (f *fakeBookings) ListAwaitingInvoice(ctx context.Context) ([]models.CryptoCheck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CryptoCheck
	for _, b := range f.bookings {
		if b.Status != models.BookingStatusPending || b.PaymentID == nil {
			continue
		}
		p := f.payments[*b.PaymentID]
		if p != nil && p.PaymentMethod == models.PaymentMethodCrypto && p.InvoiceID != nil {
			out = append(out, models.CryptoCheck{BookingID: b.ID, InvoiceID: *p.InvoiceID, UserID: b.UserID})
		}
	}
	return out, nil
}

func statusIn(s models.BookingStatus, set []models.BookingStatus) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

// allowed mirrors the repository guard: every source must reach to in the status table
func allowed(to models.BookingStatus, from []models.BookingStatus) error {
	for _, s := range from {
		if s != to && !s.CanOverrideTo(to) {
			return fmt.Errorf("transition %s -> %s is not allowed", s, to)
		}
	}
	return nil
}

func (f *fakeBookings) update(id int64, cond func(*models.Booking) bool, apply func(*models.Booking)) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || !cond(b) {
		return false, nil
	}
	apply(b)
	b.UpdatedAt = f.now()
	return true, nil
}

func (f *fakeBookings) Transition(ctx context.Context, id int64, to models.BookingStatus, from ...models.BookingStatus) (bool, error) {
	if err := allowed(to, from); err != nil {
		return false, err
	}
	return f.update(id,
		func(b *models.Booking) bool { return statusIn(b.Status, from) },
		func(b *models.Booking) { b.Status = to })
}

func (f *fakeBookings) MarkPaid(ctx context.Context, id int64) (bool, error) {
	return f.update(id,
		func(b *models.Booking) bool { return b.PaymentID != nil && statusIn(b.Status, models.TransitionSources(models.BookingStatusPaid)) },
		func(b *models.Booking) { b.Status = models.BookingStatusPaid })
}

func (f *fakeBookings) CancelUnlessSettled(ctx context.Context, id int64) (bool, error) {
	return f.update(id,
		func(b *models.Booking) bool {
			return statusIn(b.Status, models.TransitionSources(models.BookingStatusCancelled))
		},
		func(b *models.Booking) { b.Status = models.BookingStatusCancelled })
}

func (f *fakeBookings) SetStatus(ctx context.Context, id int64, status models.BookingStatus) (bool, error) {
	return f.update(id,
		func(*models.Booking) bool { return true },
		func(b *models.Booking) { b.Status = status })
}

func (f *fakeBookings) AttachPayment(ctx context.Context, bookingID int64, payment *models.Payment, to models.BookingStatus, from ...models.BookingStatus) (bool, error) {
	if err := allowed(to, from); err != nil {
		return false, err
	}
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok || b.PaymentID != nil || !statusIn(b.Status, from) {
		return false, nil
	}
	f.nextPay++
	payment.ID = f.nextPay
	payment.CreatedAt = f.now()
	cp := *payment
	f.payments[cp.ID] = &cp
	b.PaymentID = &cp.ID
	b.Status = to
	return true, nil
}

func (f *fakeBookings) Delete(ctx context.Context, id int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bookings[id]; !ok {
		return false, nil
	}
	delete(f.bookings, id)
	return true, nil
}


// fakePayments reads the payments attached through fakeBookings
type fakePayments struct{ bookings *fakeBookings }

func (f fakePayments) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	f.bookings.mu.Lock()
	defer f.bookings.mu.Unlock()
	p, ok := f.bookings.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

type fakeRoutes struct {
	mu     sync.Mutex
	routes []models.Route
	err    error
}

func (f *fakeRoutes) FindByPair(ctx context.Context, departure, destination string) (*models.Route, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.routes {
		if f.routes[i].Departure == departure && f.routes[i].Destination == destination {
			r := f.routes[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRoutes) Upsert(ctx context.Context, departure, destination string, cost decimal.Decimal) (*models.Route, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.routes {
		if f.routes[i].Departure == departure && f.routes[i].Destination == destination {
			f.routes[i].Cost = cost
			r := f.routes[i]
			return &r, nil
		}
	}
	r := models.Route{ID: int64(len(f.routes) + 1), Departure: departure, Destination: destination, Cost: cost}
	f.routes = append(f.routes, r)
	return &r, nil
}

func (f *fakeRoutes) List(ctx context.Context) ([]models.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Route(nil), f.routes...), f.err
}

func (f *fakeRoutes) Delete(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.routes {
		if f.routes[i].ID == id {
			f.routes = append(f.routes[:i], f.routes[i+1:]...)
			return true, nil
		}
	}
	return false, f.err
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]models.User
}

func (f *fakeUsers) Upsert(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.users == nil {
		f.users = make(map[int64]models.User)
	}
	f.users[user.ID] = *user
	return nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

type sentMessage struct {
	ChatID  int64
	Text    string
	Choices []models.Choice
}

type sentDocument struct {
	ChatID  int64
	FileID  string
	Caption string
}

// fakeMessenger records outgoing chat traffic. Chats in fail reject every send.
type fakeMessenger struct {
	mu        sync.Mutex
	messages  []sentMessage
	documents []sentDocument
	fail      map[int64]bool
}

func (f *fakeMessenger) SendMessage(ctx context.Context, chatID int64, text string, choices ...models.Choice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[chatID] {
		return errFake
	}
	f.messages = append(f.messages, sentMessage{ChatID: chatID, Text: text, Choices: choices})
	return nil
}

func (f *fakeMessenger) SendDocument(ctx context.Context, chatID int64, fileID, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[chatID] {
		return errFake
	}
	f.documents = append(f.documents, sentDocument{ChatID: chatID, FileID: fileID, Caption: caption})
	return nil
}

func (f *fakeMessenger) to(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMessenger) last(chatID int64) sentMessage {
	msgs := f.to(chatID)
	if len(msgs) == 0 {
		return sentMessage{}
	}
	return msgs[len(msgs)-1]
}

func (f *fakeMessenger) count(chatID int64, substr string) int {
	n := 0
	for _, m := range f.to(chatID) {
		if strings.Contains(m.Text, substr) {
			n++
		}
	}
	return n
}

type publishedMessage struct {
	Topic   string
	Payload interface{}
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMessage{Topic: topic, Payload: payload})
	return nil
}

func (f *fakePublisher) onTopic(topic string) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interface{}
	for _, p := range f.published {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}

type scheduledJob struct {
	Delay  time.Duration
	Period time.Duration
	Job    Job
}

// fakeScheduler keeps jobs until a test runs them by id
type fakeScheduler struct {
	mu        sync.Mutex
	jobs      map[string]scheduledJob
	cancelled []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[string]scheduledJob)}
}

func (f *fakeScheduler) ScheduleOnce(jobID string, delay time.Duration, job Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[jobID]; !ok {
		f.jobs[jobID] = scheduledJob{Delay: delay, Job: job}
	}
	return nil
}

func (f *fakeScheduler) ScheduleInterval(jobID string, period time.Duration, job Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[jobID]; !ok {
		f.jobs[jobID] = scheduledJob{Period: period, Job: job}
	}
	return nil
}

func (f *fakeScheduler) Cancel(jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.jobs[jobID]
	delete(f.jobs, jobID)
	if ok {
		f.cancelled = append(f.cancelled, jobID)
	}
	return ok
}

func (f *fakeScheduler) has(jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.jobs[jobID]
	return ok
}

func (f *fakeScheduler) job(jobID string) (scheduledJob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	return j, ok
}

// run fires a job once, as the timer would
func (f *fakeScheduler) run(ctx context.Context, jobID string) bool {
	j, ok := f.job(jobID)
	if !ok {
		return false
	}
	j.Job(ctx)
	return true
}

// fakeInvoices is an in-memory InvoiceProvider
type fakeInvoices struct {
	mu        sync.Mutex
	nextID    int64
	created   []models.Invoice
	statuses  map[int64]models.InvoiceStatus
	deleted   []int64
	createErr error
	statusErr error
}

func newFakeInvoices() *fakeInvoices {
	return &fakeInvoices{nextID: 500, statuses: make(map[int64]models.InvoiceStatus)}
}

func (f *fakeInvoices) CreateInvoice(ctx context.Context, amount decimal.Decimal, description string) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	invoice := models.Invoice{ID: f.nextID, PayURL: "https://t.me/CryptoBot?start=IV" + strconv.FormatInt(f.nextID, 10), Amount: amount, Asset: "USDT"}
	f.created = append(f.created, invoice)
	f.statuses[invoice.ID] = models.InvoiceStatusUnpaid
	return &invoice, nil
}

func (f *fakeInvoices) GetInvoiceStatus(ctx context.Context, invoiceID int64) (models.InvoiceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return "", f.statusErr
	}
	return f.statuses[invoiceID], nil
}

func (f *fakeInvoices) DeleteInvoice(ctx context.Context, invoiceID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, invoiceID)
	return nil
}

func (f *fakeInvoices) setStatus(invoiceID int64, status models.InvoiceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[invoiceID] = status
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.PaymentAudit
}

func (f *fakeAudit) Log(ctx context.Context, audit *models.PaymentAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *audit)
	return nil
}

func (f *fakeAudit) events() []models.PaymentEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PaymentEventType, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.EventType)
	}
	return out
}

type fakeOffers struct {
	mu     sync.Mutex
	offers []models.RegionalOffer
	err    error
}

func (f *fakeOffers) Upsert(ctx context.Context, offer *models.RegionalOffer) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.offers {
		if f.offers[i].Name == offer.Name {
			offer.ID = f.offers[i].ID
			f.offers[i] = *offer
			return nil
		}
	}
	offer.ID = int64(len(f.offers) + 1)
	f.offers = append(f.offers, *offer)
	return nil
}

func (f *fakeOffers) GetByID(ctx context.Context, id int64) (*models.RegionalOffer, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.offers {
		if f.offers[i].ID == id {
			o := f.offers[i]
			return &o, nil
		}
	}
	return nil, nil
}

func (f *fakeOffers) List(ctx context.Context) ([]models.RegionalOffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RegionalOffer(nil), f.offers...), f.err
}

type fakePasses struct {
	mu     sync.Mutex
	passes []models.MonthlyPass
}

func (f *fakePasses) Create(ctx context.Context, pass *models.MonthlyPass) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pass.ID = int64(len(f.passes) + 1)
	pass.Status = models.PassStatusUnpaid
	f.passes = append(f.passes, *pass)
	return nil
}

func (f *fakePasses) GetByID(ctx context.Context, id int64) (*models.MonthlyPass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.passes {
		if f.passes[i].ID == id {
			p := f.passes[i]
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakePasses) ListByStatus(ctx context.Context, status models.PassStatus) ([]models.MonthlyPass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MonthlyPass
	for _, p := range f.passes {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePasses) MarkPaid(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.passes {
		if f.passes[i].ID == id && f.passes[i].Status == models.PassStatusUnpaid {
			f.passes[i].Status = models.PassStatusPaid
			return true, nil
		}
	}
	return false, nil
}
