package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smarttransit/ticket-bot/internal/models"
	"github.com/smarttransit/ticket-bot/internal/services"
	"github.com/smarttransit/ticket-bot/pkg/telegram"
)

type call struct {
	name   string
	userID int64
	arg    string
}

type fakeConversation struct {
	mu         sync.Mutex
	calls      []call
	users      []*models.User
	inDialog   bool
	ownsData   bool
	turnErr    error
	sessionErr error
}

func (f *fakeConversation) record(name string, userID int64, arg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name: name, userID: userID, arg: arg})
}

func (f *fakeConversation) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.name)
	}
	return out
}

func (f *fakeConversation) RegisterUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, user)
	return nil
}

func (f *fakeConversation) StartBooking(ctx context.Context, userID int64) error {
	f.record("start_booking", userID, "")
	return nil
}

func (f *fakeConversation) ClearSession(ctx context.Context, userID int64) error {
	f.record("clear", userID, "")
	return f.sessionErr
}

func (f *fakeConversation) Abandon(ctx context.Context, userID int64) error {
	f.record("abandon", userID, "")
	return nil
}

func (f *fakeConversation) HandleText(ctx context.Context, userID int64, text string) (bool, error) {
	f.record("text", userID, text)
	return f.inDialog, f.turnErr
}

func (f *fakeConversation) HandleCallback(ctx context.Context, userID int64, data string) (bool, error) {
	f.record("callback", userID, data)
	return f.ownsData, f.turnErr
}

func (f *fakeConversation) MyBookings(ctx context.Context, userID int64) error {
	f.record("my_bookings", userID, "")
	return nil
}

func (f *fakeConversation) StartAddOffer(ctx context.Context, adminID int64) error {
	f.record("start_add_offer", adminID, "")
	return nil
}

func (f *fakeConversation) StartPassOrder(ctx context.Context, userID int64) error {
	f.record("start_pass_order", userID, "")
	return nil
}

// fakePasses is an in-memory PassAdmin
type fakePasses struct {
	mu     sync.Mutex
	passes map[int64]*models.MonthlyPass
}

func newFakePasses() *fakePasses {
	return &fakePasses{passes: make(map[int64]*models.MonthlyPass)}
}

func (f *fakePasses) add(id int64, status models.PassStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passes[id] = &models.MonthlyPass{
		ID:       id,
		UserID:   testUser,
		Month:    time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC),
		FullName: "Alice Smith",
		Age:      30,
		PostCode: "80331",
		Price:    decimal.RequireFromString("49"),
		Status:   status,
	}
}

func (f *fakePasses) ListUnpaidPasses(ctx context.Context) ([]models.MonthlyPass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.passes))
	for id, p := range f.passes {
		if p.Status == models.PassStatusUnpaid {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]models.MonthlyPass, 0, len(ids))
	for _, id := range ids {
		out = append(out, *f.passes[id])
	}
	return out, nil
}

func (f *fakePasses) MarkPassPaid(ctx context.Context, passID int64) (*models.MonthlyPass, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.passes[passID]
	if !ok {
		return nil, false, &services.NotFoundError{Resource: "pass", ID: passID}
	}
	if p.Status != models.PassStatusUnpaid {
		cp := *p
		return &cp, false, nil
	}
	p.Status = models.PassStatusPaid
	cp := *p
	return &cp, true, nil
}

type fakePaymentSelector struct {
	methods []models.PaymentMethod
	err     error
}

func (f *fakePaymentSelector) SelectPayment(ctx context.Context, userID int64, method models.PaymentMethod) (*models.Payment, error) {
	f.methods = append(f.methods, method)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Payment{ID: 1, PaymentMethod: method}, nil
}

type fakeAdmin struct {
	admins   map[int64]bool
	bookings map[int64]*models.Booking
	routes   []models.Route
	uploads  map[int64]int64
	attached []string
	err      error
	csv      string
}

func newFakeAdmin(adminIDs ...int64) *fakeAdmin {
	f := &fakeAdmin{
		admins:   make(map[int64]bool),
		bookings: make(map[int64]*models.Booking),
		uploads:  make(map[int64]int64),
		csv:      "id,user_id\n1,1001\n",
	}
	for _, id := range adminIDs {
		f.admins[id] = true
	}
	return f
}

func (f *fakeAdmin) addBooking(id int64, status models.BookingStatus) *models.Booking {
	b := &models.Booking{
		ID:          id,
		UserID:      1001,
		Departure:   "Berlin",
		Destination: "Munich",
		TravelDate:  "2026-03-10",
		SeatClass:   models.SeatClassStandard,
		Quantity:    2,
		TotalPrice:  decimal.NullDecimal{Decimal: decimal.NewFromInt(40), Valid: true},
		Status:      status,
	}
	f.bookings[id] = b
	return b
}

func (f *fakeAdmin) Authorize(userID int64) error {
	if !f.admins[userID] {
		return &services.AuthorizationError{UserID: userID}
	}
	return nil
}

func (f *fakeAdmin) find(id int64) (*models.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.bookings[id]
	if !ok {
		return nil, &services.NotFoundError{Resource: "booking", ID: id}
	}
	return b, nil
}

func (f *fakeAdmin) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return f.find(id)
}

func (f *fakeAdmin) MarkPaid(ctx context.Context, id int64) (*models.Booking, bool, error) {
	b, err := f.find(id)
	if err != nil {
		return nil, false, err
	}
	switch b.Status {
	case models.BookingStatusPaid, models.BookingStatusProcessed:
		return b, false, nil
	case models.BookingStatusCancelled:
		return nil, false, &services.ValidationError{Field: "status", Message: "booking is cancelled"}
	}
	b.Status = models.BookingStatusPaid
	return b, true, nil
}

func (f *fakeAdmin) Cancel(ctx context.Context, id int64) (*models.Booking, bool, error) {
	b, err := f.find(id)
	if err != nil {
		return nil, false, err
	}
	if b.Status == models.BookingStatusCancelled {
		return b, false, nil
	}
	b.Status = models.BookingStatusCancelled
	return b, true, nil
}

func (f *fakeAdmin) SetStatus(ctx context.Context, id int64, status models.BookingStatus) (*models.Booking, error) {
	if !status.IsValid() {
		return nil, &services.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	b, err := f.find(id)
	if err != nil {
		return nil, err
	}
	b.Status = status
	return b, nil
}

func (f *fakeAdmin) DeleteBooking(ctx context.Context, id int64) error {
	if _, err := f.find(id); err != nil {
		return err
	}
	delete(f.bookings, id)
	return nil
}

func (f *fakeAdmin) ListBookings(ctx context.Context, status *models.BookingStatus) ([]models.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Booking
	for _, b := range f.bookings {
		if status != nil && b.Status != *status {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAdmin) ExportCSV(ctx context.Context, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, f.csv)
	return err
}

func (f *fakeAdmin) AddRoute(ctx context.Context, departure, destination, cost string) (*models.Route, error) {
	price, err := decimal.NewFromString(cost)
	if err != nil {
		return nil, &services.ValidationError{Field: "cost", Message: "not a number"}
	}
	route := models.Route{ID: int64(len(f.routes) + 1), Departure: departure, Destination: destination, Cost: price}
	f.routes = append(f.routes, route)
	return &route, nil
}

func (f *fakeAdmin) ListRoutes(ctx context.Context) ([]models.Route, error) {
	return f.routes, f.err
}

func (f *fakeAdmin) DeleteRoute(ctx context.Context, routeID int64) error {
	for i := range f.routes {
		if f.routes[i].ID == routeID {
			f.routes = append(f.routes[:i], f.routes[i+1:]...)
			return nil
		}
	}
	return &services.NotFoundError{Resource: "route", ID: routeID}
}

func (f *fakeAdmin) BeginTicketUpload(ctx context.Context, adminID, bookingID int64) (*models.Booking, error) {
	b, err := f.find(bookingID)
	if err != nil {
		return nil, err
	}
	f.uploads[adminID] = bookingID
	return b, nil
}

func (f *fakeAdmin) AttachTicket(ctx context.Context, adminID int64, fileID string) (*models.Booking, error) {
	bookingID, ok := f.uploads[adminID]
	if !ok {
		return nil, &services.NotFoundError{Resource: "pending ticket upload"}
	}
	delete(f.uploads, adminID)
	f.attached = append(f.attached, fileID)
	b := f.bookings[bookingID]
	b.Status = models.BookingStatusProcessed
	return b, nil
}

type sentMessage struct {
	chatID  int64
	text    string
	choices []models.Choice
}

type fakeReplier struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (f *fakeReplier) SendMessage(ctx context.Context, chatID int64, text string, choices ...models.Choice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{chatID: chatID, text: text, choices: choices})
	return nil
}

func (f *fakeReplier) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1].text
}

type fakeAnswerer struct {
	answered []string
}

func (f *fakeAnswerer) AnswerCallbackQuery(ctx context.Context, req telegram.AnswerCallbackQueryRequest) error {
	f.answered = append(f.answered, req.CallbackQueryID)
	return nil
}

type fakeJobs struct{}

func (fakeJobs) GetJobStatus() map[string]interface{} {
	return map[string]interface{}{"running": true, "pending_count": 2}
}

var errBroken = &services.StorageError{Op: "list bookings", Err: errors.New("connection refused")}
