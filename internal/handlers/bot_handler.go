package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/models"
	"github.com/smarttransit/ticket-bot/internal/services"
	"github.com/smarttransit/ticket-bot/pkg/telegram"
	"github.com/smarttransit/ticket-bot/pkg/validator"
)

const (
	maxListedBookings = 40
	maxChatExport     = 3500
)

// Conversation is the booking dialog driven by user messages
type Conversation interface {
	RegisterUser(ctx context.Context, user *models.User) error
	StartBooking(ctx context.Context, userID int64) error
	ClearSession(ctx context.Context, userID int64) error
	Abandon(ctx context.Context, userID int64) error
	HandleText(ctx context.Context, userID int64, text string) (bool, error)
	HandleCallback(ctx context.Context, userID int64, data string) (bool, error)
	MyBookings(ctx context.Context, userID int64) error
	StartAddOffer(ctx context.Context, adminID int64) error
	StartPassOrder(ctx context.Context, userID int64) error
}

// PaymentSelector applies a payment choice to the user's booking
type PaymentSelector interface {
	SelectPayment(ctx context.Context, userID int64, method models.PaymentMethod) (*models.Payment, error)
}

// BookingAdmin is the admin surface shared by chat commands and the REST API
type BookingAdmin interface {
	Authorize(userID int64) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	MarkPaid(ctx context.Context, bookingID int64) (*models.Booking, bool, error)
	Cancel(ctx context.Context, bookingID int64) (*models.Booking, bool, error)
	SetStatus(ctx context.Context, bookingID int64, status models.BookingStatus) (*models.Booking, error)
	DeleteBooking(ctx context.Context, bookingID int64) error
	ListBookings(ctx context.Context, status *models.BookingStatus) ([]models.Booking, error)
	ExportCSV(ctx context.Context, w io.Writer) error
	AddRoute(ctx context.Context, departure, destination, cost string) (*models.Route, error)
	ListRoutes(ctx context.Context) ([]models.Route, error)
	DeleteRoute(ctx context.Context, routeID int64) error
	BeginTicketUpload(ctx context.Context, adminID, bookingID int64) (*models.Booking, error)
	AttachTicket(ctx context.Context, adminID int64, fileID string) (*models.Booking, error)
}

// PassAdmin settles monthly pass orders
type PassAdmin interface {
	ListUnpaidPasses(ctx context.Context) ([]models.MonthlyPass, error)
	MarkPassPaid(ctx context.Context, passID int64) (*models.MonthlyPass, bool, error)
}

// Replier sends chat messages
type Replier interface {
	SendMessage(ctx context.Context, chatID int64, text string, choices ...models.Choice) error
}

// CallbackAnswerer acknowledges button presses so the client stops its spinner
type CallbackAnswerer interface {
	AnswerCallbackQuery(ctx context.Context, req telegram.AnswerCallbackQueryRequest) error
}

// BotHandler receives Telegram updates and routes them to the services
type BotHandler struct {
	conversation Conversation
	payments     PaymentSelector
	admin        BookingAdmin
	passes       PassAdmin
	replier      Replier
	callbacks    CallbackAnswerer
	secret       string
	supports     []string
	logger       *logrus.Logger
}

// NewBotHandler creates a new bot handler. An empty secret disables the webhook token check.
func NewBotHandler(
	conversation Conversation,
	payments PaymentSelector,
	admin BookingAdmin,
	passes PassAdmin,
	replier Replier,
	callbacks CallbackAnswerer,
	secret string,
	supports []string,
	logger *logrus.Logger,
) *BotHandler {
	return &BotHandler{
		conversation: conversation,
		payments:     payments,
		admin:        admin,
		passes:       passes,
		replier:      replier,
		callbacks:    callbacks,
		secret:       secret,
		supports:     supports,
		logger:       logger,
	}
}

// Webhook handles POST /webhook
// Processing errors are logged and still answered with 200 so Telegram does not redeliver.
func (h *BotHandler) Webhook(c *gin.Context) {
	if h.secret != "" && c.GetHeader(telegram.SecretTokenHeader) != h.secret {
		h.logger.WithField("ip", c.ClientIP()).Warn("Webhook call with a bad secret token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_update", "message": err.Error()})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *BotHandler) handleMessage(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	userID := msg.From.ID
	log := h.logger.WithFields(logrus.Fields{"user_id": userID, "update": "message"})

	if err := h.conversation.RegisterUser(ctx, toUser(msg.From)); err != nil {
		log.WithError(err).Warn("Failed to register user")
	}

	if msg.Document != nil {
		h.handleDocument(ctx, userID, msg.Document)
		return
	}

	if command, args, ok := msg.Command(); ok {
		h.handleCommand(ctx, userID, command, args)
		return
	}

	handled, err := h.conversation.HandleText(ctx, userID, msg.Text)
	if err != nil {
		log.WithError(err).Warn("Conversation turn failed")
		return
	}
	if !handled {
		h.reply(ctx, userID, "Send /booking to start a new booking or /help for the list of commands.")
	}
}

func (h *BotHandler) handleCallback(ctx context.Context, query *telegram.CallbackQuery) {
	userID := query.From.ID
	log := h.logger.WithFields(logrus.Fields{"user_id": userID, "update": "callback", "data": query.Data})

	defer func() {
		if err := h.callbacks.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryRequest{CallbackQueryID: query.ID}); err != nil {
			log.WithError(err).Debug("Failed to answer callback query")
		}
	}()

	if strings.HasPrefix(query.Data, models.CallbackPayPrefix) {
		method := models.PaymentMethod(strings.TrimPrefix(query.Data, models.CallbackPayPrefix))
		if _, err := h.payments.SelectPayment(ctx, userID, method); err != nil {
			log.WithError(err).Info("Payment selection rejected")
		}
		return
	}

	handled, err := h.conversation.HandleCallback(ctx, userID, query.Data)
	if err != nil {
		log.WithError(err).Warn("Callback failed")
		return
	}
	if !handled {
		log.Debug("Ignoring unknown callback")
	}
}

func (h *BotHandler) handleCommand(ctx context.Context, userID int64, command, args string) {
	log := h.logger.WithFields(logrus.Fields{"user_id": userID, "command": command})

	var err error
	switch command {
	case "start":
		if err = h.conversation.ClearSession(ctx, userID); err == nil {
			h.reply(ctx, userID, "Welcome! I can book bus tickets for you.\n\n"+userHelp)
		}
	case "booking":
		err = h.conversation.StartBooking(ctx, userID)
	case "order_offers":
		err = h.conversation.StartPassOrder(ctx, userID)
	case "mybookings":
		if err = h.conversation.ClearSession(ctx, userID); err == nil {
			err = h.conversation.MyBookings(ctx, userID)
		}
	case "cancel":
		err = h.conversation.Abandon(ctx, userID)
	case "help":
		if err = h.conversation.ClearSession(ctx, userID); err == nil {
			h.reply(ctx, userID, h.helpText())
		}
	default:
		h.handleAdminCommand(ctx, userID, command, args)
		return
	}

	if err != nil {
		log.WithError(err).Warn("Command failed")
	}
}

// handleAdminCommand ends any dialog first: a command always pre-empts it,
// even one the sender may not use.
func (h *BotHandler) handleAdminCommand(ctx context.Context, adminID int64, command, args string) {
	if err := h.conversation.ClearSession(ctx, adminID); err != nil {
		h.logger.WithError(err).WithField("user_id", adminID).Warn("Failed to clear session")
	}
	if _, known := adminCommands[command]; !known {
		h.reply(ctx, adminID, "Unknown command. Send /help for the list of commands.")
		return
	}
	if err := h.admin.Authorize(adminID); err != nil {
		h.reply(ctx, adminID, chatErrorText(err))
		return
	}

	text, err := adminCommands[command](h, ctx, adminID, args)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{"admin_id": adminID, "command": command}).Warn("Admin command failed")
		text = chatErrorText(err)
	}
	if text != "" {
		h.reply(ctx, adminID, text)
	}
}

func (h *BotHandler) handleDocument(ctx context.Context, userID int64, doc *telegram.Document) {
	if err := h.admin.Authorize(userID); err != nil {
		h.reply(ctx, userID, "I can only read text messages. Send /help for the list of commands.")
		return
	}

	booking, err := h.admin.AttachTicket(ctx, userID, doc.FileID)
	if err != nil {
		h.logger.WithError(err).WithField("admin_id", userID).Warn("Ticket delivery failed")
		if services.IsNotFound(err) {
			h.reply(ctx, userID, "Use /ticket <booking id> before sending a ticket file.")
			return
		}
		h.reply(ctx, userID, chatErrorText(err))
		return
	}
	h.reply(ctx, userID, fmt.Sprintf("Ticket sent for booking #%d.", booking.ID))
}

func (h *BotHandler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.replier.SendMessage(ctx, chatID, text); err != nil {
		h.logger.WithError(err).WithField("user_id", chatID).Warn("Failed to send reply")
	}
}

func (h *BotHandler) helpText() string {
	if len(h.supports) == 0 {
		return userHelp
	}
	return userHelp + "\n\nSupport: " + strings.Join(h.supports, ", ")
}

const userHelp = `/booking - book a ticket
/order_offers - order a monthly pass
/mybookings - your recent bookings
/cancel - abandon the booking in progress
/help - this message`

const adminHelp = `/paid <id> - mark a booking paid
/cancelbooking <id> - cancel a booking
/addroute <departure>;<destination>;<cost> - add or reprice a route
/routes - list routes
/delroute <id> - delete a route
/bookings [status] - list bookings
/export - bookings as CSV
/ticket <id> - send a ticket file for a paid booking
/add_offer - publish or update a monthly pass offer
/passes - unpaid monthly pass orders
/passpaid <id> - mark a monthly pass paid`

type adminCommand func(h *BotHandler, ctx context.Context, adminID int64, args string) (string, error)

var adminCommands = map[string]adminCommand{
	"admin":         (*BotHandler).cmdAdmin,
	"paid":          (*BotHandler).cmdPaid,
	"cancelbooking": (*BotHandler).cmdCancelBooking,
	"addroute":      (*BotHandler).cmdAddRoute,
	"routes":        (*BotHandler).cmdRoutes,
	"delroute":      (*BotHandler).cmdDeleteRoute,
	"bookings":      (*BotHandler).cmdBookings,
	"export":        (*BotHandler).cmdExport,
	"ticket":        (*BotHandler).cmdTicket,
	"add_offer":     (*BotHandler).cmdAddOffer,
	"passes":        (*BotHandler).cmdPasses,
	"passpaid":      (*BotHandler).cmdPassPaid,
}

func (h *BotHandler) cmdAdmin(ctx context.Context, adminID int64, args string) (string, error) {
	return adminHelp, nil
}

func (h *BotHandler) cmdPaid(ctx context.Context, adminID int64, args string) (string, error) {
	id, err := parseID(args)
	if err != nil {
		return "Usage: /paid <booking id>", nil
	}
	booking, changed, err := h.admin.MarkPaid(ctx, id)
	if err != nil {
		return "", err
	}
	if !changed {
		return fmt.Sprintf("Booking #%d is already %s.", booking.ID, booking.Status), nil
	}
	return fmt.Sprintf("Booking #%d marked as paid.", booking.ID), nil
}

func (h *BotHandler) cmdCancelBooking(ctx context.Context, adminID int64, args string) (string, error) {
	id, err := parseID(args)
	if err != nil {
		return "Usage: /cancelbooking <booking id>", nil
	}
	booking, changed, err := h.admin.Cancel(ctx, id)
	if err != nil {
		return "", err
	}
	if !changed {
		return fmt.Sprintf("Booking #%d is already cancelled.", booking.ID), nil
	}
	return fmt.Sprintf("Booking #%d cancelled.", booking.ID), nil
}

func (h *BotHandler) cmdAddRoute(ctx context.Context, adminID int64, args string) (string, error) {
	departure, destination, cost, err := validator.ParseRouteArgs(args)
	if errors.Is(err, validator.ErrRouteArgs) {
		return "Usage: /addroute <departure>;<destination>;<cost>", nil
	}
	if err != nil {
		return "", &services.ValidationError{Field: "route", Message: err.Error()}
	}
	route, err := h.admin.AddRoute(ctx, departure, destination, cost.String())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Route #%d %s saved at %s.", route.ID, route.RouteDisplayName(), route.Cost.StringFixed(2)), nil
}

func (h *BotHandler) cmdRoutes(ctx context.Context, adminID int64, args string) (string, error) {
	routes, err := h.admin.ListRoutes(ctx)
	if err != nil {
		return "", err
	}
	if len(routes) == 0 {
		return "No routes yet. Add one with /addroute.", nil
	}
	lines := make([]string, 0, len(routes))
	for i := range routes {
		lines = append(lines, fmt.Sprintf("#%d %s: %s", routes[i].ID, routes[i].RouteDisplayName(), routes[i].Cost.StringFixed(2)))
	}
	return strings.Join(lines, "\n"), nil
}

func (h *BotHandler) cmdDeleteRoute(ctx context.Context, adminID int64, args string) (string, error) {
	id, err := parseID(args)
	if err != nil {
		return "Usage: /delroute <route id>", nil
	}
	if err := h.admin.DeleteRoute(ctx, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("Route #%d deleted.", id), nil
}

func (h *BotHandler) cmdBookings(ctx context.Context, adminID int64, args string) (string, error) {
	var filter *models.BookingStatus
	if args != "" {
		status, err := models.ParseBookingStatus(strings.ToLower(args))
		if err != nil {
			return "Unknown status. Use one of: unpaid, confirming, pending, manual, paid, cancelled, processed.", nil
		}
		filter = &status
	}

	bookings, err := h.admin.ListBookings(ctx, filter)
	if err != nil {
		return "", err
	}
	if len(bookings) == 0 {
		return "No bookings found.", nil
	}

	shown := bookings
	if len(shown) > maxListedBookings {
		shown = shown[:maxListedBookings]
	}
	lines := make([]string, 0, len(shown)+1)
	for i := range shown {
		b := &shown[i]
		lines = append(lines, fmt.Sprintf("#%d user %d %s %s x%d %s [%s]",
			b.ID, b.UserID, b.RouteLabel(), b.TravelDate, b.Quantity, b.TotalLabel(), b.Status))
	}
	if rest := len(bookings) - len(shown); rest > 0 {
		lines = append(lines, fmt.Sprintf("...and %d more. Use /export for the full list.", rest))
	}
	return strings.Join(lines, "\n"), nil
}

func (h *BotHandler) cmdExport(ctx context.Context, adminID int64, args string) (string, error) {
	var buf bytes.Buffer
	if err := h.admin.ExportCSV(ctx, &buf); err != nil {
		return "", err
	}
	if buf.Len() > maxChatExport {
		return "The export is too large for a chat message. Download it from GET /api/v1/admin/bookings/export.", nil
	}
	return buf.String(), nil
}

func (h *BotHandler) cmdTicket(ctx context.Context, adminID int64, args string) (string, error) {
	id, err := parseID(args)
	if err != nil {
		return "Usage: /ticket <booking id>", nil
	}
	booking, err := h.admin.BeginTicketUpload(ctx, adminID, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Send the ticket file for booking #%d (%s) as a document.", booking.ID, booking.RouteLabel()), nil
}

// cmdAddOffer opens the offer dialog, which does its own prompting
func (h *BotHandler) cmdAddOffer(ctx context.Context, adminID int64, args string) (string, error) {
	return "", h.conversation.StartAddOffer(ctx, adminID)
}

func (h *BotHandler) cmdPasses(ctx context.Context, adminID int64, args string) (string, error) {
	passes, err := h.passes.ListUnpaidPasses(ctx)
	if err != nil {
		return "", err
	}
	if len(passes) == 0 {
		return "No unpaid monthly passes.", nil
	}
	lines := make([]string, 0, len(passes))
	for i := range passes {
		p := &passes[i]
		lines = append(lines, fmt.Sprintf("#%d user %d %s %s, %d, %s: %s",
			p.ID, p.UserID, p.MonthLabel(), p.FullName, p.Age, p.PostCode, p.Price.StringFixed(2)))
	}
	return strings.Join(lines, "\n"), nil
}

func (h *BotHandler) cmdPassPaid(ctx context.Context, adminID int64, args string) (string, error) {
	id, err := parseID(args)
	if err != nil {
		return "Usage: /passpaid <pass id>", nil
	}
	pass, changed, err := h.passes.MarkPassPaid(ctx, id)
	if err != nil {
		return "", err
	}
	if !changed {
		return fmt.Sprintf("Pass #%d is already %s.", pass.ID, pass.Status), nil
	}
	return fmt.Sprintf("Pass #%d marked as paid.", pass.ID), nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func toUser(from *telegram.User) *models.User {
	user := &models.User{ID: from.ID}
	if from.Username != "" {
		username := from.Username
		user.Username = &username
	}
	if name := from.FullName(); name != "" {
		user.FullName = &name
	}
	return user
}
