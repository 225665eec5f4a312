package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/messaging"
	"github.com/smarttransit/ticket-bot/internal/models"
	"github.com/smarttransit/ticket-bot/pkg/validator"
)

const (
	genericFailureText = "Something went wrong. Please start again with /booking."
	myBookingsLimit    = 10
)

// ConversationService drives the booking dialog:
// departure → destination → date → seat class → quantity → confirmation.
// It also drives the offer and monthly pass dialogs.
// Turns of one user are serialized; no lock is held between turns.
type ConversationService struct {
	sessions  SessionStore
	fares     *FareService
	bookings  BookingStore
	users     UserStore
	offers    *OfferService
	notifier  *NotificationService
	publisher Publisher
	locks     *userLocks
	logger    *logrus.Logger
}

// NewConversationService creates a new ConversationService
func NewConversationService(
	sessions SessionStore,
	fares *FareService,
	bookings BookingStore,
	users UserStore,
	offers *OfferService,
	notifier *NotificationService,
	publisher Publisher,
	logger *logrus.Logger,
) *ConversationService {
	return &ConversationService{
		sessions:  sessions,
		fares:     fares,
		bookings:  bookings,
		users:     users,
		offers:    offers,
		notifier:  notifier,
		publisher: publisher,
		locks:     newUserLocks(),
		logger:    logger,
	}
}

// RegisterUser records the user on first contact and refreshes the profile afterwards
func (s *ConversationService) RegisterUser(ctx context.Context, user *models.User) error {
	if err := s.users.Upsert(ctx, user); err != nil {
		return storageErr("register user", err)
	}
	return nil
}

// StartBooking opens a fresh dialog, discarding any previous one
func (s *ConversationService) StartBooking(ctx context.Context, userID int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session := &models.Session{UserID: userID, State: models.StateAwaitingDeparture}
	if err := s.sessions.Save(ctx, session); err != nil {
		return s.abort(ctx, userID, storageErr("save session", err))
	}
	return s.notifier.NotifyUser(ctx, userID, "Where are you departing from?")
}

// ClearSession drops the dialog in flight. Commands call this before running.
func (s *ConversationService) ClearSession(ctx context.Context, userID int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := s.sessions.Delete(ctx, userID); err != nil {
		return storageErr("clear session", err)
	}
	return nil
}

// Abandon ends the dialog on /cancel. A booking still awaiting confirmation is cancelled.
func (s *ConversationService) Abandon(ctx context.Context, userID int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return storageErr("load session", err)
	}
	if session == nil {
		return s.notifier.NotifyUser(ctx, userID, "Nothing to cancel.")
	}
	if err := s.sessions.Delete(ctx, userID); err != nil {
		return storageErr("clear session", err)
	}
	if session.State.IsOfferDialog() {
		return s.notifier.NotifyUser(ctx, userID, "Cancelled.")
	}
	if session.BookingID != nil {
		if _, err := s.cancelUnconfirmed(ctx, *session.BookingID); err != nil {
			return err
		}
	}
	return s.notifier.NotifyUser(ctx, userID, "Booking cancelled.")
}

// HandleText feeds a free-text reply into the dialog. Returns false when the user has no dialog open.
func (s *ConversationService) HandleText(ctx context.Context, userID int64, text string) (bool, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return true, s.abort(ctx, userID, storageErr("load session", err))
	}
	if session == nil {
		return false, nil
	}
	if session.State.IsOfferDialog() {
		return true, s.handleOfferText(ctx, session, text)
	}

	switch session.State {
	case models.StateAwaitingDeparture:
		city, err := validator.NormalizeCity(text)
		if err != nil {
			return true, s.reprompt(ctx, userID, "departure", err, "Where are you departing from?")
		}
		session.Draft.Departure = city
		session.State = models.StateAwaitingDestination
		return true, s.advance(ctx, session, "Where are you travelling to?")

	case models.StateAwaitingDestination:
		city, err := validator.NormalizeCity(text)
		if err != nil {
			return true, s.reprompt(ctx, userID, "destination", err, "Where are you travelling to?")
		}
		session.Draft.Destination = city
		session.State = models.StateAwaitingTravelDate
		return true, s.advance(ctx, session, "On which date do you travel?")

	case models.StateAwaitingTravelDate:
		date, err := validator.NormalizeTravelDate(text)
		if err != nil {
			return true, s.reprompt(ctx, userID, "travel_date", err, "On which date do you travel?")
		}
		session.Draft.TravelDate = date
		session.State = models.StateAwaitingSeatClass
		return true, s.advance(ctx, session, "Choose a seat class:", seatClassChoices()...)

	case models.StateAwaitingSeatClass:
		return true, s.acceptSeatClass(ctx, session, text)

	case models.StateAwaitingQuantity:
		return true, s.acceptQuantity(ctx, session, text)

	case models.StateAwaitingConfirmation:
		return true, s.notifier.NotifyUser(ctx, userID, "Please confirm or cancel the booking.", confirmationChoices()...)
	}

	return true, s.abort(ctx, userID, fmt.Errorf("unknown conversation state %q", session.State))
}

// HandleCallback processes a dialog button press. Returns false for data the dialog does not own.
func (s *ConversationService) HandleCallback(ctx context.Context, userID int64, data string) (bool, error) {
	switch {
	case data == models.CallbackConfirm:
		return true, s.Confirm(ctx, userID)
	case data == models.CallbackCancel:
		return true, s.CancelPending(ctx, userID)
	case strings.HasPrefix(data, models.CallbackSeatPrefix):
		return true, s.chooseSeat(ctx, userID, strings.TrimPrefix(data, models.CallbackSeatPrefix))
	case strings.HasPrefix(data, models.CallbackQuantityPrefix):
		return s.HandleText(ctx, userID, strings.TrimPrefix(data, models.CallbackQuantityPrefix))
	case data == models.CallbackPassConfirm:
		return true, s.confirmPass(ctx, userID)
	case data == models.CallbackPassCancel:
		return true, s.cancelPass(ctx, userID)
	case strings.HasPrefix(data, models.CallbackOfferPrefix):
		return true, s.chooseOffer(ctx, userID, strings.TrimPrefix(data, models.CallbackOfferPrefix))
	case strings.HasPrefix(data, models.CallbackMonthPrefix):
		return true, s.chooseMonth(ctx, userID, strings.TrimPrefix(data, models.CallbackMonthPrefix))
	}
	return false, nil
}

func (s *ConversationService) chooseSeat(ctx context.Context, userID int64, class string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return s.abort(ctx, userID, storageErr("load session", err))
	}
	if session == nil || session.State != models.StateAwaitingSeatClass {
		return s.notifier.NotifyUser(ctx, userID, "This choice has expired. Start again with /booking.")
	}
	return s.acceptSeatClass(ctx, session, class)
}

// acceptSeatClass takes the class from a button or from typed text
func (s *ConversationService) acceptSeatClass(ctx context.Context, session *models.Session, input string) error {
	class, err := models.ParseSeatClass(input)
	if err != nil {
		return s.reprompt(ctx, session.UserID, "seat_class", err, "Choose a seat class:", seatClassChoices()...)
	}

	session.Draft.SeatClass = class
	session.State = models.StateAwaitingQuantity
	return s.advance(ctx, session, fmt.Sprintf("How many seats? (%d-%d)", validator.MinQuantity, validator.MaxQuantity), quantityChoices()...)
}

func (s *ConversationService) acceptQuantity(ctx context.Context, session *models.Session, text string) error {
	quantity, err := validator.ParseQuantity(text)
	if err != nil {
		return s.reprompt(ctx, session.UserID, "quantity", err,
			fmt.Sprintf("Please send a whole number from %d to %d.", validator.MinQuantity, validator.MaxQuantity))
	}
	session.Draft.Quantity = quantity
	return s.enterConfirmation(ctx, session)
}

// enterConfirmation prices the draft. A priced draft becomes an unpaid booking awaiting
// the user's confirmation; an unknown route is escalated to the admins and ends the dialog.
func (s *ConversationService) enterConfirmation(ctx context.Context, session *models.Session) error {
	log := s.logger.WithField("user_id", session.UserID)

	quote, err := s.fares.Price(ctx, session.Draft.Departure, session.Draft.Destination)
	if err != nil {
		return s.abort(ctx, session.UserID, err)
	}

	if !quote.Found {
		if err := s.sessions.Delete(ctx, session.UserID); err != nil {
			log.WithError(err).Warn("Failed to clear session")
		}
		log.WithFields(logrus.Fields{
			"departure":   session.Draft.Departure,
			"destination": session.Draft.Destination,
		}).Info("No fare for route, escalating to admins")

		s.notifier.NotifyAdmins(ctx, draftSummary(s.notifier.UserHandle(ctx, session.UserID), session.Draft))
		return s.notifier.NotifyUser(ctx, session.UserID,
			"We have no fixed fare for this route yet. Your request was passed to our staff, who will contact you shortly.")
	}

	booking := models.NewPricedBooking(session.UserID, quote.RouteID, session.Draft, quote.UnitPrice)
	if err := s.bookings.Create(ctx, booking); err != nil {
		return s.abort(ctx, session.UserID, storageErr("create booking", err))
	}
	log = log.WithField("booking_id", booking.ID)
	log.Info("Booking created")

	session.BookingID = &booking.ID
	session.State = models.StateAwaitingConfirmation
	if err := s.sessions.Save(ctx, session); err != nil {
		return s.abort(ctx, session.UserID, storageErr("save session", err))
	}

	expiry := messaging.ExpireCheck{BookingID: booking.ID, UserID: booking.UserID, CreatedAt: booking.CreatedAt}
	if err := s.publisher.Publish(ctx, messaging.TopicExpireCheck, expiry); err != nil {
		log.WithError(err).Warn("Failed to queue expiry check, relying on sweep")
	}

	return s.notifier.NotifyUser(ctx, session.UserID, bookingSummary(booking)+"\n\nConfirm this booking?", confirmationChoices()...)
}

// Confirm moves the booking awaiting confirmation to pending and offers the payment methods.
// Without a live dialog the user's most recent booking is used.
func (s *ConversationService) Confirm(ctx context.Context, userID int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	booking, err := s.targetBooking(ctx, userID)
	if err != nil {
		return s.abort(ctx, userID, err)
	}
	if booking == nil {
		return s.notifier.NotifyUser(ctx, userID, "You have no booking to confirm. Start one with /booking.")
	}
	if err := s.sessions.Delete(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to clear session")
	}

	won, err := s.bookings.Transition(ctx, booking.ID, models.BookingStatusPending,
		models.TransitionSources(models.BookingStatusPending)...)
	if err != nil {
		return s.abort(ctx, userID, storageErr("confirm booking", err))
	}
	if !won {
		current, err := s.bookings.GetByID(ctx, booking.ID)
		if err != nil {
			return s.abort(ctx, userID, storageErr("reload booking", err))
		}
		if current == nil || current.Status != models.BookingStatusPending || current.PaymentID != nil {
			return s.notifier.NotifyUser(ctx, userID, "This booking can no longer be confirmed.")
		}
	}

	s.logger.WithFields(logrus.Fields{"user_id": userID, "booking_id": booking.ID}).Info("Booking confirmed")
	return s.notifier.NotifyUser(ctx, userID, fmt.Sprintf("Booking #%d confirmed. How would you like to pay?", booking.ID), paymentChoices()...)
}

// CancelPending cancels the booking awaiting confirmation and ends the dialog
func (s *ConversationService) CancelPending(ctx context.Context, userID int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	booking, err := s.targetBooking(ctx, userID)
	if err != nil {
		return s.abort(ctx, userID, err)
	}
	if err := s.sessions.Delete(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to clear session")
	}
	if booking == nil {
		return s.notifier.NotifyUser(ctx, userID, "Booking cancelled.")
	}

	won, err := s.cancelUnconfirmed(ctx, booking.ID)
	if err != nil {
		return s.abort(ctx, userID, err)
	}
	if !won {
		return s.notifier.NotifyUser(ctx, userID, "This booking can no longer be cancelled here. Contact support via /help.")
	}
	return s.notifier.NotifyUser(ctx, userID, fmt.Sprintf("Booking #%d cancelled.", booking.ID))
}

// MyBookings lists the user's latest bookings
func (s *ConversationService) MyBookings(ctx context.Context, userID int64) error {
	bookings, err := s.bookings.ListByUser(ctx, userID, myBookingsLimit)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to list bookings")
		return s.notifier.NotifyUser(ctx, userID, genericFailureText)
	}
	if len(bookings) == 0 {
		return s.notifier.NotifyUser(ctx, userID, "You have no bookings yet. Start one with /booking.")
	}

	parts := make([]string, 0, len(bookings))
	for i := range bookings {
		parts = append(parts, bookingSummary(&bookings[i]))
	}
	return s.notifier.NotifyUser(ctx, userID, strings.Join(parts, "\n\n"))
}

func (s *ConversationService) cancelUnconfirmed(ctx context.Context, bookingID int64) (bool, error) {
	won, err := s.bookings.Transition(ctx, bookingID, models.BookingStatusCancelled,
		models.BookingStatusUnpaid, models.BookingStatusConfirming)
	if err != nil {
		return false, storageErr("cancel booking", err)
	}
	if won {
		s.logger.WithField("booking_id", bookingID).Info("Booking cancelled by user")
	}
	return won, nil
}

// targetBooking is the booking bound to the live dialog, else the user's most recent one
func (s *ConversationService) targetBooking(ctx context.Context, userID int64) (*models.Booking, error) {
	session, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, storageErr("load session", err)
	}
	if session != nil && session.BookingID != nil {
		booking, err := s.bookings.GetByID(ctx, *session.BookingID)
		if err != nil {
			return nil, storageErr("load booking", err)
		}
		return booking, nil
	}

	booking, err := s.bookings.GetLastByUser(ctx, userID)
	if err != nil {
		return nil, storageErr("load last booking", err)
	}
	return booking, nil
}

func (s *ConversationService) advance(ctx context.Context, session *models.Session, prompt string, choices ...models.Choice) error {
	if err := s.sessions.Save(ctx, session); err != nil {
		return s.abort(ctx, session.UserID, storageErr("save session", err))
	}
	return s.notifier.NotifyUser(ctx, session.UserID, prompt, choices...)
}

// reprompt keeps the state and asks again
func (s *ConversationService) reprompt(ctx context.Context, userID int64, field string, cause error, prompt string, choices ...models.Choice) error {
	s.logger.WithFields(logrus.Fields{"user_id": userID, "field": field}).Debug("Rejected input")
	if err := s.notifier.NotifyUser(ctx, userID, cause.Error()+". "+prompt, choices...); err != nil {
		return err
	}
	return &ValidationError{Field: field, Message: cause.Error()}
}

// abort clears the dialog and reports a generic failure. Bookings already written are left as they are.
func (s *ConversationService) abort(ctx context.Context, userID int64, cause error) error {
	s.logger.WithError(cause).WithField("user_id", userID).Error("Conversation step failed")
	if err := s.sessions.Delete(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to clear session")
	}
	_ = s.notifier.NotifyUser(ctx, userID, genericFailureText)
	return cause
}
