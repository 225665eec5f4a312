package models

import (
	"strconv"
	"time"
)

// ConversationState is the step of the booking dialog a user is in
type ConversationState string

const (
	StateAwaitingDeparture    ConversationState = "awaiting_departure"
	StateAwaitingDestination  ConversationState = "awaiting_destination"
	StateAwaitingTravelDate   ConversationState = "awaiting_travel_date"
	StateAwaitingSeatClass    ConversationState = "awaiting_seat_class"
	StateAwaitingQuantity     ConversationState = "awaiting_quantity"
	StateAwaitingConfirmation ConversationState = "awaiting_confirmation"

	// admin /add_offer dialog
	StateOfferName        ConversationState = "offer_name"
	StateOfferDescription ConversationState = "offer_description"
	StateOfferAdvantages  ConversationState = "offer_advantages"
	StateOfferURL         ConversationState = "offer_url"
	StateOfferPrice       ConversationState = "offer_price"

	// user /order_offers dialog
	StatePassOffer        ConversationState = "pass_offer"
	StatePassFullName     ConversationState = "pass_full_name"
	StatePassAge          ConversationState = "pass_age"
	StatePassPostCode     ConversationState = "pass_post_code"
	StatePassMonth        ConversationState = "pass_month"
	StatePassConfirmation ConversationState = "pass_confirmation"
)

// IsOfferDialog reports whether the state belongs to the offer or pass dialogs
func (s ConversationState) IsOfferDialog() bool {
	switch s {
	case StateOfferName, StateOfferDescription, StateOfferAdvantages, StateOfferURL, StateOfferPrice,
		StatePassOffer, StatePassFullName, StatePassAge, StatePassPostCode, StatePassMonth, StatePassConfirmation:
		return true
	}
	return false
}

// Session is the ephemeral per-user dialog state
type Session struct {
	UserID    int64             `json:"user_id"`
	State     ConversationState `json:"state"`
	Draft     BookingDraft      `json:"draft"`
	BookingID *int64            `json:"booking_id,omitempty"`
	Offer     *OfferDraft       `json:"offer,omitempty"`
	Pass      *PassDraft        `json:"pass,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Choice is a button offered alongside a chat message.
// A Choice with a URL opens a link instead of sending Data back.
type Choice struct {
	Label string
	Data  string
	URL   string
}

// Callback payloads sent back by the buttons
const (
	CallbackSeatPrefix     = "seat_"
	CallbackQuantityPrefix = "qty_"
	CallbackConfirm        = "confirm_booking"
	CallbackCancel         = "cancel_booking"
	CallbackPayPrefix      = "pay_"
	CallbackOfferPrefix    = "offer_"
	CallbackMonthPrefix    = "month_"
	CallbackPassConfirm    = "confirm_pass"
	CallbackPassCancel     = "cancel_pass"
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
