package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/models"
	"github.com/smarttransit/ticket-bot/pkg/validator"
)

const passPromptMonth = "For which month do you need the pass?"

// StartAddOffer opens the admin dialog that publishes a regional offer:
// name → description → advantages → link → price.
func (s *ConversationService) StartAddOffer(ctx context.Context, adminID int64) error {
	unlock := s.locks.Lock(adminID)
	defer unlock()

	session := &models.Session{UserID: adminID, State: models.StateOfferName, Offer: &models.OfferDraft{}}
	return s.advance(ctx, session, "Name of the offer?")
}

// StartPassOrder lists the offers and opens the monthly pass dialog:
// offer → full name → age → post code → month → confirmation.
func (s *ConversationService) StartPassOrder(ctx context.Context, userID int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	offers, err := s.offers.ListOffers(ctx)
	if err != nil {
		return s.abort(ctx, userID, err)
	}
	if len(offers) == 0 {
		if err := s.sessions.Delete(ctx, userID); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to clear session")
		}
		return s.notifier.NotifyUser(ctx, userID, "No monthly passes are offered right now.")
	}

	session := &models.Session{UserID: userID, State: models.StatePassOffer, Pass: &models.PassDraft{}}
	return s.advance(ctx, session, "Choose a monthly pass:", offerChoices(offers)...)
}

func (s *ConversationService) handleOfferText(ctx context.Context, session *models.Session, text string) error {
	if session.Offer == nil {
		session.Offer = &models.OfferDraft{}
	}
	if session.Pass == nil {
		session.Pass = &models.PassDraft{}
	}
	userID := session.UserID

	switch session.State {
	case models.StateOfferName:
		name, err := validator.NormalizeName(text)
		if err != nil {
			return s.reprompt(ctx, userID, "offer_name", err, "Name of the offer?")
		}
		session.Offer.Name = name
		session.State = models.StateOfferDescription
		return s.advance(ctx, session, "Describe the offer:")

	case models.StateOfferDescription:
		description, err := validator.NormalizeText(text)
		if err != nil {
			return s.reprompt(ctx, userID, "offer_description", err, "Describe the offer:")
		}
		session.Offer.Description = description
		session.State = models.StateOfferAdvantages
		return s.advance(ctx, session, "What are its advantages?")

	case models.StateOfferAdvantages:
		advantages, err := validator.NormalizeText(text)
		if err != nil {
			return s.reprompt(ctx, userID, "offer_advantages", err, "What are its advantages?")
		}
		session.Offer.Advantages = advantages
		session.State = models.StateOfferURL
		return s.advance(ctx, session, "Link to the offer page?")

	case models.StateOfferURL:
		link, err := validator.ParseOfferURL(text)
		if err != nil {
			return s.reprompt(ctx, userID, "offer_url", err, "Link to the offer page?")
		}
		session.Offer.URL = link
		session.State = models.StateOfferPrice
		return s.advance(ctx, session, "Monthly price?")

	case models.StateOfferPrice:
		price, err := validator.ParseCost(text)
		if err != nil {
			return s.reprompt(ctx, userID, "offer_price", err, "Monthly price?")
		}
		return s.saveOffer(ctx, session, price)

	case models.StatePassOffer:
		return s.notifier.NotifyUser(ctx, userID, "Please choose a pass with the buttons above, or send /cancel.")

	case models.StatePassFullName:
		name, err := validator.NormalizeName(text)
		if err != nil {
			return s.reprompt(ctx, userID, "full_name", err, "Please send your full name.")
		}
		session.Pass.FullName = name
		session.State = models.StatePassAge
		return s.advance(ctx, session, "How old are you?")

	case models.StatePassAge:
		age, err := validator.ParseAge(text)
		if err != nil {
			return s.reprompt(ctx, userID, "age", err, "How old are you?")
		}
		session.Pass.Age = age
		session.State = models.StatePassPostCode
		return s.advance(ctx, session, "Your post code?")

	case models.StatePassPostCode:
		code, err := validator.NormalizePostCode(text)
		if err != nil {
			return s.reprompt(ctx, userID, "post_code", err, "Your post code?")
		}
		session.Pass.PostCode = code
		session.State = models.StatePassMonth
		return s.advance(ctx, session, passPromptMonth, monthChoices(s.offers.PassMonths())...)

	case models.StatePassMonth:
		return s.acceptPassMonth(ctx, session, text)

	case models.StatePassConfirmation:
		return s.notifier.NotifyUser(ctx, userID, "Please confirm or cancel the pass order.", passConfirmationChoices()...)
	}

	return s.abort(ctx, userID, fmt.Errorf("unknown conversation state %q", session.State))
}

func (s *ConversationService) saveOffer(ctx context.Context, session *models.Session, price decimal.Decimal) error {
	offer, err := s.offers.SaveOffer(ctx, *session.Offer, price)
	if err != nil {
		return s.abort(ctx, session.UserID, err)
	}
	if err := s.sessions.Delete(ctx, session.UserID); err != nil {
		s.logger.WithError(err).WithField("user_id", session.UserID).Warn("Failed to clear session")
	}
	return s.notifier.NotifyUser(ctx, session.UserID,
		fmt.Sprintf("Offer #%d %s saved at %s per month.", offer.ID, offer.Name, offer.Price.StringFixed(2)))
}

// passSession loads the session if it is in state, else tells the user the button expired
func (s *ConversationService) passSession(ctx context.Context, userID int64, state models.ConversationState) (*models.Session, error) {
	session, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, s.abort(ctx, userID, storageErr("load session", err))
	}
	if session == nil || session.State != state {
		return nil, s.notifier.NotifyUser(ctx, userID, "This choice has expired. Start again with /order_offers.")
	}
	if session.Pass == nil {
		session.Pass = &models.PassDraft{}
	}
	return session, nil
}

func (s *ConversationService) chooseOffer(ctx context.Context, userID int64, rawID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.passSession(ctx, userID, models.StatePassOffer)
	if session == nil {
		return err
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return &ValidationError{Field: "offer", Message: fmt.Sprintf("invalid offer id %q", rawID)}
	}
	offer, err := s.offers.GetOffer(ctx, id)
	if IsNotFound(err) {
		return s.notifier.NotifyUser(ctx, userID, "This pass is no longer offered. Choose another one or send /cancel.")
	}
	if err != nil {
		return s.abort(ctx, userID, err)
	}

	session.Pass.OfferID = offer.ID
	session.State = models.StatePassFullName
	return s.advance(ctx, session, offerDetails(offer)+"\n\nPlease send your full name.")
}

func (s *ConversationService) chooseMonth(ctx context.Context, userID int64, key string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.passSession(ctx, userID, models.StatePassMonth)
	if session == nil {
		return err
	}
	return s.acceptPassMonth(ctx, session, key)
}

// acceptPassMonth takes the month from a button or from a typed "2026-11"
func (s *ConversationService) acceptPassMonth(ctx context.Context, session *models.Session, key string) error {
	month, err := s.offers.ParsePassMonth(key)
	if err != nil {
		return s.reprompt(ctx, session.UserID, "month", err, passPromptMonth, monthChoices(s.offers.PassMonths())...)
	}
	offer, err := s.offers.GetOffer(ctx, session.Pass.OfferID)
	if err != nil {
		return s.abort(ctx, session.UserID, err)
	}

	session.Pass.Month = month.Format(passMonthLayout)
	session.State = models.StatePassConfirmation
	summary := fmt.Sprintf("Offer: %s\nMonth: %s\nName: %s\nAge: %d\nPost code: %s\nPrice: %s\n\nConfirm this order?",
		offer.Name, month.Format("January 2006"), session.Pass.FullName, session.Pass.Age, session.Pass.PostCode,
		offer.Price.StringFixed(2))
	return s.advance(ctx, session, summary, passConfirmationChoices()...)
}

func (s *ConversationService) confirmPass(ctx context.Context, userID int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.passSession(ctx, userID, models.StatePassConfirmation)
	if session == nil {
		return err
	}
	if err := s.sessions.Delete(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to clear session")
	}

	pass, err := s.offers.PlacePass(ctx, userID, *session.Pass)
	if IsNotFound(err) || IsValidationError(err) {
		s.logger.WithError(err).WithField("user_id", userID).Info("Pass order no longer valid")
		return s.notifier.NotifyUser(ctx, userID, "This pass can no longer be ordered. Start again with /order_offers.")
	}
	if err != nil {
		return s.abort(ctx, userID, err)
	}

	s.logger.WithFields(logrus.Fields{"user_id": userID, "pass_id": pass.ID}).Info("Pass order confirmed")
	return s.notifier.NotifyUser(ctx, userID,
		fmt.Sprintf("Pass order #%d received. Our staff will contact you about the payment.", pass.ID))
}

func (s *ConversationService) cancelPass(ctx context.Context, userID int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return s.abort(ctx, userID, storageErr("load session", err))
	}
	if session != nil && session.State.IsOfferDialog() {
		if err := s.sessions.Delete(ctx, userID); err != nil {
			return storageErr("clear session", err)
		}
	}
	return s.notifier.NotifyUser(ctx, userID, "Pass order cancelled.")
}
