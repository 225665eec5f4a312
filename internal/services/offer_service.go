package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/models"
)

// passMonthsAhead is how many calendar months, the current one included, a pass can be ordered for
const passMonthsAhead = 5

const passMonthLayout = "2006-01"

// OfferService manages regional offers and the monthly passes ordered from them.
// Passes carry no invoice: staff collect the payment and settle them with /passpaid.
type OfferService struct {
	offers   OfferStore
	passes   PassStore
	notifier *NotificationService
	now      Clock
	logger   *logrus.Logger
}

// NewOfferService creates a new OfferService
func NewOfferService(offers OfferStore, passes PassStore, notifier *NotificationService, now Clock, logger *logrus.Logger) *OfferService {
	return &OfferService{
		offers:   offers,
		passes:   passes,
		notifier: notifier,
		now:      now,
		logger:   logger,
	}
}

// SaveOffer creates the offer or replaces the one with the same name
func (s *OfferService) SaveOffer(ctx context.Context, draft models.OfferDraft, price decimal.Decimal) (*models.RegionalOffer, error) {
	offer := &models.RegionalOffer{
		Name:        draft.Name,
		Description: draft.Description,
		Advantages:  draft.Advantages,
		URL:         draft.URL,
		Price:       price,
	}
	if err := s.offers.Upsert(ctx, offer); err != nil {
		return nil, storageErr("save offer", err)
	}
	s.logger.WithFields(logrus.Fields{"offer_id": offer.ID, "name": offer.Name}).Info("Offer saved")
	return offer, nil
}

// ListOffers returns every published offer
func (s *OfferService) ListOffers(ctx context.Context) ([]models.RegionalOffer, error) {
	offers, err := s.offers.List(ctx)
	if err != nil {
		return nil, storageErr("list offers", err)
	}
	return offers, nil
}

// GetOffer returns one offer
func (s *OfferService) GetOffer(ctx context.Context, id int64) (*models.RegionalOffer, error) {
	offer, err := s.offers.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("load offer", err)
	}
	if offer == nil {
		return nil, &NotFoundError{Resource: "offer", ID: id}
	}
	return offer, nil
}

// PassMonths are the months a pass can be ordered for, starting with the current one
func (s *OfferService) PassMonths() []time.Time {
	now := s.now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := make([]time.Time, 0, passMonthsAhead)
	for i := 0; i < passMonthsAhead; i++ {
		months = append(months, first.AddDate(0, i, 0))
	}
	return months
}

// ParsePassMonth accepts a "2026-11" month key if it is one of PassMonths
func (s *OfferService) ParsePassMonth(key string) (time.Time, error) {
	month, err := time.Parse(passMonthLayout, strings.TrimSpace(key))
	if err == nil {
		for _, m := range s.PassMonths() {
			if m.Equal(month) {
				return month, nil
			}
		}
	}
	return time.Time{}, &ValidationError{Message: "please choose one of the offered months"}
}

// PlacePass records an unpaid pass for the drafted offer and month and tells the admins
func (s *OfferService) PlacePass(ctx context.Context, userID int64, draft models.PassDraft) (*models.MonthlyPass, error) {
	offer, err := s.GetOffer(ctx, draft.OfferID)
	if err != nil {
		return nil, err
	}
	month, err := s.ParsePassMonth(draft.Month)
	if err != nil {
		return nil, err
	}

	pass := &models.MonthlyPass{
		UserID:   userID,
		OfferID:  offer.ID,
		Month:    month,
		FullName: draft.FullName,
		Age:      draft.Age,
		PostCode: draft.PostCode,
		Price:    offer.Price,
	}
	if err := s.passes.Create(ctx, pass); err != nil {
		return nil, storageErr("create pass", err)
	}
	s.logger.WithFields(logrus.Fields{"pass_id": pass.ID, "user_id": userID, "offer_id": offer.ID}).Info("Monthly pass ordered")

	s.notifier.NotifyAdmins(ctx, "New monthly pass order\n"+passSummary(pass, offer)+"\nUser: "+s.notifier.UserHandle(ctx, userID))
	return pass, nil
}

// ListUnpaidPasses returns the orders staff still have to settle
func (s *OfferService) ListUnpaidPasses(ctx context.Context) ([]models.MonthlyPass, error) {
	passes, err := s.passes.ListByStatus(ctx, models.PassStatusUnpaid)
	if err != nil {
		return nil, storageErr("list passes", err)
	}
	return passes, nil
}

// MarkPassPaid settles an unpaid pass, tells the holder and queues the follow-ups.
// changed reports whether this call did the settling.
func (s *OfferService) MarkPassPaid(ctx context.Context, passID int64) (pass *models.MonthlyPass, changed bool, err error) {
	pass, err = s.passes.GetByID(ctx, passID)
	if err != nil {
		return nil, false, storageErr("load pass", err)
	}
	if pass == nil {
		return nil, false, &NotFoundError{Resource: "pass", ID: passID}
	}

	won, err := s.passes.MarkPaid(ctx, passID)
	if err != nil {
		return nil, false, storageErr("mark pass paid", err)
	}
	if !won {
		return pass, false, nil
	}

	pass.Status = models.PassStatusPaid
	s.logger.WithFields(logrus.Fields{"pass_id": passID, "user_id": pass.UserID}).Info("Monthly pass marked paid")
	_ = s.notifier.NotifyUser(ctx, pass.UserID,
		fmt.Sprintf("Your monthly pass #%d for %s is paid. Have a good trip!", pass.ID, pass.MonthLabel()))
	s.notifier.QueueFollowUps(ctx, pass.UserID)
	return pass, true, nil
}
