package services

import (
	"context"

	"github.com/smarttransit/ticket-bot/internal/models"
	"github.com/smarttransit/ticket-bot/pkg/validator"
)

// FareService resolves the unit price of a departure/destination pair
type FareService struct {
	routes RouteStore
}

// NewFareService creates a new FareService
func NewFareService(routes RouteStore) *FareService {
	return &FareService{routes: routes}
}

// Price looks up the fare. An unknown pair is a regular outcome (Found=false), not an error.
func (s *FareService) Price(ctx context.Context, departure, destination string) (models.FareQuote, error) {
	dep, err := validator.NormalizeCity(departure)
	if err != nil {
		return models.FareQuote{}, nil
	}
	dest, err := validator.NormalizeCity(destination)
	if err != nil {
		return models.FareQuote{}, nil
	}

	route, err := s.routes.FindByPair(ctx, dep, dest)
	if err != nil {
		return models.FareQuote{}, storageErr("fare lookup", err)
	}
	if route == nil {
		return models.FareQuote{}, nil
	}
	return models.FareQuote{Found: true, RouteID: route.ID, UnitPrice: route.Cost}, nil
}
