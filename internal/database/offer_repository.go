package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/ticket-bot/internal/models"
)

// OfferRepository handles regional offer database operations
type OfferRepository struct {
	db *sqlx.DB
}

// NewOfferRepository creates a new offer repository
func NewOfferRepository(db *sqlx.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

const offerColumns = `id, name, description, advantages, url, price, created_at, updated_at`

// Upsert creates the offer or replaces the details of the offer with the same name
func (r *OfferRepository) Upsert(ctx context.Context, offer *models.RegionalOffer) error {
	query := `
		INSERT INTO regional_offers (name, description, advantages, url, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description,
			advantages = EXCLUDED.advantages,
			url = EXCLUDED.url,
			price = EXCLUDED.price,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		offer.Name, offer.Description, offer.Advantages, offer.URL, offer.Price,
	).Scan(&offer.ID, &offer.CreatedAt, &offer.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert offer: %w", err)
	}
	return nil
}

// GetByID retrieves an offer by id. Returns nil, nil when not found.
func (r *OfferRepository) GetByID(ctx context.Context, id int64) (*models.RegionalOffer, error) {
	var offer models.RegionalOffer
	query := `SELECT ` + offerColumns + ` FROM regional_offers WHERE id = $1`

	err := r.db.GetContext(ctx, &offer, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}
	return &offer, nil
}

// List returns all offers ordered by name
func (r *OfferRepository) List(ctx context.Context) ([]models.RegionalOffer, error) {
	offers := []models.RegionalOffer{}
	query := `SELECT ` + offerColumns + ` FROM regional_offers ORDER BY name`

	if err := r.db.SelectContext(ctx, &offers, query); err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	return offers, nil
}
