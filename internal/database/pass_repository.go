package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/ticket-bot/internal/models"
)

// PassRepository handles monthly pass database operations
type PassRepository struct {
	db *sqlx.DB
}

// NewPassRepository creates a new pass repository
func NewPassRepository(db *sqlx.DB) *PassRepository {
	return &PassRepository{db: db}
}

const passColumns = `id, user_id, offer_id, month, full_name, age, post_code, price, status, created_at, updated_at`

// Create inserts an unpaid pass and fills in its id and timestamps
func (r *PassRepository) Create(ctx context.Context, pass *models.MonthlyPass) error {
	query := `
		INSERT INTO monthly_passes (user_id, offer_id, month, full_name, age, post_code, price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	pass.Status = models.PassStatusUnpaid
	err := r.db.QueryRowxContext(ctx, query,
		pass.UserID, pass.OfferID, pass.Month, pass.FullName, pass.Age, pass.PostCode, pass.Price, pass.Status,
	).Scan(&pass.ID, &pass.CreatedAt, &pass.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pass: %w", err)
	}
	return nil
}

// GetByID retrieves a pass by id. Returns nil, nil when not found.
func (r *PassRepository) GetByID(ctx context.Context, id int64) (*models.MonthlyPass, error) {
	var pass models.MonthlyPass
	query := `SELECT ` + passColumns + ` FROM monthly_passes WHERE id = $1`

	err := r.db.GetContext(ctx, &pass, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pass: %w", err)
	}
	return &pass, nil
}

// ListByStatus returns passes in the given status, oldest first
func (r *PassRepository) ListByStatus(ctx context.Context, status models.PassStatus) ([]models.MonthlyPass, error) {
	passes := []models.MonthlyPass{}
	query := `SELECT ` + passColumns + ` FROM monthly_passes WHERE status = $1 ORDER BY id`

	if err := r.db.SelectContext(ctx, &passes, query, status); err != nil {
		return nil, fmt.Errorf("failed to list passes: %w", err)
	}
	return passes, nil
}

// MarkPaid settles an unpaid pass. Reports false when the pass was not unpaid.
func (r *PassRepository) MarkPaid(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE monthly_passes SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, id, models.PassStatusPaid, models.PassStatusUnpaid)
	if err != nil {
		return false, fmt.Errorf("failed to mark pass paid: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark pass paid: %w", err)
	}
	return affected == 1, nil
}
