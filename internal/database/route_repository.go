package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/smarttransit/ticket-bot/internal/models"
)

// RouteRepository handles route (fare) database operations
type RouteRepository struct {
	db *sqlx.DB
}

// NewRouteRepository creates a new route repository
func NewRouteRepository(db *sqlx.DB) *RouteRepository {
	return &RouteRepository{db: db}
}

const routeColumns = `id, departure, destination, cost, created_at, updated_at`

// FindByPair looks up the route for a normalized departure/destination pair.
// Returns nil, nil when no route exists.
func (r *RouteRepository) FindByPair(ctx context.Context, departure, destination string) (*models.Route, error) {
	var route models.Route
	query := `SELECT ` + routeColumns + ` FROM routes WHERE departure = $1 AND destination = $2`

	err := r.db.GetContext(ctx, &route, query, departure, destination)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find route: %w", err)
	}
	return &route, nil
}

// GetByID retrieves a route by id. Returns nil, nil when not found.
func (r *RouteRepository) GetByID(ctx context.Context, id int64) (*models.Route, error) {
	var route models.Route
	query := `SELECT ` + routeColumns + ` FROM routes WHERE id = $1`

	err := r.db.GetContext(ctx, &route, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route: %w", err)
	}
	return &route, nil
}

// Upsert creates the route or reprices the existing pair
func (r *RouteRepository) Upsert(ctx context.Context, departure, destination string, cost decimal.Decimal) (*models.Route, error) {
	var route models.Route
	query := `
		INSERT INTO routes (departure, destination, cost, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (departure, destination) DO UPDATE
		SET cost = EXCLUDED.cost, updated_at = NOW()
		RETURNING ` + routeColumns

	if err := r.db.GetContext(ctx, &route, query, departure, destination, cost); err != nil {
		return nil, fmt.Errorf("failed to upsert route: %w", err)
	}
	return &route, nil
}

// List returns all routes ordered by departure then destination
func (r *RouteRepository) List(ctx context.Context) ([]models.Route, error) {
	routes := []models.Route{}
	query := `SELECT ` + routeColumns + ` FROM routes ORDER BY departure, destination`

	if err := r.db.SelectContext(ctx, &routes, query); err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	return routes, nil
}

// Delete removes a route. Returns false when no route had that id.
func (r *RouteRepository) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM routes WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete route: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
