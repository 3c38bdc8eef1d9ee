package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// CatalogRepository reads companies and vehicles. Both tables are owned by the
// company management service; this service never writes them.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a new CatalogRepository
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetCompany returns nil, nil when the company does not exist
func (r *CatalogRepository) GetCompany(ctx context.Context, id int64) (*models.Company, error) {
	var company models.Company
	err := sqlx.GetContext(ctx, r.db, &company, `SELECT id, company_name FROM company_details WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &company, nil
}

// GetVehicle returns nil, nil when the vehicle does not exist
func (r *CatalogRepository) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := sqlx.GetContext(ctx, r.db, &vehicle, `
		SELECT id, company_id, vehicle_number, driver_name, driver_contact
		FROM vehicles WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return &vehicle, nil
}
