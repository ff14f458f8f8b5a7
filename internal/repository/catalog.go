package repository

import (
	"context"

	"github.com/maverick-software/toolboxd/internal/database"
	"github.com/maverick-software/toolboxd/internal/models"
)

// CatalogRepository defines the interface for tool catalog operations
type CatalogRepository interface {
	Create(ctx context.Context, entry *models.CatalogEntry) error
	Get(ctx context.Context, id string) (*models.CatalogEntry, error)
	GetAll(ctx context.Context) ([]*models.CatalogEntry, error)
	Delete(ctx context.Context, id string) error
}

// dynamoCatalogRepository implements CatalogRepository using DynamoDB
type dynamoCatalogRepository struct {
	db *database.CatalogOperations
}

// NewCatalogRepository creates a new DynamoDB-backed catalog repository
func NewCatalogRepository(db *database.CatalogOperations) CatalogRepository {
	return &dynamoCatalogRepository{
		db: db,
	}
}

// Create registers a new catalog entry
func (r *dynamoCatalogRepository) Create(ctx context.Context, entry *models.CatalogEntry) error {
	return r.db.CreateEntry(ctx, entry)
}

// Get retrieves a catalog entry by ID
func (r *dynamoCatalogRepository) Get(ctx context.Context, id string) (*models.CatalogEntry, error) {
	return r.db.GetEntry(ctx, id)
}

// GetAll retrieves all catalog entries
func (r *dynamoCatalogRepository) GetAll(ctx context.Context) ([]*models.CatalogEntry, error) {
	return r.db.GetAllEntries(ctx)
}

// Delete removes a catalog entry
func (r *dynamoCatalogRepository) Delete(ctx context.Context, id string) error {
	return r.db.DeleteEntry(ctx, id)
}
