package repository

import (
	"context"

	"github.com/maverick-software/toolboxd/internal/database"
	"github.com/maverick-software/toolboxd/internal/models"
)

// Re-export errors from database package for callers that only see repositories
var (
	ErrNotFound      = database.ErrNotFound
	ErrAlreadyExists = database.ErrAlreadyExists
)

// EnvironmentRepository defines the interface for Toolbox environment records
type EnvironmentRepository interface {
	Create(ctx context.Context, env *models.Environment) error
	Get(ctx context.Context, id string) (*models.Environment, error)
	GetByUserId(ctx context.Context, userId string) ([]*models.Environment, error)
	GetAll(ctx context.Context) ([]*models.Environment, error)
	Update(ctx context.Context, env *models.Environment) error
	Delete(ctx context.Context, id string) error
}

// dynamoEnvironmentRepository implements EnvironmentRepository using DynamoDB
type dynamoEnvironmentRepository struct {
	db *database.EnvironmentOperations
}

// NewEnvironmentRepository creates a new DynamoDB-backed environment repository
func NewEnvironmentRepository(db *database.EnvironmentOperations) EnvironmentRepository {
	return &dynamoEnvironmentRepository{
		db: db,
	}
}

// Create inserts a new environment record
func (r *dynamoEnvironmentRepository) Create(ctx context.Context, env *models.Environment) error {
	return r.db.CreateEnvironment(ctx, env)
}

// Get retrieves an environment by ID
func (r *dynamoEnvironmentRepository) Get(ctx context.Context, id string) (*models.Environment, error) {
	return r.db.GetEnvironment(ctx, id)
}

// GetByUserId retrieves all environments owned by a user
func (r *dynamoEnvironmentRepository) GetByUserId(ctx context.Context, userId string) ([]*models.Environment, error) {
	return r.db.GetEnvironmentsByUserId(ctx, userId)
}

// GetAll retrieves all environment records
func (r *dynamoEnvironmentRepository) GetAll(ctx context.Context) ([]*models.Environment, error) {
	return r.db.GetAllEnvironments(ctx)
}

// Update overwrites an environment record with all fields
func (r *dynamoEnvironmentRepository) Update(ctx context.Context, env *models.Environment) error {
	return r.db.UpdateEnvironment(ctx, env)
}

// Delete removes an environment record entirely
func (r *dynamoEnvironmentRepository) Delete(ctx context.Context, id string) error {
	return r.db.DeleteEnvironment(ctx, id)
}
