package repository

import (
	"context"

	"github.com/maverick-software/toolboxd/internal/database"
	"github.com/maverick-software/toolboxd/internal/models"
)

// InstanceRepository defines the interface for tool instance records
type InstanceRepository interface {
	Create(ctx context.Context, instance *models.Instance) error
	Get(ctx context.Context, id string) (*models.Instance, error)
	GetByEnvironment(ctx context.Context, environmentId string) ([]*models.Instance, error)
	Update(ctx context.Context, instance *models.Instance) error
	Delete(ctx context.Context, id string) error
	DeleteByEnvironment(ctx context.Context, environmentId string) error
}

// dynamoInstanceRepository implements InstanceRepository using DynamoDB
type dynamoInstanceRepository struct {
	db *database.InstanceOperations
}

// NewInstanceRepository creates a new DynamoDB-backed instance repository
func NewInstanceRepository(db *database.InstanceOperations) InstanceRepository {
	return &dynamoInstanceRepository{
		db: db,
	}
}

// Create inserts a new tool instance record
func (r *dynamoInstanceRepository) Create(ctx context.Context, instance *models.Instance) error {
	return r.db.CreateInstance(ctx, instance)
}

// Get retrieves a tool instance by ID
func (r *dynamoInstanceRepository) Get(ctx context.Context, id string) (*models.Instance, error) {
	return r.db.GetInstance(ctx, id)
}

// GetByEnvironment retrieves all tool instances on a Toolbox
func (r *dynamoInstanceRepository) GetByEnvironment(ctx context.Context, environmentId string) ([]*models.Instance, error) {
	return r.db.GetInstancesByEnvironment(ctx, environmentId)
}

// Update overwrites a tool instance record with all fields
func (r *dynamoInstanceRepository) Update(ctx context.Context, instance *models.Instance) error {
	return r.db.UpdateInstance(ctx, instance)
}

// Delete removes a tool instance record
func (r *dynamoInstanceRepository) Delete(ctx context.Context, id string) error {
	return r.db.DeleteInstance(ctx, id)
}

// DeleteByEnvironment removes all tool instance records owned by a Toolbox
func (r *dynamoInstanceRepository) DeleteByEnvironment(ctx context.Context, environmentId string) error {
	return r.db.DeleteInstancesByEnvironment(ctx, environmentId)
}
