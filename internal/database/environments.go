package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/maverick-software/toolboxd/internal/logger"
	"github.com/maverick-software/toolboxd/internal/models"
)

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when a record already exists
	ErrAlreadyExists = errors.New("record already exists")
)

// EnvironmentOperations handles all DynamoDB operations for Toolbox environments
type EnvironmentOperations struct {
	client    *Client
	tableName string
}

// NewEnvironmentOperations creates a new EnvironmentOperations instance
func NewEnvironmentOperations(client *Client, tableName string) *EnvironmentOperations {
	return &EnvironmentOperations{
		client:    client,
		tableName: tableName,
	}
}

// CreateEnvironment creates a new environment record in DynamoDB
func (eo *EnvironmentOperations) CreateEnvironment(ctx context.Context, env *models.Environment) error {
	logger.WithFields(map[string]interface{}{
		"toolbox_id": env.Id,
		"user_id":    env.UserId,
	}).Debug("Creating environment in DynamoDB")

	av, err := attributevalue.MarshalMap(environmentItem(env))
	if err != nil {
		return fmt.Errorf("failed to marshal environment: %w", err)
	}

	_, err = eo.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(eo.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(Id)"),
	})

	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadyExists
		}
		logger.WithFields(map[string]interface{}{
			"toolbox_id": env.Id,
			"error":      err.Error(),
		}).Error("Failed to create environment in DynamoDB")
		return fmt.Errorf("failed to create environment: %w", err)
	}

	logger.WithField("toolbox_id", env.Id).Info("Environment created successfully in DynamoDB")
	return nil
}

// GetEnvironment retrieves an environment by ID from DynamoDB
func (eo *EnvironmentOperations) GetEnvironment(ctx context.Context, id string) (*models.Environment, error) {
	result, err := eo.client.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(eo.tableName),
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{Value: id},
		},
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"toolbox_id": id,
			"error":      err.Error(),
		}).Error("Failed to get environment from DynamoDB")
		return nil, fmt.Errorf("failed to get environment: %w", err)
	}

	if result.Item == nil {
		logger.WithField("toolbox_id", id).Warn("Environment not found in DynamoDB")
		return nil, ErrNotFound
	}

	env, err := unmarshalEnvironment(result.Item)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment: %w", err)
	}

	return env, nil
}

// GetEnvironmentsByUserId retrieves all environments owned by a user from DynamoDB
func (eo *EnvironmentOperations) GetEnvironmentsByUserId(ctx context.Context, userId string) ([]*models.Environment, error) {
	result, err := eo.client.DynamoDB.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(eo.tableName),
		FilterExpression: aws.String("UserId = :userId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userId": &types.AttributeValueMemberS{Value: userId},
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan environments by user_id: %w", err)
	}

	environments := make([]*models.Environment, 0, len(result.Items))
	for _, item := range result.Items {
		env, err := unmarshalEnvironment(item)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal environment: %w", err)
		}
		environments = append(environments, env)
	}

	return environments, nil
}

// GetAllEnvironments retrieves all environment records from DynamoDB
func (eo *EnvironmentOperations) GetAllEnvironments(ctx context.Context) ([]*models.Environment, error) {
	result, err := eo.client.DynamoDB.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(eo.tableName),
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan environments: %w", err)
	}

	environments := make([]*models.Environment, 0, len(result.Items))
	for _, item := range result.Items {
		env, err := unmarshalEnvironment(item)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal environment: %w", err)
		}
		environments = append(environments, env)
	}

	return environments, nil
}

// UpdateEnvironment overwrites an existing environment record with all fields
func (eo *EnvironmentOperations) UpdateEnvironment(ctx context.Context, env *models.Environment) error {
	logger.WithFields(map[string]interface{}{
		"toolbox_id": env.Id,
		"status":     env.Status,
	}).Debug("Updating environment in DynamoDB")

	env.UpdatedAt = time.Now()

	av, err := attributevalue.MarshalMap(environmentItem(env))
	if err != nil {
		return fmt.Errorf("failed to marshal environment: %w", err)
	}

	_, err = eo.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(eo.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(Id)"),
	})

	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			logger.WithField("toolbox_id", env.Id).Warn("Environment not found during update")
			return ErrNotFound
		}
		logger.WithFields(map[string]interface{}{
			"toolbox_id": env.Id,
			"error":      err.Error(),
		}).Error("Failed to update environment in DynamoDB")
		return fmt.Errorf("failed to update environment: %w", err)
	}

	return nil
}

// DeleteEnvironment removes an environment record entirely from DynamoDB
func (eo *EnvironmentOperations) DeleteEnvironment(ctx context.Context, id string) error {
	_, err := eo.client.DynamoDB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(eo.tableName),
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{Value: id},
		},
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"toolbox_id": id,
			"error":      err.Error(),
		}).Error("Failed to delete environment from DynamoDB")
		return fmt.Errorf("failed to delete environment: %w", err)
	}

	logger.WithField("toolbox_id", id).Info("Environment deleted from DynamoDB")
	return nil
}

// environmentItem builds the attribute map persisted for an environment.
// Timestamps are stored as Unix seconds; the health blob as a native map.
func environmentItem(env *models.Environment) map[string]interface{} {
	item := map[string]interface{}{
		"Id":                 env.Id,
		"UserId":             env.UserId,
		"Name":               env.Name,
		"Description":        env.Description,
		"ProviderInstanceId": env.ProviderInstanceId,
		"Region":             env.Region,
		"Size":               env.Size,
		"Image":              env.Image,
		"PublicIPAddress":    env.PublicIPAddress,
		"AgentTokenRef":      env.AgentTokenRef,
		"Status":             string(env.Status),
		"AgentVersion":       env.AgentVersion,
		"LastHealth":         env.LastHealth,
		"LastError":          env.LastError,
		"CreatedAt":          env.CreatedAt.Unix(),
		"UpdatedAt":          env.UpdatedAt.Unix(),
	}
	if env.LastHeartbeatAt != nil {
		item["LastHeartbeatAt"] = env.LastHeartbeatAt.Unix()
	}
	return item
}

// unmarshalEnvironment is a helper function to unmarshal a DynamoDB item into
// the Environment domain model
func unmarshalEnvironment(item map[string]types.AttributeValue) (*models.Environment, error) {
	var temp struct {
		Id                 string                 `dynamodbav:"Id"`
		UserId             string                 `dynamodbav:"UserId"`
		Name               string                 `dynamodbav:"Name"`
		Description        string                 `dynamodbav:"Description"`
		ProviderInstanceId string                 `dynamodbav:"ProviderInstanceId"`
		Region             string                 `dynamodbav:"Region"`
		Size               string                 `dynamodbav:"Size"`
		Image              string                 `dynamodbav:"Image"`
		PublicIPAddress    string                 `dynamodbav:"PublicIPAddress"`
		AgentTokenRef      string                 `dynamodbav:"AgentTokenRef"`
		Status             string                 `dynamodbav:"Status"`
		AgentVersion       string                 `dynamodbav:"AgentVersion"`
		LastHeartbeatAt    *int64                 `dynamodbav:"LastHeartbeatAt"`
		LastHealth         map[string]interface{} `dynamodbav:"LastHealth"`
		LastError          string                 `dynamodbav:"LastError"`
		CreatedAt          int64                  `dynamodbav:"CreatedAt"`
		UpdatedAt          int64                  `dynamodbav:"UpdatedAt"`
	}

	err := attributevalue.UnmarshalMap(item, &temp)
	if err != nil {
		return nil, err
	}

	env := &models.Environment{
		Id:                 temp.Id,
		UserId:             temp.UserId,
		Name:               temp.Name,
		Description:        temp.Description,
		ProviderInstanceId: temp.ProviderInstanceId,
		Region:             temp.Region,
		Size:               temp.Size,
		Image:              temp.Image,
		PublicIPAddress:    temp.PublicIPAddress,
		AgentTokenRef:      temp.AgentTokenRef,
		Status:             models.EnvironmentStatus(temp.Status),
		AgentVersion:       temp.AgentVersion,
		LastHealth:         temp.LastHealth,
		LastError:          temp.LastError,
		CreatedAt:          time.Unix(temp.CreatedAt, 0),
		UpdatedAt:          time.Unix(temp.UpdatedAt, 0),
	}
	if temp.LastHeartbeatAt != nil {
		hb := time.Unix(*temp.LastHeartbeatAt, 0)
		env.LastHeartbeatAt = &hb
	}

	return env, nil
}
