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

// InstanceOperations handles all DynamoDB operations for tool instances
type InstanceOperations struct {
	client    *Client
	tableName string
}

// NewInstanceOperations creates a new InstanceOperations instance
func NewInstanceOperations(client *Client, tableName string) *InstanceOperations {
	return &InstanceOperations{
		client:    client,
		tableName: tableName,
	}
}

// CreateInstance creates a new tool instance record in DynamoDB
func (io *InstanceOperations) CreateInstance(ctx context.Context, instance *models.Instance) error {
	logger.WithFields(map[string]interface{}{
		"instance_id": instance.Id,
		"toolbox_id":  instance.EnvironmentId,
	}).Debug("Creating tool instance in DynamoDB")

	av, err := attributevalue.MarshalMap(instanceItem(instance))
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	_, err = io.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(io.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(Id)"),
	})

	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadyExists
		}
		logger.WithFields(map[string]interface{}{
			"instance_id": instance.Id,
			"error":       err.Error(),
		}).Error("Failed to create tool instance in DynamoDB")
		return fmt.Errorf("failed to create instance: %w", err)
	}

	return nil
}

// GetInstance retrieves a tool instance by ID from DynamoDB
func (io *InstanceOperations) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	result, err := io.client.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(io.tableName),
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{Value: id},
		},
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"instance_id": id,
			"error":       err.Error(),
		}).Error("Failed to get tool instance from DynamoDB")
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if result.Item == nil {
		logger.WithField("instance_id", id).Warn("Tool instance not found in DynamoDB")
		return nil, ErrNotFound
	}

	instance, err := unmarshalInstance(result.Item)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}

	return instance, nil
}

// GetInstancesByEnvironment retrieves all tool instances on a Toolbox from DynamoDB
func (io *InstanceOperations) GetInstancesByEnvironment(ctx context.Context, environmentId string) ([]*models.Instance, error) {
	result, err := io.client.DynamoDB.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(io.tableName),
		FilterExpression: aws.String("EnvironmentId = :environmentId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":environmentId": &types.AttributeValueMemberS{Value: environmentId},
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan instances by toolbox: %w", err)
	}

	instances := make([]*models.Instance, 0, len(result.Items))
	for _, item := range result.Items {
		instance, err := unmarshalInstance(item)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
		}
		instances = append(instances, instance)
	}

	return instances, nil
}

// UpdateInstance overwrites an existing tool instance record with all fields
func (io *InstanceOperations) UpdateInstance(ctx context.Context, instance *models.Instance) error {
	logger.WithFields(map[string]interface{}{
		"instance_id": instance.Id,
		"status":      instance.Status,
	}).Debug("Updating tool instance in DynamoDB")

	instance.UpdatedAt = time.Now()

	av, err := attributevalue.MarshalMap(instanceItem(instance))
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	_, err = io.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(io.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(Id)"),
	})

	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			logger.WithField("instance_id", instance.Id).Warn("Tool instance not found during update")
			return ErrNotFound
		}
		return fmt.Errorf("failed to update instance: %w", err)
	}

	return nil
}

// DeleteInstance removes a tool instance record from DynamoDB
func (io *InstanceOperations) DeleteInstance(ctx context.Context, id string) error {
	_, err := io.client.DynamoDB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(io.tableName),
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{Value: id},
		},
	})

	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}

	return nil
}

// DeleteInstancesByEnvironment removes all tool instance records owned by a
// Toolbox. Used when the environment record is deleted (cascade).
func (io *InstanceOperations) DeleteInstancesByEnvironment(ctx context.Context, environmentId string) error {
	instances, err := io.GetInstancesByEnvironment(ctx, environmentId)
	if err != nil {
		return err
	}

	for _, instance := range instances {
		if err := io.DeleteInstance(ctx, instance.Id); err != nil {
			return fmt.Errorf("failed to cascade-delete instance %s: %w", instance.Id, err)
		}
	}

	if len(instances) > 0 {
		logger.WithFields(map[string]interface{}{
			"toolbox_id": environmentId,
			"count":      len(instances),
		}).Info("Cascade-deleted tool instances for environment")
	}
	return nil
}

// instanceItem builds the attribute map persisted for a tool instance
func instanceItem(instance *models.Instance) map[string]interface{} {
	item := map[string]interface{}{
		"Id":                     instance.Id,
		"EnvironmentId":          instance.EnvironmentId,
		"CatalogEntryId":         instance.CatalogEntryId,
		"NameOnToolbox":          instance.NameOnToolbox,
		"BaseConfigOverrideJson": instance.BaseConfigOverrideJson,
		"Status":                 string(instance.Status),
		"LastError":              instance.LastError,
		"CreatedAt":              instance.CreatedAt.Unix(),
		"UpdatedAt":              instance.UpdatedAt.Unix(),
	}
	if instance.LastAgentHeartbeatAt != nil {
		item["LastAgentHeartbeatAt"] = instance.LastAgentHeartbeatAt.Unix()
	}
	return item
}

// unmarshalInstance is a helper function to unmarshal a DynamoDB item into
// the Instance domain model
func unmarshalInstance(item map[string]types.AttributeValue) (*models.Instance, error) {
	var temp struct {
		Id                     string `dynamodbav:"Id"`
		EnvironmentId          string `dynamodbav:"EnvironmentId"`
		CatalogEntryId         string `dynamodbav:"CatalogEntryId"`
		NameOnToolbox          string `dynamodbav:"NameOnToolbox"`
		BaseConfigOverrideJson string `dynamodbav:"BaseConfigOverrideJson"`
		Status                 string `dynamodbav:"Status"`
		LastError              string `dynamodbav:"LastError"`
		LastAgentHeartbeatAt   *int64 `dynamodbav:"LastAgentHeartbeatAt"`
		CreatedAt              int64  `dynamodbav:"CreatedAt"`
		UpdatedAt              int64  `dynamodbav:"UpdatedAt"`
	}

	err := attributevalue.UnmarshalMap(item, &temp)
	if err != nil {
		return nil, err
	}

	instance := &models.Instance{
		Id:                     temp.Id,
		EnvironmentId:          temp.EnvironmentId,
		CatalogEntryId:         temp.CatalogEntryId,
		NameOnToolbox:          temp.NameOnToolbox,
		BaseConfigOverrideJson: temp.BaseConfigOverrideJson,
		Status:                 models.InstanceStatus(temp.Status),
		LastError:              temp.LastError,
		CreatedAt:              time.Unix(temp.CreatedAt, 0),
		UpdatedAt:              time.Unix(temp.UpdatedAt, 0),
	}
	if temp.LastAgentHeartbeatAt != nil {
		hb := time.Unix(*temp.LastAgentHeartbeatAt, 0)
		instance.LastAgentHeartbeatAt = &hb
	}

	return instance, nil
}
