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

// CatalogOperations handles all DynamoDB operations for the tool catalog
type CatalogOperations struct {
	client    *Client
	tableName string
}

// NewCatalogOperations creates a new CatalogOperations instance
func NewCatalogOperations(client *Client, tableName string) *CatalogOperations {
	return &CatalogOperations{
		client:    client,
		tableName: tableName,
	}
}

// CreateEntry creates a new catalog entry in DynamoDB
func (co *CatalogOperations) CreateEntry(ctx context.Context, entry *models.CatalogEntry) error {
	av, err := attributevalue.MarshalMap(map[string]interface{}{
		"Id":                entry.Id,
		"Name":              entry.Name,
		"Description":       entry.Description,
		"ImageRef":          entry.ImageRef,
		"DefaultConfigJson": entry.DefaultConfigJson,
		"CreatedAt":         entry.CreatedAt.Unix(),
		"UpdatedAt":         entry.UpdatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal catalog entry: %w", err)
	}

	_, err = co.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(co.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(Id)"),
	})

	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create catalog entry: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"catalog_entry_id": entry.Id,
		"name":             entry.Name,
	}).Info("Catalog entry created successfully in DynamoDB")
	return nil
}

// GetEntry retrieves a catalog entry by ID from DynamoDB
func (co *CatalogOperations) GetEntry(ctx context.Context, id string) (*models.CatalogEntry, error) {
	result, err := co.client.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(co.tableName),
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{Value: id},
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get catalog entry: %w", err)
	}

	if result.Item == nil {
		logger.WithField("catalog_entry_id", id).Warn("Catalog entry not found in DynamoDB")
		return nil, ErrNotFound
	}

	return unmarshalCatalogEntry(result.Item)
}

// GetAllEntries retrieves all catalog entries from DynamoDB
func (co *CatalogOperations) GetAllEntries(ctx context.Context) ([]*models.CatalogEntry, error) {
	result, err := co.client.DynamoDB.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(co.tableName),
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan catalog entries: %w", err)
	}

	entries := make([]*models.CatalogEntry, 0, len(result.Items))
	for _, item := range result.Items {
		entry, err := unmarshalCatalogEntry(item)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal catalog entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// DeleteEntry removes a catalog entry from DynamoDB
func (co *CatalogOperations) DeleteEntry(ctx context.Context, id string) error {
	_, err := co.client.DynamoDB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(co.tableName),
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{Value: id},
		},
	})

	if err != nil {
		return fmt.Errorf("failed to delete catalog entry: %w", err)
	}

	return nil
}

// unmarshalCatalogEntry is a helper function to unmarshal a DynamoDB item into
// the CatalogEntry domain model
func unmarshalCatalogEntry(item map[string]types.AttributeValue) (*models.CatalogEntry, error) {
	var temp struct {
		Id                string `dynamodbav:"Id"`
		Name              string `dynamodbav:"Name"`
		Description       string `dynamodbav:"Description"`
		ImageRef          string `dynamodbav:"ImageRef"`
		DefaultConfigJson string `dynamodbav:"DefaultConfigJson"`
		CreatedAt         int64  `dynamodbav:"CreatedAt"`
		UpdatedAt         int64  `dynamodbav:"UpdatedAt"`
	}

	err := attributevalue.UnmarshalMap(item, &temp)
	if err != nil {
		return nil, err
	}

	return &models.CatalogEntry{
		Id:                temp.Id,
		Name:              temp.Name,
		Description:       temp.Description,
		ImageRef:          temp.ImageRef,
		DefaultConfigJson: temp.DefaultConfigJson,
		CreatedAt:         time.Unix(temp.CreatedAt, 0),
		UpdatedAt:         time.Unix(temp.UpdatedAt, 0),
	}, nil
}
