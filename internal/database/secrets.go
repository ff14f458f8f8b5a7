package database

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/maverick-software/toolboxd/internal/logger"
)

// SecretOperations handles all DynamoDB operations for stored secrets.
// Values arrive here already encrypted; this layer never sees plaintext.
type SecretOperations struct {
	client    *Client
	tableName string
}

// NewSecretOperations creates a new SecretOperations instance
func NewSecretOperations(client *Client, tableName string) *SecretOperations {
	return &SecretOperations{
		client:    client,
		tableName: tableName,
	}
}

// PutSecret stores an encrypted secret value under the given reference
func (so *SecretOperations) PutSecret(ctx context.Context, ref, name, ciphertext string) error {
	_, err := so.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(so.tableName),
		Item: map[string]types.AttributeValue{
			"Ref":        &types.AttributeValueMemberS{Value: ref},
			"Name":       &types.AttributeValueMemberS{Value: name},
			"Ciphertext": &types.AttributeValueMemberS{Value: ciphertext},
			"CreatedAt":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", time.Now().Unix())},
		},
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"secret_ref": ref,
			"error":      err.Error(),
		}).Error("Failed to store secret in DynamoDB")
		return fmt.Errorf("failed to store secret: %w", err)
	}

	return nil
}

// GetSecretCiphertext retrieves the encrypted value for a secret reference
func (so *SecretOperations) GetSecretCiphertext(ctx context.Context, ref string) (string, error) {
	result, err := so.client.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(so.tableName),
		Key: map[string]types.AttributeValue{
			"Ref": &types.AttributeValueMemberS{Value: ref},
		},
	})

	if err != nil {
		return "", fmt.Errorf("failed to get secret: %w", err)
	}

	if result.Item == nil {
		logger.WithField("secret_ref", ref).Warn("Secret not found in DynamoDB")
		return "", ErrNotFound
	}

	ct, ok := result.Item["Ciphertext"].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("secret %s has no ciphertext attribute", ref)
	}

	return ct.Value, nil
}

// DeleteSecret removes a secret from DynamoDB
func (so *SecretOperations) DeleteSecret(ctx context.Context, ref string) error {
	_, err := so.client.DynamoDB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(so.tableName),
		Key: map[string]types.AttributeValue{
			"Ref": &types.AttributeValueMemberS{Value: ref},
		},
	})

	if err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	return nil
}
