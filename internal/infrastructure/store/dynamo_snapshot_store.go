package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/example/ec-store-sync/internal/model"
)

// ErrVersionMismatch is returned by the version-gated operations when no
// snapshot exists at the expected version. Callers treat it as a
// precondition-miss, not a failure.
var ErrVersionMismatch = errors.New("snapshot not at expected version")

// DynamoDB caps BatchWriteItem at 25 items per request.
const dynamoBatchWriteLimit = 25

// DynamoSnapshotStore holds the order-side cart snapshot replica, keyed by
// cart_id. The version gate is implemented with conditional writes so every
// call site shares identical compare-and-apply semantics.
type DynamoSnapshotStore struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoSnapshot represents the DynamoDB item structure
type dynamoSnapshot struct {
	CartID          string `dynamodbav:"cart_id"`
	UserID          string `dynamodbav:"user_id"`
	ProductID       string `dynamodbav:"product_id"`
	ProductTitle    string `dynamodbav:"product_title"`
	ProductPrice    int    `dynamodbav:"product_price"`
	ProductImage    string `dynamodbav:"product_image"`
	SellerID        string `dynamodbav:"seller_id"`
	ProductQuantity int    `dynamodbav:"product_quantity"`
	CartQuantity    int    `dynamodbav:"cart_quantity"`
	Total           int    `dynamodbav:"total"`
	Version         int    `dynamodbav:"version"`
	CreatedAt       string `dynamodbav:"created_at"`
	UpdatedAt       string `dynamodbav:"updated_at"`
}

func NewDynamoSnapshotStore(client *dynamodb.Client, tableName string) *DynamoSnapshotStore {
	return &DynamoSnapshotStore{client: client, tableName: tableName}
}

// Get returns the snapshot for a cart, or nil when none exists.
func (s *DynamoSnapshotStore) Get(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"cart_id": &types.AttributeValueMemberS{Value: cartID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	snap, err := ds.toModel()
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Put writes a snapshot unconditionally. PutItem overwrites by key, so a
// duplicate Create delivery lands on the same item instead of violating the
// one-snapshot-per-cart invariant.
func (s *DynamoSnapshotStore) Put(ctx context.Context, snap model.CartSnapshot) error {
	av, err := attributevalue.MarshalMap(fromModel(snap))
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put snapshot: %w", err)
	}
	return nil
}

// UpdateIfVersion overwrites the snapshot only if the stored version equals
// expected. Returns ErrVersionMismatch when the item is absent or at a
// different version.
func (s *DynamoSnapshotStore) UpdateIfVersion(ctx context.Context, cartID string, expected int, snap model.CartSnapshot) error {
	av, err := attributevalue.MarshalMap(fromModel(snap))
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(cart_id) AND version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrVersionMismatch
		}
		return fmt.Errorf("failed to update snapshot: %w", err)
	}
	return nil
}

// DeleteIfVersion removes the snapshot only if the stored version equals
// expected.
func (s *DynamoSnapshotStore) DeleteIfVersion(ctx context.Context, cartID string, expected int) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"cart_id": &types.AttributeValueMemberS{Value: cartID},
		},
		ConditionExpression: aws.String("attribute_exists(cart_id) AND version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrVersionMismatch
		}
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// List returns all snapshots, optionally scoped to a single user.
func (s *DynamoSnapshotStore) List(ctx context.Context, userID string) ([]model.CartSnapshot, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(s.tableName)}
	if userID != "" {
		input.FilterExpression = aws.String("user_id = :uid")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		}
	}

	var snapshots []model.CartSnapshot
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshots: %w", err)
		}

		for _, item := range result.Items {
			var ds dynamoSnapshot
			if err := attributevalue.UnmarshalMap(item, &ds); err != nil {
				return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
			}
			snap, err := ds.toModel()
			if err != nil {
				return nil, err
			}
			snapshots = append(snapshots, snap)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return snapshots, nil
}

// BulkInsert writes a batch of snapshots, chunked to the BatchWriteItem
// limit. Unprocessed items fail the call so the batch surfaces in the run's
// error list and is retried by a later reconciliation.
func (s *DynamoSnapshotStore) BulkInsert(ctx context.Context, snapshots []model.CartSnapshot) error {
	for start := 0; start < len(snapshots); start += dynamoBatchWriteLimit {
		end := start + dynamoBatchWriteLimit
		if end > len(snapshots) {
			end = len(snapshots)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, snap := range snapshots[start:end] {
			av, err := attributevalue.MarshalMap(fromModel(snap))
			if err != nil {
				return fmt.Errorf("failed to marshal snapshot %s: %w", snap.CartID, err)
			}
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: av},
			})
		}

		result, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.tableName: requests},
		})
		if err != nil {
			return fmt.Errorf("failed to batch write snapshots: %w", err)
		}
		if len(result.UnprocessedItems) > 0 {
			return fmt.Errorf("batch write left %d snapshots unprocessed", len(result.UnprocessedItems[s.tableName]))
		}
	}
	return nil
}

func fromModel(snap model.CartSnapshot) dynamoSnapshot {
	return dynamoSnapshot{
		CartID:          snap.CartID,
		UserID:          snap.UserID,
		ProductID:       snap.ProductID,
		ProductTitle:    snap.ProductTitle,
		ProductPrice:    snap.ProductPrice,
		ProductImage:    snap.ProductImage,
		SellerID:        snap.SellerID,
		ProductQuantity: snap.ProductQuantity,
		CartQuantity:    snap.CartQuantity,
		Total:           snap.Total,
		Version:         snap.Version,
		CreatedAt:       snap.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:       snap.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func (ds dynamoSnapshot) toModel() (model.CartSnapshot, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, ds.CreatedAt)
	if err != nil {
		return model.CartSnapshot{}, fmt.Errorf("failed to parse created_at for cart %s: %w", ds.CartID, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, ds.UpdatedAt)
	if err != nil {
		return model.CartSnapshot{}, fmt.Errorf("failed to parse updated_at for cart %s: %w", ds.CartID, err)
	}

	return model.CartSnapshot{
		CartID:          ds.CartID,
		UserID:          ds.UserID,
		ProductID:       ds.ProductID,
		ProductTitle:    ds.ProductTitle,
		ProductPrice:    ds.ProductPrice,
		ProductImage:    ds.ProductImage,
		SellerID:        ds.SellerID,
		ProductQuantity: ds.ProductQuantity,
		CartQuantity:    ds.CartQuantity,
		Total:           ds.Total,
		Version:         ds.Version,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}
