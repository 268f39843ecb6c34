package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"shop-assistant/internal/domain"
)

const skSummary = "SUMMARY#"

// dynamodbAPI is the minimal DynamoDB interface required by DynamoSummaryStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoSummaryStore keeps one summary item per product in a DynamoDB table
// keyed by PK/SK. Expired items are kept until the next upsert replaces them.
type DynamoSummaryStore struct {
	api       dynamodbAPI
	tableName string
}

// NewDynamoSummaryStore creates a summary store backed by tableName.
func NewDynamoSummaryStore(api dynamodbAPI, tableName string) (*DynamoSummaryStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoSummaryStore{api: api, tableName: tableName}, nil
}

// productPK returns the DynamoDB partition key for a product.
func productPK(productID int) string {
	return "PRODUCT#" + strconv.Itoa(productID)
}

// GetSummary reads the stored summary for productID regardless of freshness.
func (s *DynamoSummaryStore) GetSummary(ctx context.Context, productID int) (domain.SummaryEntry, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: productPK(productID)},
			"SK": &types.AttributeValueMemberS{Value: skSummary},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.SummaryEntry{}, false, fmt.Errorf("repository: GetSummary get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.SummaryEntry{}, false, nil
	}

	entry, err := itemToSummary(out.Item)
	if err != nil {
		return domain.SummaryEntry{}, false, fmt.Errorf("repository: GetSummary decode: %w", err)
	}
	entry.ProductID = productID
	return entry, true, nil
}

// UpsertSummary writes or fully replaces the summary item for entry.ProductID.
func (s *DynamoSummaryStore) UpsertSummary(ctx context.Context, entry domain.SummaryEntry) error {
	if entry.ProductID <= 0 {
		return errors.New("repository: UpsertSummary: product id is required")
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      summaryItem(entry),
	})
	if err != nil {
		return fmt.Errorf("repository: UpsertSummary: %w", err)
	}
	return nil
}

func summaryItem(entry domain.SummaryEntry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: productPK(entry.ProductID)},
		"SK":          &types.AttributeValueMemberS{Value: skSummary},
		"productId":   &types.AttributeValueMemberN{Value: strconv.Itoa(entry.ProductID)},
		"content":     &types.AttributeValueMemberS{Value: entry.Content},
		"generatedAt": &types.AttributeValueMemberS{Value: entry.GeneratedAt.UTC().Format(time.RFC3339Nano)},
		"expiresAt":   &types.AttributeValueMemberS{Value: entry.ExpiresAt.UTC().Format(time.RFC3339Nano)},
	}
}

func itemToSummary(item map[string]types.AttributeValue) (domain.SummaryEntry, error) {
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.SummaryEntry{}, err
	}
	generatedAt, err := timeAttr(item, "generatedAt")
	if err != nil {
		return domain.SummaryEntry{}, err
	}
	expiresAt, err := timeAttr(item, "expiresAt")
	if err != nil {
		return domain.SummaryEntry{}, err
	}
	return domain.SummaryEntry{
		Content:     content,
		GeneratedAt: generatedAt,
		ExpiresAt:   expiresAt,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	raw, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return ts, nil
}
