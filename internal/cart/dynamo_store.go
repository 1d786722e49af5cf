package cart

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-storefront-checkout/internal/aws"
)

// cartRecord is one line of the cart table: PK user_id, SK product_id.
type cartRecord struct {
	UserID     string    `dynamodbav:"user_id"`
	ProductID  string    `dynamodbav:"product_id"`
	Name       string    `dynamodbav:"name,omitempty"`
	UnitPrice  string    `dynamodbav:"unit_price"`
	ImageRef   string    `dynamodbav:"image_ref,omitempty"`
	CategoryID string    `dynamodbav:"category_id,omitempty"`
	Quantity   int       `dynamodbav:"quantity"`
	AddedAt    time.Time `dynamodbav:"added_at"`
	UpdatedAt  time.Time `dynamodbav:"updated_at"`
}

// DynamoStore persists authenticated carts in DynamoDB.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoStore returns a store bound to tableName.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, nowFunc: time.Now}
}

// Load returns the user's lines in the order they were first added.
func (s *DynamoStore) Load(ctx context.Context, userID string) ([]LineItem, error) {
	var records []cartRecord
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			KeyConditionExpression: awsString("user_id = :u"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":u": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query cart: %w", err)
		}
		var page []cartRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal cart: %w", err)
		}
		records = append(records, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].AddedAt.Before(records[j].AddedAt) })

	items := make([]LineItem, 0, len(records))
	for _, r := range records {
		if r.Quantity <= 0 {
			continue
		}
		price, err := decimal.NewFromString(r.UnitPrice)
		if err != nil {
			price = decimal.Zero
		}
		items = append(items, LineItem{
			ProductID:  r.ProductID,
			Name:       r.Name,
			UnitPrice:  price,
			ImageRef:   r.ImageRef,
			CategoryID: r.CategoryID,
			Quantity:   r.Quantity,
		})
	}
	return items, nil
}

// Put upserts a line. A non-positive quantity deletes it instead.
func (s *DynamoStore) Put(ctx context.Context, userID string, item LineItem) error {
	if item.Quantity <= 0 {
		return s.Delete(ctx, userID, item.ProductID)
	}
	now := s.nowFunc().UTC().Format(time.RFC3339Nano)
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key:       recordKey(userID, item.ProductID),
		UpdateExpression: awsString("SET #n = :n, unit_price = :p, image_ref = :i, category_id = :c, " +
			"quantity = :q, updated_at = :ua, added_at = if_not_exists(added_at, :ua)"),
		ExpressionAttributeNames: map[string]string{"#n": "name"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n":  &types.AttributeValueMemberS{Value: item.Name},
			":p":  &types.AttributeValueMemberS{Value: item.UnitPrice.String()},
			":i":  &types.AttributeValueMemberS{Value: item.ImageRef},
			":c":  &types.AttributeValueMemberS{Value: item.CategoryID},
			":q":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", item.Quantity)},
			":ua": &types.AttributeValueMemberS{Value: now},
		},
	})
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

// Delete removes one line.
func (s *DynamoStore) Delete(ctx context.Context, userID, productID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key:       recordKey(userID, productID),
	})
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

// Clear removes every line for the user.
func (s *DynamoStore) Clear(ctx context.Context, userID string) error {
	items, err := s.Load(ctx, userID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := s.Delete(ctx, userID, it.ProductID); err != nil {
			return err
		}
	}
	return nil
}

func recordKey(userID, productID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id":    &types.AttributeValueMemberS{Value: userID},
		"product_id": &types.AttributeValueMemberS{Value: productID},
	}
}

func awsString(s string) *string { return &s }
