package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imyashkale/provisioner/internal/models"
)

// BillingOperations reads and seeds clients, plans and subscriptions
type BillingOperations struct {
	client *Client
}

// NewBillingOperations creates a new BillingOperations
func NewBillingOperations(client *Client) *BillingOperations {
	return &BillingOperations{client: client}
}

// GetClient retrieves a client profile by ID
func (ops *BillingOperations) GetClient(ctx context.Context, id string) (*models.Client, error) {
	item, err := ops.client.getItem(ctx, ops.client.Tables.Clients, "Id", id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return unmarshalClient(item)
}

// GetClientByUserId finds the client profile bound to an authenticated user
func (ops *BillingOperations) GetClientByUserId(ctx context.Context, userId string) (*models.Client, error) {
	items, err := ops.client.scanAll(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(ops.client.Tables.Clients),
		FilterExpression: aws.String("UserId = :userId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userId": &types.AttributeValueMemberS{Value: userId},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan clients by user_id: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return unmarshalClient(items[0])
}

// GetPlan retrieves a plan by ID
func (ops *BillingOperations) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	item, err := ops.client.getItem(ctx, ops.client.Tables.Plans, "Id", id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	var it planItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
	}
	return it.toDomain(), nil
}

// GetSubscription retrieves a subscription by ID with its plan attached
func (ops *BillingOperations) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	item, err := ops.client.getItem(ctx, ops.client.Tables.Subscriptions, "Id", id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	sub, err := unmarshalSubscription(item)
	if err != nil {
		return nil, err
	}
	if err := ops.attachPlan(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ListActiveSubscriptions returns every active subscription of a client with plans attached
func (ops *BillingOperations) ListActiveSubscriptions(ctx context.Context, clientId string) ([]*models.Subscription, error) {
	items, err := ops.client.scanAll(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(ops.client.Tables.Subscriptions),
		FilterExpression: aws.String("ClientId = :clientId AND #status = :active"),
		ExpressionAttributeNames: map[string]string{
			"#status": "Status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":clientId": &types.AttributeValueMemberS{Value: clientId},
			":active":   &types.AttributeValueMemberS{Value: string(models.SubscriptionStatusActive)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscriptions: %w", err)
	}

	subs := make([]*models.Subscription, 0, len(items))
	for _, item := range items {
		sub, err := unmarshalSubscription(item)
		if err != nil {
			return nil, err
		}
		if err := ops.attachPlan(ctx, sub); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (ops *BillingOperations) attachPlan(ctx context.Context, sub *models.Subscription) error {
	plan, err := ops.GetPlan(ctx, sub.PlanId)
	if err != nil {
		return fmt.Errorf("failed to load plan %s for subscription %s: %w", sub.PlanId, sub.Id, err)
	}
	sub.Plan = plan
	return nil
}

// PutPlan creates or replaces a plan
func (ops *BillingOperations) PutPlan(ctx context.Context, plan *models.Plan) error {
	return ops.put(ctx, ops.client.Tables.Plans, newPlanItem(plan))
}

// PutSubscription creates or replaces a subscription
func (ops *BillingOperations) PutSubscription(ctx context.Context, sub *models.Subscription) error {
	return ops.put(ctx, ops.client.Tables.Subscriptions, newSubscriptionItem(sub))
}

// PutClient creates or updates a client profile without touching its instance counter
func (ops *BillingOperations) PutClient(ctx context.Context, c *models.Client) error {
	_, err := ops.client.DynamoDB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(ops.client.Tables.Clients),
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{Value: c.Id},
		},
		UpdateExpression: aws.String("SET UserId = :userId, CompanyName = :company, Phone = :phone, Address = :address, CreatedAt = if_not_exists(CreatedAt, :now), UpdatedAt = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userId":  &types.AttributeValueMemberS{Value: c.UserId},
			":company": &types.AttributeValueMemberS{Value: c.CompanyName},
			":phone":   &types.AttributeValueMemberS{Value: c.Phone},
			":address": &types.AttributeValueMemberS{Value: c.Address},
			":now":     &types.AttributeValueMemberN{Value: strconv.FormatInt(c.UpdatedAt.UnixMilli(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put client: %w", err)
	}
	return nil
}

func (ops *BillingOperations) put(ctx context.Context, table string, item interface{}) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item for %s: %w", table, err)
	}

	_, err = ops.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put item into %s: %w", table, err)
	}
	return nil
}

func unmarshalClient(item map[string]types.AttributeValue) (*models.Client, error) {
	var it clientItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}
	return it.toDomain(), nil
}

func unmarshalSubscription(item map[string]types.AttributeValue) (*models.Subscription, error) {
	var it subscriptionItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
	}
	return it.toDomain(), nil
}
