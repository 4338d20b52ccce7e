package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imyashkale/provisioner/internal/logger"
	"github.com/imyashkale/provisioner/internal/models"
)

// InstanceOperations handles all DynamoDB operations for instances
type InstanceOperations struct {
	client *Client
}

// NewInstanceOperations creates a new InstanceOperations
func NewInstanceOperations(client *Client) *InstanceOperations {
	return &InstanceOperations{client: client}
}

// GetInstance retrieves an instance by ID
func (ops *InstanceOperations) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	logger.WithField("instance_id", id).Debug("Retrieving instance from DynamoDB")

	item, err := ops.client.getItem(ctx, ops.client.Tables.Instances, "Id", id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return unmarshalInstance(item)
}

// ListInstances scans instances, optionally restricted to one client
func (ops *InstanceOperations) ListInstances(ctx context.Context, clientId string) ([]*models.Instance, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(ops.client.Tables.Instances),
	}
	if clientId != "" {
		input.FilterExpression = aws.String("ClientId = :clientId")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":clientId": &types.AttributeValueMemberS{Value: clientId},
		}
	}

	items, err := ops.client.scanAll(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan instances: %w", err)
	}

	instances := make([]*models.Instance, 0, len(items))
	for _, item := range items {
		instance, err := unmarshalInstance(item)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].CreatedAt.After(instances[j].CreatedAt)
	})

	return instances, nil
}

// CountInstancesByClient counts every instance owned by clientId regardless of status
func (ops *InstanceOperations) CountInstancesByClient(ctx context.Context, clientId string) (int, error) {
	paginator := dynamodb.NewScanPaginator(ops.client.DynamoDB, &dynamodb.ScanInput{
		TableName:        aws.String(ops.client.Tables.Instances),
		Select:           types.SelectCount,
		FilterExpression: aws.String("ClientId = :clientId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":clientId": &types.AttributeValueMemberS{Value: clientId},
		},
	})

	total := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count instances: %w", err)
		}
		total += int(page.Count)
	}

	return total, nil
}

// NameReserved reports whether an instance already holds name
func (ops *InstanceOperations) NameReserved(ctx context.Context, name string) (bool, error) {
	return ops.reserved(ctx, reservationName+name)
}

// DomainReserved reports whether an instance already holds domain
func (ops *InstanceOperations) DomainReserved(ctx context.Context, domain string) (bool, error) {
	return ops.reserved(ctx, reservationDomain+domain)
}

func (ops *InstanceOperations) reserved(ctx context.Context, key string) (bool, error) {
	_, err := ops.client.getItem(ctx, ops.client.Tables.Reservations, "Key", key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read reservation %s: %w", key, err)
	}
	return true, nil
}

// TransitionStatus moves an instance from one status to the next if it still holds from.
// Only status, error detail and the update timestamp are written.
func (ops *InstanceOperations) TransitionStatus(ctx context.Context, id string, from, to models.InstanceStatus, lastError string) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrStatusConflict, from, to)
	}

	_, err := ops.client.DynamoDB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(ops.client.Tables.Instances),
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET #status = :to, LastError = :lastError, UpdatedAt = :updatedAt"),
		ConditionExpression: aws.String("attribute_exists(Id) AND #status = :from"),
		ExpressionAttributeNames: map[string]string{
			"#status": "Status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":to":        &types.AttributeValueMemberS{Value: string(to)},
			":from":      &types.AttributeValueMemberS{Value: string(from)},
			":lastError": &types.AttributeValueMemberS{Value: lastError},
			":updatedAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().UnixMilli(), 10)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return ErrNotFound
			}
			return fmt.Errorf("%w: instance is no longer %s", ErrStatusConflict, from)
		}
		logger.WithFields(map[string]interface{}{
			"instance_id": id,
			"error":       err.Error(),
		}).Error("Failed to update instance status in DynamoDB")
		return fmt.Errorf("failed to update instance status: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"instance_id": id,
		"from":        from,
		"to":          to,
	}).Debug("Instance status updated in DynamoDB")

	return nil
}

func unmarshalInstance(item map[string]types.AttributeValue) (*models.Instance, error) {
	var it instanceItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}
	return it.toDomain(), nil
}
