package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imyashkale/provisioner/internal/logger"
	"github.com/imyashkale/provisioner/internal/models"
)

// DeploymentLogOperations handles all DynamoDB operations for deployment logs
type DeploymentLogOperations struct {
	client *Client
}

// NewDeploymentLogOperations creates a new DeploymentLogOperations
func NewDeploymentLogOperations(client *Client) *DeploymentLogOperations {
	return &DeploymentLogOperations{client: client}
}

// GetLog retrieves a deployment log entry by ID
func (ops *DeploymentLogOperations) GetLog(ctx context.Context, id string) (*models.DeploymentLog, error) {
	item, err := ops.client.getItem(ctx, ops.client.Tables.DeploymentLogs, "Id", id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get deployment log: %w", err)
	}
	return unmarshalDeploymentLog(item)
}

// FindOpenLog returns the single in-progress entry for an instance and action
func (ops *DeploymentLogOperations) FindOpenLog(ctx context.Context, instanceId string, action models.DeploymentAction) (*models.DeploymentLog, error) {
	items, err := ops.client.scanAll(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(ops.client.Tables.DeploymentLogs),
		FilterExpression: aws.String("InstanceId = :instanceId AND #action = :action AND #status = :open"),
		ExpressionAttributeNames: map[string]string{
			"#action": "Action",
			"#status": "Status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":instanceId": &types.AttributeValueMemberS{Value: instanceId},
			":action":     &types.AttributeValueMemberS{Value: string(action)},
			":open":       &types.AttributeValueMemberS{Value: string(models.DeploymentLogInProgress)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan open deployment logs: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return unmarshalDeploymentLog(items[0])
}

// ListLogs scans deployment logs filtered by instance and/or client
func (ops *DeploymentLogOperations) ListLogs(ctx context.Context, instanceId, clientId string) ([]*models.DeploymentLog, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(ops.client.Tables.DeploymentLogs),
	}

	var filters []string
	values := map[string]types.AttributeValue{}
	if instanceId != "" {
		filters = append(filters, "InstanceId = :instanceId")
		values[":instanceId"] = &types.AttributeValueMemberS{Value: instanceId}
	}
	if clientId != "" {
		filters = append(filters, "ClientId = :clientId")
		values[":clientId"] = &types.AttributeValueMemberS{Value: clientId}
	}
	if len(filters) > 0 {
		input.FilterExpression = aws.String(strings.Join(filters, " AND "))
		input.ExpressionAttributeValues = values
	}

	items, err := ops.client.scanAll(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan deployment logs: %w", err)
	}

	logs := make([]*models.DeploymentLog, 0, len(items))
	for _, item := range items {
		entry, err := unmarshalDeploymentLog(item)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}

	sort.Slice(logs, func(i, j int) bool {
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})

	return logs, nil
}

// CloseLog writes the terminal state of an in-progress entry and releases its open guard.
// It fails with ErrLogClosed if the entry was already closed.
func (ops *DeploymentLogOperations) CloseLog(ctx context.Context, entry *models.DeploymentLog) error {
	if !entry.Status.IsClosed() {
		return fmt.Errorf("deployment log must be closed with a terminal status, got %s", entry.Status)
	}

	details, err := attributevalue.Marshal(map[string]interface{}(entry.Details))
	if err != nil {
		return fmt.Errorf("failed to marshal deployment log details: %w", err)
	}

	closedAt := entry.Timestamp
	if entry.ClosedAt != nil {
		closedAt = *entry.ClosedAt
	}

	_, err = ops.client.DynamoDB.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName: aws.String(ops.client.Tables.DeploymentLogs),
					Key: map[string]types.AttributeValue{
						"Id": &types.AttributeValueMemberS{Value: entry.Id},
					},
					UpdateExpression:    aws.String("SET #status = :status, Details = :details, ErrorMessage = :errorMessage, DurationSeconds = :duration, ClosedAt = :closedAt"),
					ConditionExpression: aws.String("attribute_exists(Id) AND #status = :open"),
					ExpressionAttributeNames: map[string]string{
						"#status": "Status",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":status":       &types.AttributeValueMemberS{Value: string(entry.Status)},
						":open":         &types.AttributeValueMemberS{Value: string(models.DeploymentLogInProgress)},
						":details":      details,
						":errorMessage": &types.AttributeValueMemberS{Value: entry.ErrorMessage},
						":duration":     &types.AttributeValueMemberN{Value: strconv.FormatFloat(entry.DurationSeconds, 'f', -1, 64)},
						":closedAt":     &types.AttributeValueMemberN{Value: strconv.FormatInt(closedAt.UnixMilli(), 10)},
					},
					ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
				},
			},
			{
				Delete: &types.Delete{
					TableName: aws.String(ops.client.Tables.Reservations),
					Key: map[string]types.AttributeValue{
						"Key": &types.AttributeValueMemberS{Value: openLogKey(entry.InstanceId, entry.Action)},
					},
				},
			},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && len(tce.CancellationReasons) > 0 {
			reason := tce.CancellationReasons[0]
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				if len(reason.Item) == 0 {
					return ErrNotFound
				}
				return ErrLogClosed
			}
		}
		logger.WithFields(map[string]interface{}{
			"log_id": entry.Id,
			"error":  err.Error(),
		}).Error("Failed to close deployment log in DynamoDB")
		return fmt.Errorf("failed to close deployment log: %w", err)
	}

	return nil
}

func openLogKey(instanceId string, action models.DeploymentAction) string {
	return reservationOpenLog + instanceId + "#" + string(action)
}

func unmarshalDeploymentLog(item map[string]types.AttributeValue) (*models.DeploymentLog, error) {
	var it deploymentLogItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deployment log: %w", err)
	}
	return it.toDomain(), nil
}
