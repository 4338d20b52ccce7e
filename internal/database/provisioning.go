package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imyashkale/provisioner/internal/logger"
	"github.com/imyashkale/provisioner/internal/models"
)

// Position of each condition in the provisioning transaction mapped to the
// error a failed condition at that position means.
var provisionConditionErrors = []error{
	ErrSubscriptionInactive,
	ErrLimitReached,
	ErrNameTaken,
	ErrDomainTaken,
	ErrPortTaken,
	ErrAlreadyExists,
	ErrAlreadyExists,
	ErrConflict,
}

// ProvisioningOperations performs the atomic instance insert and the port lease
type ProvisioningOperations struct {
	client *Client
}

// NewProvisioningOperations creates a new ProvisioningOperations
func NewProvisioningOperations(client *Client) *ProvisioningOperations {
	return &ProvisioningOperations{client: client}
}

// Provision writes the instance, its opening deployment log and every uniqueness
// guard in one transaction. The client's instance counter is advanced only while
// it is under maxInstances and the subscription is still active.
func (ops *ProvisioningOperations) Provision(ctx context.Context, instance *models.Instance, entry *models.DeploymentLog, maxInstances int) error {
	instanceAV, err := attributevalue.MarshalMap(newInstanceItem(instance))
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}
	logAV, err := attributevalue.MarshalMap(newDeploymentLogItem(entry))
	if err != nil {
		return fmt.Errorf("failed to marshal deployment log: %w", err)
	}

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	tables := ops.client.Tables

	items := []types.TransactWriteItem{
		{
			ConditionCheck: &types.ConditionCheck{
				TableName: aws.String(tables.Subscriptions),
				Key: map[string]types.AttributeValue{
					"Id": &types.AttributeValueMemberS{Value: instance.SubscriptionId},
				},
				ConditionExpression: aws.String("#status = :active AND ClientId = :clientId"),
				ExpressionAttributeNames: map[string]string{
					"#status": "Status",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":active":   &types.AttributeValueMemberS{Value: string(models.SubscriptionStatusActive)},
					":clientId": &types.AttributeValueMemberS{Value: instance.ClientId},
				},
			},
		},
		{
			Update: &types.Update{
				TableName: aws.String(tables.Clients),
				Key: map[string]types.AttributeValue{
					"Id": &types.AttributeValueMemberS{Value: instance.ClientId},
				},
				UpdateExpression:    aws.String("SET InstanceCount = if_not_exists(InstanceCount, :zero) + :one, UpdatedAt = :now"),
				ConditionExpression: aws.String("attribute_exists(Id) AND (attribute_not_exists(InstanceCount) OR InstanceCount < :max)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":zero": &types.AttributeValueMemberN{Value: "0"},
					":one":  &types.AttributeValueMemberN{Value: "1"},
					":max":  &types.AttributeValueMemberN{Value: strconv.Itoa(maxInstances)},
					":now":  &types.AttributeValueMemberN{Value: now},
				},
			},
		},
		reservationPut(tables.Reservations, reservationName+instance.Name, instance.Id, now),
		reservationPut(tables.Reservations, reservationDomain+instance.Domain, instance.Id, now),
		reservationPut(tables.Reservations, reservationPort+strconv.Itoa(instance.Port), instance.Id, now),
		{
			Put: &types.Put{
				TableName:           aws.String(tables.Instances),
				Item:                instanceAV,
				ConditionExpression: aws.String("attribute_not_exists(Id)"),
			},
		},
		{
			Put: &types.Put{
				TableName:           aws.String(tables.DeploymentLogs),
				Item:                logAV,
				ConditionExpression: aws.String("attribute_not_exists(Id)"),
			},
		},
		reservationPut(tables.Reservations, openLogKey(instance.Id, entry.Action), entry.Id, now),
	}

	_, err = ops.client.DynamoDB.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		mapped := provisionError(err)
		logger.WithFields(map[string]interface{}{
			"instance_id": instance.Id,
			"client_id":   instance.ClientId,
			"port":        instance.Port,
			"error":       mapped.Error(),
		}).Warn("Provisioning transaction rejected by DynamoDB")
		return mapped
	}

	logger.WithFields(map[string]interface{}{
		"instance_id": instance.Id,
		"client_id":   instance.ClientId,
		"port":        instance.Port,
	}).Info("Instance provisioned in DynamoDB")

	return nil
}

// NextPort atomically advances the port counter and returns the new value.
// The counter starts at the configured floor.
func (ops *ProvisioningOperations) NextPort(ctx context.Context) (int, error) {
	out, err := ops.client.DynamoDB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(ops.client.Tables.Reservations),
		Key: map[string]types.AttributeValue{
			"Key": &types.AttributeValueMemberS{Value: portSequenceKey},
		},
		UpdateExpression: aws.String("SET #value = if_not_exists(#value, :start) + :one"),
		ExpressionAttributeNames: map[string]string{
			"#value": "Value",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":start": &types.AttributeValueMemberN{Value: strconv.Itoa(ops.client.PortFloor - 1)},
			":one":   &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to lease port: %w", err)
	}

	value, ok := out.Attributes["Value"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("port counter returned no numeric value")
	}

	port, err := strconv.Atoi(value.Value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse port counter %q: %w", value.Value, err)
	}
	return port, nil
}

func reservationPut(table, key, owner, now string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(table),
			Item: map[string]types.AttributeValue{
				"Key":       &types.AttributeValueMemberS{Value: key},
				"Owner":     &types.AttributeValueMemberS{Value: owner},
				"CreatedAt": &types.AttributeValueMemberN{Value: now},
			},
			ConditionExpression: aws.String("attribute_not_exists(#key)"),
			ExpressionAttributeNames: map[string]string{
				"#key": "Key",
			},
		},
	}
}

// provisionError maps a cancelled provisioning transaction to the condition that failed
func provisionError(err error) error {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("failed to provision instance: %w", err)
	}

	for i, reason := range tce.CancellationReasons {
		switch aws.ToString(reason.Code) {
		case "ConditionalCheckFailed":
			if i < len(provisionConditionErrors) {
				return provisionConditionErrors[i]
			}
			return ErrConflict
		case "TransactionConflict":
			return ErrConflict
		}
	}

	return fmt.Errorf("%w: %s", ErrConflict, aws.ToString(tce.Message))
}
