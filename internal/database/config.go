package database

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	appConfig "github.com/imyashkale/provisioner/internal/config"
	"github.com/imyashkale/provisioner/internal/logger"
)

// API is the subset of the DynamoDB client the operations use
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Tables holds the DynamoDB table names
type Tables struct {
	Instances      string
	DeploymentLogs string
	Clients        string
	Plans          string
	Subscriptions  string
	Reservations   string
}

func (t Tables) all() []string {
	return []string{t.Instances, t.DeploymentLogs, t.Clients, t.Plans, t.Subscriptions, t.Reservations}
}

// Config holds the DynamoDB configuration
type Config struct {
	Region    string
	Tables    Tables
	PortFloor int
}

// Client wraps the DynamoDB client
type Client struct {
	DynamoDB  API
	Tables    Tables
	PortFloor int
}

// NewConfig creates a new database configuration from the application config
func NewConfig(appCfg *appConfig.Config) *Config {
	return &Config{
		Region: appCfg.AWSRegion,
		Tables: Tables{
			Instances:      appCfg.InstancesTableName,
			DeploymentLogs: appCfg.DeploymentLogsTableName,
			Clients:        appCfg.ClientsTableName,
			Plans:          appCfg.PlansTableName,
			Subscriptions:  appCfg.SubscriptionsTableName,
			Reservations:   appCfg.ReservationsTableName,
		},
		PortFloor: appCfg.PortFloor,
	}
}

// NewClient creates a new DynamoDB client
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	client := &Client{
		DynamoDB:  dynamodb.NewFromConfig(awsCfg),
		Tables:    cfg.Tables,
		PortFloor: cfg.PortFloor,
	}

	if err := client.Ping(ctx); err != nil {
		logger.WithField("error", err.Error()).Warn("Could not verify DynamoDB tables")
	}

	return client, nil
}

// Ping verifies every configured table is reachable
func (c *Client) Ping(ctx context.Context) error {
	for _, table := range c.Tables.all() {
		if err := c.ensureTableExists(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

// ensureTableExists checks if the DynamoDB table exists
func (c *Client) ensureTableExists(ctx context.Context, tableName string) error {
	_, err := c.DynamoDB.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return fmt.Errorf("table %s does not exist or cannot be accessed: %w", tableName, err)
	}

	logger.WithField("table", tableName).Debug("DynamoDB table verified")
	return nil
}

// scanAll drains a scan across every page
func (c *Client) scanAll(ctx context.Context, input *dynamodb.ScanInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue

	paginator := dynamodb.NewScanPaginator(c.DynamoDB, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}

	return items, nil
}

// getItem fetches one item by its string key, returning ErrNotFound when absent
func (c *Client) getItem(ctx context.Context, table, keyName, key string) (map[string]types.AttributeValue, error) {
	result, err := c.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			keyName: &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}
	return result.Item, nil
}
