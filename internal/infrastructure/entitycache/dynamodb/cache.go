// Package dynamodb provides an entity data cache shared over the network
// through a DynamoDB table.
//
// Table schema:
//   - Partition key: tid (number) - the entity id
//   - data_id (string), data (binary), set_at (number, unix ms)
//   - expires_at (number, unix seconds) - DynamoDB TTL attribute
//   - expires_ms (number, unix ms) - exact expiry checked on read
//
// DynamoDB removes expired items lazily, so reads check the expiry
// themselves. EnsureTable creates the table with TTL enabled.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
	"github.com/ersonp/tidstore/internal/infrastructure/config"
	"github.com/ersonp/tidstore/internal/infrastructure/entitycache"
)

// Attribute names.
const (
	attrTID       = "tid"
	attrDataID    = "data_id"
	attrData      = "data"
	attrSetAt     = "set_at"
	attrExpiresAt = "expires_at"
	attrExpiresMS = "expires_ms"
)

// maxBatchWrite is the DynamoDB limit of requests per BatchWriteItem.
const maxBatchWrite = 25

// maxUnprocessedRetries bounds the resubmission of throttled batch writes.
const maxUnprocessedRetries = 5

// unprocessedBackoff is the wait before the first resubmission. It doubles
// on every further attempt.
const unprocessedBackoff = 50 * time.Millisecond

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// Cache implements ports.EntityDataCache on DynamoDB.
type Cache struct {
	client DDBClient
	table  string
	codec  entitycache.Codec
	clock  ports.Clock
	logger *zap.Logger
	wait   func(ctx context.Context, d time.Duration) error
}

// NewCache creates a cache on an existing client.
func NewCache(client DDBClient, table string, codec entitycache.Codec, clock ports.Clock, logger *zap.Logger) *Cache {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		client: client,
		table:  table,
		codec:  codec,
		clock:  clock,
		logger: logger,
		wait:   sleepContext,
	}
}

// NewCacheFromConfig builds the AWS client from the default credential chain.
func NewCacheFromConfig(
	ctx context.Context,
	cfg config.DynamoDBConfig,
	codec entitycache.Codec,
	clock ports.Clock,
	logger *zap.Logger,
) (*Cache, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewCache(client, cfg.Table, codec, clock, logger), nil
}

// EnsureTable creates the table if it doesn't exist and turns on TTL.
func (c *Cache) EnsureTable(ctx context.Context) error {
	_, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describing table %s: %w", c.table, err)
	}

	_, err = c.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(c.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrTID), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrTID), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("creating table %s: %w", c.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(c.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.table)}, 2*time.Minute); err != nil {
		return fmt.Errorf("waiting for table %s: %w", c.table, err)
	}

	_, err = c.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(c.table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(attrExpiresAt),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("enabling ttl on %s: %w", c.table, err)
	}
	c.logger.Info("dynamodb cache table created", zap.String("table", c.table))
	return nil
}

// GetData reads the entry with a consistent read.
func (c *Cache) GetData(ctx context.Context, id entities.Tid, dataID string) (entities.EntityData, error) {
	resp, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.table),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return entities.EntityData{}, fmt.Errorf("getting cache item %d: %w", id, err)
	}
	if len(resp.Item) == 0 {
		return entities.EntityData{}, entitycache.Miss(id, "not cached")
	}

	item := resp.Item
	if expired(item, c.clock.Now()) {
		return entities.EntityData{}, entitycache.Miss(id, "expired")
	}
	if stored := stringAttr(item, attrDataID); stored != dataID {
		return entities.EntityData{}, entitycache.Miss(id, "cached with data id "+stored)
	}
	blob, ok := item[attrData].(*types.AttributeValueMemberB)
	if !ok {
		return entities.EntityData{}, fmt.Errorf("cache item %d has no data attribute", id)
	}
	return c.codec.Decode(blob.Value)
}

// SetData writes the entry.
func (c *Cache) SetData(ctx context.Context, id entities.Tid, data entities.EntityData, dataID string, ttl time.Duration) error {
	blob, err := c.codec.Encode(data)
	if err != nil {
		return err
	}

	now := c.clock.Now()
	item := map[string]types.AttributeValue{
		attrTID:    numberAttr(int64(id)),
		attrDataID: &types.AttributeValueMemberS{Value: dataID},
		attrData:   &types.AttributeValueMemberB{Value: blob},
		attrSetAt:  numberAttr(now.UnixMilli()),
	}
	if exp := entitycache.ExpiresAt(now, ttl); !exp.IsZero() {
		// Round the TTL attribute up so DynamoDB never drops an item early.
		item[attrExpiresAt] = numberAttr((exp.UnixMilli() + 999) / 1000)
		item[attrExpiresMS] = numberAttr(exp.UnixMilli())
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("putting cache item %d: %w", id, err)
	}
	return nil
}

// InvalidateData deletes the entry.
func (c *Cache) InvalidateData(ctx context.Context, id entities.Tid) error {
	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.table),
		Key:       key(id),
	})
	if err != nil {
		return fmt.Errorf("deleting cache item %d: %w", id, err)
	}
	return nil
}

// Clean deletes expired entries and, with a dataID, entries of other data
// ids. It scans the whole table.
func (c *Cache) Clean(ctx context.Context, dataID string) error {
	now := c.clock.Now()
	return c.deleteWhere(ctx, func(item map[string]types.AttributeValue) bool {
		return expired(item, now) || (dataID != "" && stringAttr(item, attrDataID) != dataID)
	})
}

// Clear deletes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	return c.deleteWhere(ctx, func(map[string]types.AttributeValue) bool { return true })
}

func (c *Cache) deleteWhere(ctx context.Context, match func(map[string]types.AttributeValue) bool) error {
	var pending []types.WriteRequest

	paginator := dynamodb.NewScanPaginator(c.client, &dynamodb.ScanInput{
		TableName:            aws.String(c.table),
		ProjectionExpression: aws.String("#tid, #did, #exp"),
		ExpressionAttributeNames: map[string]string{
			"#tid": attrTID,
			"#did": attrDataID,
			"#exp": attrExpiresMS,
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scanning cache table: %w", err)
		}
		for _, item := range page.Items {
			if !match(item) {
				continue
			}
			pending = append(pending, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{attrTID: item[attrTID]},
				},
			})
			if len(pending) == maxBatchWrite {
				if err := c.batchDelete(ctx, pending); err != nil {
					return err
				}
				pending = nil
			}
		}
	}
	if len(pending) > 0 {
		return c.batchDelete(ctx, pending)
	}
	return nil
}

func (c *Cache) batchDelete(ctx context.Context, reqs []types.WriteRequest) error {
	for attempt := 0; len(reqs) > 0; attempt++ {
		if attempt > maxUnprocessedRetries {
			return fmt.Errorf("deleting cache items: %d requests left unprocessed", len(reqs))
		}
		if attempt > 0 {
			if err := c.wait(ctx, unprocessedBackoff<<(attempt-1)); err != nil {
				return fmt.Errorf("deleting cache items: %w", err)
			}
		}
		resp, err := c.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{c.table: reqs},
		})
		if err != nil {
			return fmt.Errorf("deleting cache items: %w", err)
		}
		reqs = resp.UnprocessedItems[c.table]
		if len(reqs) > 0 {
			c.logger.Debug("retrying unprocessed cache deletes",
				zap.Int("count", len(reqs)),
				zap.Int("attempt", attempt+1))
		}
	}
	return nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func key(id entities.Tid) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attrTID: numberAttr(int64(id))}
}

func numberAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func expired(item map[string]types.AttributeValue, now time.Time) bool {
	v, ok := item[attrExpiresMS].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ms, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return false
	}
	return entitycache.Expired(time.UnixMilli(ms), now)
}
