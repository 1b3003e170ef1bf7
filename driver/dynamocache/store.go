package dynamocache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goforj/nscache/cachecore"
	"github.com/goforj/nscache/retry"
)

const (
	defaultPrefix = "beaker"
	defaultRegion = "us-east-1"
	defaultTable  = "beaker"
	maxBatch      = 25
)

// Config configures a DynamoDB-backed store.
type Config struct {
	cachecore.BaseConfig
	Client DynamoAPI
	// Endpoint points the client at DynamoDB Local or another compatible
	// server. Static dummy credentials are used when it is set.
	Endpoint string
	Region   string
	Table    string
}

// DynamoAPI captures the subset of DynamoDB client methods used by the store.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type dynamoStore struct {
	client     DynamoAPI
	table      string
	prefix     string
	defaultTTL time.Duration
	now        func() time.Time
}

// tablePolicy covers DynamoDB Local, which refuses connections for a
// moment after its container reports ready.
var tablePolicy = retry.Policy{
	Tries:     20,
	Retryable: isDynamoStartupRetryable,
	Delay:     150 * time.Millisecond,
}

// New builds a DynamoDB-backed cachecore.Backend. Items are
// {k: S, v: B, ea: N}; ea holds the expiry in unix milliseconds and is
// absent for entries without a ttl.
//
// Defaults:
// - Region: "us-east-1" when empty
// - Table: "beaker" when empty
// - Prefix: "beaker" when empty
// - Client: auto-created when nil (uses Region and optional Endpoint)
func New(ctx context.Context, cfg Config) (cachecore.Backend, error) {
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Client == nil {
		client, err := newDynamoClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cfg.Client = client
	}
	if err := ensureDynamoTable(ctx, cfg.Client, cfg.Table); err != nil {
		return nil, err
	}
	return &dynamoStore{
		client:     cfg.Client,
		table:      cfg.Table,
		prefix:     cfg.Prefix,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
	}, nil
}

func newDynamoClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: cfg.Endpoint, HostnameImmutable: true}, nil
		})
		awsCfg.EndpointResolverWithOptions = resolver
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

func (s *dynamoStore) Driver() cachecore.Driver { return cachecore.DriverDynamo }

func (s *dynamoStore) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *dynamoStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	full := s.cacheKey(key)
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyAttr(full),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil || out.Item == nil {
		return nil, false, err
	}
	value, exp, err := decodeItem(out.Item)
	if err != nil {
		return nil, false, fmt.Errorf("dynamodb item %q: %w", full, err)
	}
	if exp > 0 && s.now().UnixMilli() > exp {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return value, true, nil
}

func (s *dynamoStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	var exp int64
	if ttl > 0 {
		exp = s.now().Add(ttl).UnixMilli()
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      encodeItem(s.cacheKey(key), value, exp),
	})
	return err
}

func (s *dynamoStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       keyAttr(s.cacheKey(key)),
	})
	return err
}

// Clear removes every item under the prefix, maxBatch deletes per request.
func (s *dynamoStore) Clear(ctx context.Context) error {
	return s.eachPage(ctx, func(page []string) error {
		for len(page) > 0 {
			n := min(len(page), maxBatch)
			writes := make([]types.WriteRequest, n)
			for i, k := range page[:n] {
				writes[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: keyAttr(k)}}
			}
			_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{s.table: writes},
			})
			if err != nil {
				return err
			}
			page = page[n:]
		}
		return nil
	})
}

func (s *dynamoStore) Keys(ctx context.Context) ([]string, error) {
	var out []string
	err := s.eachPage(ctx, func(page []string) error {
		for _, k := range page {
			out = append(out, k[len(s.prefix)+1:])
		}
		return nil
	})
	return out, err
}

// eachPage walks the prefix with a projected scan and passes the full keys
// of every non-empty page to fn.
func (s *dynamoStore) eachPage(ctx context.Context, fn func([]string) error) error {
	pages := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:            aws.String(s.table),
		ProjectionExpression: aws.String("k"),
		FilterExpression:     aws.String("begins_with(k, :p)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: s.prefix + ":"},
		},
	})
	for pages.HasMorePages() {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(out.Items))
		for _, item := range out.Items {
			if k, ok := item["k"].(*types.AttributeValueMemberS); ok {
				keys = append(keys, k.Value)
			}
		}
		if len(keys) == 0 {
			continue
		}
		if err := fn(keys); err != nil {
			return err
		}
	}
	return nil
}

func (s *dynamoStore) cacheKey(key string) string {
	return s.prefix + ":" + key
}

func keyAttr(full string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: full}}
}

// encodeItem builds {k: S, v: B, ea: N}; ea is left out when exp is 0.
func encodeItem(full string, value []byte, exp int64) map[string]types.AttributeValue {
	item := keyAttr(full)
	item["v"] = &types.AttributeValueMemberB{Value: bytes.Clone(value)}
	if exp > 0 {
		item["ea"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(exp, 10)}
	}
	return item
}

// decodeItem returns the value and expiry of item. A missing or unparsable
// ea is treated as no expiry.
func decodeItem(item map[string]types.AttributeValue) ([]byte, int64, error) {
	v, ok := item["v"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, 0, errors.New("missing binary value")
	}
	var exp int64
	if n, ok := item["ea"].(*types.AttributeValueMemberN); ok {
		exp, _ = strconv.ParseInt(n.Value, 10, 64)
	}
	return bytes.Clone(v.Value), exp, nil
}

// ensureDynamoTable creates the table with k as its hash key unless it
// already exists. A concurrent creator winning the race counts as success.
func ensureDynamoTable(ctx context.Context, client DynamoAPI, table string) error {
	err := retry.Do(ctx, "ensure table", tablePolicy, func(ctx context.Context) error {
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		var missing *types.ResourceNotFoundException
		if !errors.As(err, &missing) {
			return err
		}
		_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName:            aws.String(table),
			KeySchema:            []types.KeySchemaElement{{AttributeName: aws.String("k"), KeyType: types.KeyTypeHash}},
			AttributeDefinitions: []types.AttributeDefinition{{AttributeName: aws.String("k"), AttributeType: types.ScalarAttributeTypeS}},
			BillingMode:          types.BillingModePayPerRequest,
		})
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("ensure dynamo table %q: %w", table, err)
	}
	return nil
}

func isDynamoStartupRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, frag := range []string{"request send failed", "connection reset by peer", "connection refused", "timeout", "eof"} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
