package dynamocache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goforj/nscache/cachecore"
	"github.com/goforj/nscache/cachetest"
)

type dynStub struct {
	items           map[string]map[string]types.AttributeValue
	exists          bool
	putErr          error
	scanErr         error
	getErr          error
	batchWriteSizes []int
	describeErrs    []error
	createErrs      []error
	describeHits    int
	createHits      int
	scanPageSize    int
}

func newDynStub() *dynStub {
	return &dynStub{items: map[string]map[string]types.AttributeValue{}, exists: true}
}

func (d *dynStub) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if d.getErr != nil {
		return nil, d.getErr
	}
	key := in.Key["k"].(*types.AttributeValueMemberS).Value
	item, ok := d.items[key]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (d *dynStub) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if d.putErr != nil {
		return nil, d.putErr
	}
	key := in.Item["k"].(*types.AttributeValueMemberS).Value
	d.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (d *dynStub) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	key := in.Key["k"].(*types.AttributeValueMemberS).Value
	delete(d.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (d *dynStub) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	for _, writes := range in.RequestItems {
		d.batchWriteSizes = append(d.batchWriteSizes, len(writes))
		for _, wr := range writes {
			if dr := wr.DeleteRequest; dr != nil {
				key := dr.Key["k"].(*types.AttributeValueMemberS).Value
				delete(d.items, key)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

// Scan honours the begins_with filter and pages by scanPageSize when set.
func (d *dynStub) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if d.scanErr != nil {
		return nil, d.scanErr
	}
	prefix := ""
	if p, ok := in.ExpressionAttributeValues[":p"].(*types.AttributeValueMemberS); ok {
		prefix = p.Value
	}
	var keys []string
	for k := range d.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if start, ok := in.ExclusiveStartKey["k"].(*types.AttributeValueMemberS); ok {
		idx := sort.SearchStrings(keys, start.Value)
		if idx < len(keys) && keys[idx] == start.Value {
			idx++
		}
		keys = keys[idx:]
	}
	out := &dynamodb.ScanOutput{}
	if d.scanPageSize > 0 && len(keys) > d.scanPageSize {
		keys = keys[:d.scanPageSize]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: keys[len(keys)-1]}}
	}
	for _, k := range keys {
		out.Items = append(out.Items, map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: k}})
	}
	return out, nil
}

func (d *dynStub) CreateTable(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	d.createHits++
	if len(d.createErrs) > 0 {
		err := d.createErrs[0]
		d.createErrs = d.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func (d *dynStub) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	d.describeHits++
	if len(d.describeErrs) > 0 {
		err := d.describeErrs[0]
		d.describeErrs = d.describeErrs[1:]
		if err != nil {
			return nil, err
		}
		return &dynamodb.DescribeTableOutput{}, nil
	}
	if d.exists {
		return &dynamodb.DescribeTableOutput{}, nil
	}
	return nil, &types.ResourceNotFoundException{}
}

func newTestStore(t *testing.T, stub *dynStub, cfg Config) *dynamoStore {
	t.Helper()
	cfg.Client = stub
	store, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store.(*dynamoStore)
}

func TestDynamoStoreContract(t *testing.T) {
	store := newTestStore(t, newDynStub(), Config{})
	cachetest.RunBackendContract(t, store, cachetest.Options{CaseName: t.Name()})
}

func TestNewDynamoStoreDefaults(t *testing.T) {
	store := newTestStore(t, newDynStub(), Config{})
	if store.table != "beaker" || store.prefix != "beaker" {
		t.Fatalf("unexpected defaults table=%q prefix=%q", store.table, store.prefix)
	}
	if store.defaultTTL != 0 {
		t.Fatalf("expected no default ttl, got %v", store.defaultTTL)
	}
	if store.Driver() != cachecore.DriverDynamo {
		t.Fatalf("unexpected driver %q", store.Driver())
	}
}

func TestDynamoSetWithoutTTLOmitsExpiry(t *testing.T) {
	stub := newDynStub()
	store := newTestStore(t, stub, Config{})
	if err := store.Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	item := stub.items["beaker:k"]
	if item == nil {
		t.Fatalf("expected prefixed item, have %v", stub.items)
	}
	if _, ok := item["ea"]; ok {
		t.Fatalf("expected no ea attribute for entries without ttl")
	}
}

func TestDynamoSetUsesDefaultTTL(t *testing.T) {
	stub := newDynStub()
	store := newTestStore(t, stub, Config{BaseConfig: cachecore.BaseConfig{DefaultTTL: time.Minute}})
	now := time.UnixMilli(1_700_000_000_000)
	store.now = func() time.Time { return now }

	if err := store.Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	ea, ok := stub.items["beaker:k"]["ea"].(*types.AttributeValueMemberN)
	if !ok {
		t.Fatalf("expected ea attribute")
	}
	want := fmt.Sprint(now.Add(time.Minute).UnixMilli())
	if ea.Value != want {
		t.Fatalf("expected ea=%s, got %s", want, ea.Value)
	}
}

func TestDynamoGetExpiredRemoves(t *testing.T) {
	stub := newDynStub()
	store := newTestStore(t, stub, Config{})
	now := time.UnixMilli(1_700_000_000_000)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, ok, err := store.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected expired miss, ok=%v err=%v", ok, err)
	}
	if _, exists := stub.items["beaker:k"]; exists {
		t.Fatalf("expected expired item removed")
	}
}

func TestDynamoGetNonBinaryValue(t *testing.T) {
	stub := newDynStub()
	store := newTestStore(t, stub, Config{})
	stub.items["beaker:k"] = map[string]types.AttributeValue{
		"k": &types.AttributeValueMemberS{Value: "beaker:k"},
		"v": &types.AttributeValueMemberS{Value: "oops"},
	}
	if _, _, err := store.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error for non-binary value")
	}
}

func TestDynamoClearBatchesAndKeepsOtherPrefixes(t *testing.T) {
	stub := newDynStub()
	stub.scanPageSize = 40
	store := newTestStore(t, stub, Config{})
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		if err := store.Set(ctx, fmt.Sprintf("k%02d", i), []byte("v"), 0); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}
	stub.items["other:k"] = map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: "other:k"}}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if len(stub.items) != 1 {
		t.Fatalf("expected only foreign item left, have %d items", len(stub.items))
	}
	for _, size := range stub.batchWriteSizes {
		if size > maxBatch {
			t.Fatalf("batch of %d exceeds limit", size)
		}
	}
	if len(stub.batchWriteSizes) != 3 {
		t.Fatalf("expected 3 batches (25+15, 20), got %v", stub.batchWriteSizes)
	}
}

func TestDynamoKeysStripsPrefix(t *testing.T) {
	stub := newDynStub()
	store := newTestStore(t, stub, Config{BaseConfig: cachecore.BaseConfig{Prefix: "app"}})
	ctx := context.Background()
	for _, k := range []string{"b", "a"} {
		if err := store.Set(ctx, k, []byte("v"), 0); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}
	stub.items["beaker:x"] = map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: "beaker:x"}}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	sort.Strings(keys)
	if strings.Join(keys, ",") != "a,b" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestDynamoErrorsPropagate(t *testing.T) {
	stub := newDynStub()
	store := newTestStore(t, stub, Config{})
	ctx := context.Background()
	boom := errors.New("boom")

	stub.putErr = boom
	if err := store.Set(ctx, "k", []byte("v"), 0); !errors.Is(err, boom) {
		t.Fatalf("expected put error, got %v", err)
	}
	stub.getErr = boom
	if _, err := store.Contains(ctx, "k"); !errors.Is(err, boom) {
		t.Fatalf("expected get error, got %v", err)
	}
	stub.scanErr = boom
	if err := store.Clear(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected scan error from clear, got %v", err)
	}
	if _, err := store.Keys(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected scan error from keys, got %v", err)
	}
}

func TestEnsureDynamoTableRetriesStartupErrors(t *testing.T) {
	stub := newDynStub()
	stub.describeErrs = []error{
		errors.New("request send failed: connection reset by peer"),
		&types.ResourceNotFoundException{},
		nil,
	}

	if err := ensureDynamoTable(context.Background(), stub, "tbl"); err != nil {
		t.Fatalf("expected retry path to succeed, got err=%v", err)
	}
	if stub.createHits != 1 {
		t.Fatalf("expected create table to be called once, got %d", stub.createHits)
	}
	if stub.describeHits < 2 {
		t.Fatalf("expected describe to be retried, got %d calls", stub.describeHits)
	}
}

func TestEnsureDynamoTableCreatesWhenMissing(t *testing.T) {
	stub := newDynStub()
	stub.exists = false
	if err := ensureDynamoTable(context.Background(), stub, "tbl"); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if stub.createHits != 1 {
		t.Fatalf("expected create, got %d", stub.createHits)
	}
}

func TestEnsureDynamoTableTreatsInUseAsReady(t *testing.T) {
	stub := newDynStub()
	stub.exists = false
	stub.createErrs = []error{&types.ResourceInUseException{}}
	if err := ensureDynamoTable(context.Background(), stub, "tbl"); err != nil {
		t.Fatalf("expected in-use to be treated as ready, got %v", err)
	}
}

func TestEnsureDynamoTableFailsFastOnPermanentError(t *testing.T) {
	stub := newDynStub()
	stub.describeErrs = []error{errors.New("access denied")}
	err := ensureDynamoTable(context.Background(), stub, "tbl")
	if err == nil || stub.describeHits != 1 {
		t.Fatalf("expected immediate failure, err=%v hits=%d", err, stub.describeHits)
	}
}

func TestNewDynamoClientBuilds(t *testing.T) {
	client, err := newDynamoClient(context.Background(), Config{Region: "us-east-1", Endpoint: "http://localhost:8000"})
	if err != nil || client == nil {
		t.Fatalf("expected client, err=%v", err)
	}
}
