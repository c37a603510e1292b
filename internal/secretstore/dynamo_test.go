package secretstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo implements dynamoAPI over a plain map.
type fakeDynamo struct {
	items  map[string]map[string]ddbtypes.AttributeValue
	getErr error
	putErr error

	lastTable string
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]ddbtypes.AttributeValue)}
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.lastTable = *in.TableName
	key, ok := in.Key["name"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("missing name key")
	}
	item, ok := f.items[key.Value]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.lastTable = *in.TableName
	name, ok := in.Item["name"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("missing name attribute")
	}
	f.items[name.Value] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestDynamoStore(t *testing.T) {
	store := NewDynamoWithClient("hexprox-secrets", newFakeDynamo())
	testStoreContract(t, store)
}

func TestDynamoUsesConfiguredTable(t *testing.T) {
	fake := newFakeDynamo()
	store := NewDynamoWithClient("hexprox-secrets", fake)

	if err := store.Put(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if fake.lastTable != "hexprox-secrets" {
		t.Errorf("PutItem table = %q, want %q", fake.lastTable, "hexprox-secrets")
	}
}

func TestDynamoGetFailure(t *testing.T) {
	fake := newFakeDynamo()
	fake.getErr = errors.New("throttled")
	store := NewDynamoWithClient("hexprox-secrets", fake)

	_, err := store.Fetch(context.Background(), "k")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Fetch error = %v, want a transport error distinct from ErrNotFound", err)
	}
}

func TestNewDynamoRequiresTable(t *testing.T) {
	if _, err := NewDynamo(context.Background(), "", ""); err == nil {
		t.Fatal("NewDynamo with empty table should fail")
	}
}
