package dynamodb

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/jobs"
	"github.com/hupe1980/vecforge/jobs/jobstest"
)

// mockDDBClient is an in-memory DynamoDB table keyed by "id". Scans return
// pageSize items per page.
type mockDDBClient struct {
	mu       sync.RWMutex
	items    map[string]map[string]types.AttributeValue
	pageSize int
	fail     error
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue), pageSize: 2}
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	id := params.Item["id"].(*types.AttributeValueMemberS).Value
	_, exists := m.items[id]
	switch aws.ToString(params.ConditionExpression) {
	case "attribute_not_exists(id)":
		if exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	case "attribute_exists(id)":
		if !exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	m.items[id] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail != nil {
		return nil, m.fail
	}
	id := params.Key["id"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: m.items[id]}, nil
}

func (m *mockDDBClient) Scan(_ context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail != nil {
		return nil, m.fail
	}
	ids := make([]string, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if params.ExclusiveStartKey != nil {
		start, _ = strconv.Atoi(params.ExclusiveStartKey["offset"].(*types.AttributeValueMemberN).Value)
	}
	end := min(start+m.pageSize, len(ids))
	out := &dynamodb.ScanOutput{}
	for _, id := range ids[start:end] {
		out.Items = append(out.Items, m.items[id])
	}
	if end < len(ids) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"offset": &types.AttributeValueMemberN{Value: strconv.Itoa(end)},
		}
	}
	return out, nil
}

func TestStore(t *testing.T) {
	jobstest.Run(t, func(t *testing.T) jobs.Store {
		return NewStore(newMockDDBClient(), "vecforge-jobs")
	})
}

func TestListPaginates(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	s := NewStore(client, "vecforge-jobs")
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Create(ctx, jobs.New(jobstest.Request())))
	}
	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 5)
}

func TestClientErrorsAreIO(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	client.fail = errors.New("throttled")
	s := NewStore(client, "vecforge-jobs")

	err := s.Create(ctx, jobs.New(jobstest.Request()))
	assert.ErrorIs(t, err, errs.ErrIO)
	_, err = s.Get(ctx, "x")
	assert.ErrorIs(t, err, errs.ErrIO)
	_, err = s.List(ctx)
	assert.ErrorIs(t, err, errs.ErrIO)
}

func TestUnmarshalRejectsMalformedItems(t *testing.T) {
	item, err := marshal(jobs.New(jobstest.Request()))
	require.NoError(t, err)

	missing := make(map[string]types.AttributeValue)
	for k, v := range item {
		missing[k] = v
	}
	delete(missing, "status")
	_, err = unmarshal(missing)
	assert.ErrorContains(t, err, "status")

	item["request"] = &types.AttributeValueMemberN{Value: "1"}
	_, err = unmarshal(item)
	assert.ErrorContains(t, err, "not a string")
}
