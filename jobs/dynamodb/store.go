// Package dynamodb implements jobs.Store on a DynamoDB table.
//
// The table is keyed by the job id alone:
//
//	aws dynamodb create-table \
//	  --table-name vecforge-jobs \
//	  --attribute-definitions AttributeName=id,AttributeType=S \
//	  --key-schema AttributeName=id,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/jobs"
)

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	dynamodb.ScanAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

var _ jobs.Store = (*Store)(nil)

// Store keeps one item per job.
type Store struct {
	client Client
	table  string
}

// NewStore creates a store over table.
func NewStore(client Client, table string) *Store {
	return &Store{client: client, table: table}
}

func (s *Store) Create(ctx context.Context, j *jobs.Job) error {
	const op = "jobs.dynamodb.create"
	return s.put(ctx, op, j, "attribute_not_exists(id)", func() error {
		return errs.InvalidState(op, "job %s already exists", j.ID)
	})
}

func (s *Store) Update(ctx context.Context, j *jobs.Job) error {
	const op = "jobs.dynamodb.update"
	return s.put(ctx, op, j, "attribute_exists(id)", func() error {
		return jobs.NotFound(op, j.ID)
	})
}

// put writes j under condition and maps a failed condition through onConflict.
func (s *Store) put(ctx context.Context, op string, j *jobs.Job, condition string, onConflict func() error) error {
	item, err := marshal(j)
	if err != nil {
		return errs.IO(op, j.ID, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String(condition),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return onConflict()
		}
		return errs.IO(op, j.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*jobs.Job, error) {
	const op = "jobs.dynamodb.get"
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errs.IO(op, id, err)
	}
	if len(out.Item) == 0 {
		return nil, jobs.NotFound(op, id)
	}
	j, err := unmarshal(out.Item)
	if err != nil {
		return nil, errs.IO(op, id, err)
	}
	return j, nil
}

func (s *Store) List(ctx context.Context) ([]*jobs.Job, error) {
	const op = "jobs.dynamodb.list"
	out := []*jobs.Job{}
	p := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errs.IO(op, s.table, err)
		}
		for _, item := range page.Items {
			j, err := unmarshal(item)
			if err != nil {
				return nil, errs.IO(op, s.table, err)
			}
			out = append(out, j)
		}
	}
	jobs.SortJobs(out)
	return out, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *Store) Close() error { return nil }

func marshal(j *jobs.Job) (map[string]types.AttributeValue, error) {
	req, err := json.Marshal(j.Request)
	if err != nil {
		return nil, err
	}
	item := map[string]types.AttributeValue{
		"id":         &types.AttributeValueMemberS{Value: j.ID},
		"status":     &types.AttributeValueMemberS{Value: string(j.Status)},
		"request":    &types.AttributeValueMemberS{Value: string(req)},
		"created_at": &types.AttributeValueMemberS{Value: j.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"updated_at": &types.AttributeValueMemberS{Value: j.UpdatedAt.UTC().Format(time.RFC3339Nano)},
	}
	if j.Error != "" {
		item["error"] = &types.AttributeValueMemberS{Value: j.Error}
	}
	if j.Result != nil {
		res, err := json.Marshal(j.Result)
		if err != nil {
			return nil, err
		}
		item["result"] = &types.AttributeValueMemberS{Value: string(res)}
	}
	return item, nil
}

func unmarshal(item map[string]types.AttributeValue) (*jobs.Job, error) {
	str := func(name string, required bool) (string, error) {
		v, ok := item[name]
		if !ok {
			if required {
				return "", fmt.Errorf("missing attribute %q", name)
			}
			return "", nil
		}
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("attribute %q is not a string", name)
		}
		return s.Value, nil
	}

	var (
		j   jobs.Job
		err error
		raw = make(map[string]string, 7)
	)
	for _, name := range []string{"id", "status", "request", "created_at", "updated_at"} {
		if raw[name], err = str(name, true); err != nil {
			return nil, err
		}
	}
	for _, name := range []string{"error", "result"} {
		if raw[name], err = str(name, false); err != nil {
			return nil, err
		}
	}

	j.ID = raw["id"]
	j.Status = jobs.Status(raw["status"])
	j.Error = raw["error"]
	if err := json.Unmarshal([]byte(raw["request"]), &j.Request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if raw["result"] != "" {
		j.Result = &jobs.Result{}
		if err := json.Unmarshal([]byte(raw["result"]), j.Result); err != nil {
			return nil, fmt.Errorf("decoding result: %w", err)
		}
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339Nano, raw["created_at"]); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339Nano, raw["updated_at"]); err != nil {
		return nil, err
	}
	return &j, nil
}
