package main

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/hupe1980/vecforge/blobstore"
	"github.com/hupe1980/vecforge/blobstore/minio"
	"github.com/hupe1980/vecforge/blobstore/s3"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/internal/config"
	"github.com/hupe1980/vecforge/jobs"
	"github.com/hupe1980/vecforge/jobs/dynamodb"
	"github.com/hupe1980/vecforge/jobs/sqlite"
)

// openBuckets resolves bucket names against the configured object store.
// The local backend maps each bucket to a directory under Root.
func openBuckets(ctx context.Context, cfg config.StorageConfig) (blobstore.Buckets, error) {
	switch cfg.Backend {
	case "local":
		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			return nil, errs.IO("cli.storage", cfg.Root, err)
		}
		return blobstore.LocalBuckets(cfg.Root), nil
	case "s3":
		client, err := s3.NewClient(ctx, s3.ClientConfig{
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			PathStyle: cfg.PathStyle,
		})
		if err != nil {
			return nil, errs.IO("cli.storage", cfg.Endpoint, err)
		}
		return s3.Buckets(client, cfg.Prefix), nil
	case "minio":
		client, err := minio.NewClient(minio.Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, errs.IO("cli.storage", cfg.Endpoint, err)
		}
		return minio.Buckets(client, cfg.Prefix), nil
	default:
		return nil, errs.Configuration("cli.storage", "storage.backend", "unknown storage backend %q", cfg.Backend)
	}
}

// openJobStore opens the configured job store. DynamoDB shares the region
// and endpoint of the storage section.
func openJobStore(ctx context.Context, cfg config.JobsConfig, storage config.StorageConfig) (jobs.Store, error) {
	switch cfg.Backend {
	case "memory":
		return jobs.NewMemoryStore(), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath)
	case "dynamodb":
		var loadOpts []func(*awsconfig.LoadOptions) error
		if storage.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(storage.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, errs.IO("cli.jobs", cfg.DynamoDBTable, err)
		}
		client := awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
			if storage.Backend == "s3" && storage.Endpoint != "" {
				o.BaseEndpoint = aws.String(storage.Endpoint)
			}
		})
		return dynamodb.NewStore(client, cfg.DynamoDBTable), nil
	default:
		return nil, errs.Configuration("cli.jobs", "jobs.backend", "unknown job store %q", cfg.Backend)
	}
}
