// Package s3 stores blobs in Amazon S3 and S3-compatible services through
// aws-sdk-go-v2.
//
// # Usage
//
//	client, err := s3.NewClient(ctx, s3.ClientConfig{Region: "us-east-1"})
//	store := s3.NewStore(client, "my-bucket", "indexes/")
//
// Reads use ranged GetObject calls; writes stream through the multipart
// upload manager, so objects only appear once the upload completes.
package s3
