// Package blobstore abstracts the object storage that holds raw datasets
// and serialized indexes.
//
// A Store addresses blobs by slash-separated name inside one bucket or root
// directory. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, memory-mapped reads, atomic writes
//   - MemoryStore: in-process map, for tests and the CLI
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// A Buckets function maps a bucket name to its Store; the build service uses
// it to resolve the bucket named in each job request.
package blobstore
