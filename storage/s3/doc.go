// Package s3 provides an Amazon S3 implementation of storage.Store and a
// DynamoDB-backed commit log for run manifests.
//
// Reads use ranged GetObject requests, writes stream through the multipart
// upload manager.
//
// Usage:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(s3sdk.NewFromConfig(cfg), "my-bucket", "runs/2024")
//	commits := s3.NewCommitStore(dynamodb.NewFromConfig(cfg), "d4-commits", "s3://my-bucket/runs/2024")
package s3
