// Package minio provides a storage.Store for MinIO and other S3-compatible
// services.
package minio
