package d4

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/d4/storage"
	miniostore "github.com/hupe1980/d4/storage/minio"
	s3store "github.com/hupe1980/d4/storage/s3"
)

// StoreOptions holds the credentials OpenStore cannot take from the
// environment.
type StoreOptions struct {
	MinioAccessKey string
	MinioSecretKey string
	MinioSecure    bool
}

// Location is a parsed store URI.
type Location struct {
	// Scheme is "file", "s3" or "minio".
	Scheme string
	// Endpoint is the MinIO host:port.
	Endpoint string
	Bucket   string
	Prefix   string
	// Path is the local directory.
	Path string
}

// ParseLocation parses a store URI:
//
//	./out, /data/out, file:///data/out   local directory
//	s3://bucket/prefix                   Amazon S3
//	minio://host:port/bucket/prefix      MinIO
func ParseLocation(uri string) (Location, error) {
	if uri == "" {
		return Location{}, fmt.Errorf("d4: empty store location")
	}
	if !strings.Contains(uri, "://") {
		return Location{Scheme: "file", Path: uri}, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("d4: invalid store location %q: %w", uri, err)
	}
	switch u.Scheme {
	case "file":
		return Location{Scheme: "file", Path: u.Path}, nil
	case "s3":
		if u.Host == "" {
			return Location{}, fmt.Errorf("d4: missing bucket in %q", uri)
		}
		return Location{Scheme: "s3", Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
	case "minio":
		bucket, prefix, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
		if u.Host == "" || bucket == "" {
			return Location{}, fmt.Errorf("d4: minio location needs host and bucket: %q", uri)
		}
		return Location{Scheme: "minio", Endpoint: u.Host, Bucket: bucket, Prefix: prefix}, nil
	default:
		return Location{}, fmt.Errorf("d4: unsupported store scheme %q", u.Scheme)
	}
}

// OpenStore opens the store at uri. S3 credentials and region come from the
// default AWS configuration chain.
func OpenStore(ctx context.Context, uri string, opts StoreOptions) (storage.Store, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}
	switch loc.Scheme {
	case "s3":
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("d4: load aws config: %w", err)
		}
		return s3store.NewStore(s3.NewFromConfig(cfg), loc.Bucket, loc.Prefix), nil
	case "minio":
		client, err := miniostore.Connect(loc.Endpoint, opts.MinioAccessKey, opts.MinioSecretKey, opts.MinioSecure)
		if err != nil {
			return nil, err
		}
		return miniostore.NewStore(client, loc.Bucket, loc.Prefix), nil
	default:
		return storage.NewLocalStore(loc.Path), nil
	}
}

// OpenCommitter returns the committer for the output at uri. With a table
// name, commits go to DynamoDB; otherwise the CURRENT blob of out is used.
func OpenCommitter(ctx context.Context, uri, table string, out storage.Store) (storage.Committer, error) {
	if table == "" {
		return storage.NewBlobCommitter(out), nil
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("d4: load aws config: %w", err)
	}
	return s3store.NewCommitStore(dynamodb.NewFromConfig(cfg), table, uri), nil
}
