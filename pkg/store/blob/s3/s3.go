// Package s3 implements S3-based blob storage.
//
// Each payload is a single object at <prefix><owner>/<id>. Payloads are
// bounded, so every write is a single PutObject and there is no multipart
// path.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/store/keys"
)

// S3BlobStoreConfig configures the S3 blob store.
type S3BlobStoreConfig struct {
	// Client is a pre-built S3 client. When nil, one is built from the
	// connection fields below.
	Client *s3.Client `mapstructure:"-"`

	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// S3BlobStore implements blob.BlobStore on an S3 bucket.
//
// Thread Safety:
// The AWS client is safe for concurrent use and PutObject replaces objects
// atomically, so the store needs no locking of its own.
type S3BlobStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// NewS3BlobStore builds the client if needed and verifies bucket access.
//
// Parameters:
//   - ctx: Context for cancellation and the bucket check
//   - config: Bucket, prefix and connection settings
//
// Returns:
//   - *S3BlobStore: Store ready for use
//   - error: Invalid configuration, AWS config failure or inaccessible bucket
func NewS3BlobStore(ctx context.Context, config S3BlobStoreConfig) (*S3BlobStore, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("S3 blob store: bucket is required")
	}

	// ========================================================================
	// Step 1: Build the client
	// ========================================================================

	client := config.Client
	if client == nil {
		var err error
		client, err = NewClient(ctx, config)
		if err != nil {
			return nil, err
		}
	}

	prefix := config.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	// ========================================================================
	// Step 2: Verify bucket access
	// ========================================================================

	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(config.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %s: %w", config.Bucket, err)
	}

	return &S3BlobStore{
		client:    client,
		bucket:    config.Bucket,
		keyPrefix: prefix,
	}, nil
}

// NewClient creates an S3 client from connection settings.
//
// A custom endpoint (MinIO, Localstack) switches to path-style addressing.
// Static credentials are used when both halves are set; otherwise the default
// AWS credential chain applies.
func NewClient(ctx context.Context, config S3BlobStoreConfig) (*s3.Client, error) {
	if config.Region == "" {
		return nil, fmt.Errorf("S3 blob store: region is required")
	}

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(config.Region),
	}

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// objectKey returns the object key for a validated key.
func (s *S3BlobStore) objectKey(ownerID, id string) string {
	return s.keyPrefix + ownerID + "/" + id
}

// isNotFound reports whether err is S3's answer for a missing object.
// GetObject returns NoSuchKey; HeadObject has no body and returns NotFound.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// WriteBlob uploads data as a single object.
func (s *S3BlobStore) WriteBlob(ctx context.Context, ownerID, id string, data []byte) error {
	const op = "s3.WriteBlob"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errs.Storage(op, err)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(ownerID, id)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return errs.Storage(op, fmt.Errorf("failed to write blob to S3: %w", err))
	}
	return nil
}

// ReadBlob downloads the object.
func (s *S3BlobStore) ReadBlob(ctx context.Context, ownerID, id string) ([]byte, bool, error) {
	const op = "s3.ReadBlob"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, errs.Storage(op, err)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ownerID, id)),
	})
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Storage(op, fmt.Errorf("failed to get object: %w", err))
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, errs.Storage(op, fmt.Errorf("failed to read object body: %w", err))
	}
	return data, true, nil
}

// DeleteBlob removes the object.
//
// S3 deletes are idempotent and do not say whether anything was removed, so
// existence is checked with HeadObject first. A concurrent delete between the
// two calls may make both callers report true.
func (s *S3BlobStore) DeleteBlob(ctx context.Context, ownerID, id string) (bool, error) {
	const op = "s3.DeleteBlob"

	if err := keys.Validate(op, ownerID, id); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, errs.Storage(op, err)
	}

	key := s.objectKey(ownerID, id)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, errs.Storage(op, fmt.Errorf("failed to head object: %w", err))
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, errs.Storage(op, fmt.Errorf("failed to delete object from S3: %w", err))
	}
	return true, nil
}

// ListKeys implements blob.Lister by paging through the prefix.
func (s *S3BlobStore) ListKeys(ctx context.Context) ([]keys.Key, error) {
	const op = "s3.ListKeys"

	var all []keys.Key
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errs.Storage(op, fmt.Errorf("failed to list objects: %w", err))
		}
		for _, obj := range page.Contents {
			rest := strings.TrimPrefix(aws.ToString(obj.Key), s.keyPrefix)
			ownerID, id, ok := strings.Cut(rest, "/")
			if !ok || keys.Validate(op, ownerID, id) != nil {
				// Not written by this store
				continue
			}
			all = append(all, keys.Key{OwnerID: ownerID, ID: id})
		}
	}
	return all, nil
}

// Close is a no-op; the AWS client holds no resources needing release.
func (s *S3BlobStore) Close() error {
	return nil
}
