// Package s3 keeps run artifacts in an S3 bucket, optionally under a key
// prefix.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"pca-viewer/internal/shared/storage/object"
)

// Artifacts are written once per run and never rewritten in place.
const artifactCacheControl = "private, max-age=86400"

// ErrBucketRequired is returned by New without a bucket.
var ErrBucketRequired = errors.New("s3 bucket is required")

type api interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store is an object.ObjectStore over one bucket.
type Store struct {
	client api
	bucket string
	prefix string
	kmsKey string
}

// New loads the default AWS credential chain and returns a Store for bucket.
// An empty kmsKeyID falls back to SSE-S3.
func New(ctx context.Context, region, bucket, prefix, kmsKeyID string) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, ErrBucketRequired
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newWithClient(s3.NewFromConfig(cfg), bucket, prefix, kmsKeyID), nil
}

func newWithClient(client api, bucket, prefix, kmsKeyID string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
		kmsKey: strings.TrimSpace(kmsKeyID),
	}
}

// Put uploads r under key and returns the number of bytes sent.
func (s *Store) Put(ctx context.Context, key string, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	body := &countingReader{r: r}
	in := &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(s.objectKey(key)),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(artifactCacheControl),
	}
	s.encrypt(in)

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return 0, s.wrap("put", key, err)
	}
	return body.n, nil
}

// Open streams the object stored under key. Callers close the body.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var missing *s3types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, object.ErrNotFound
		}
		return nil, s.wrap("get", key, err)
	}
	return out.Body, nil
}

func (s *Store) objectKey(key string) string {
	return applyPrefix(s.prefix, key)
}

func (s *Store) encrypt(in *s3.PutObjectInput) {
	if s.kmsKey == "" {
		in.ServerSideEncryption = s3types.ServerSideEncryptionAes256
		return
	}
	in.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
	in.SSEKMSKeyId = aws.String(s.kmsKey)
}

func (s *Store) wrap(op, key string, err error) error {
	return fmt.Errorf("s3 %s s3://%s/%s: %w", op, s.bucket, s.objectKey(key), err)
}

// applyPrefix joins prefix and key with exactly one slash between them.
func applyPrefix(prefix, key string) string {
	parts := make([]string, 0, 2)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if k := strings.TrimLeft(key, "/"); k != "" {
		parts = append(parts, k)
	}
	return strings.Join(parts, "/")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ object.ObjectStore = (*Store)(nil)
