package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrEmptyBody is returned when a body reference resolves to nothing.
var ErrEmptyBody = errors.New("campaign body is empty")

// maxBodyBytes caps a stored body.
const maxBodyBytes = 5 << 20

// InlineBodies treats the body reference as the HTML itself.
type InlineBodies struct{}

// Body returns ref unchanged.
func (InlineBodies) Body(_ context.Context, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", ErrEmptyBody
	}
	return ref, nil
}

// s3API is the slice of the S3 client the body store uses.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3BodyStore resolves body references as object keys under a prefix.
type S3BodyStore struct {
	client s3API
	bucket string
	prefix string
}

// NewS3BodyStore creates an S3 body store using the default AWS chain.
func NewS3BodyStore(ctx context.Context, bucket, region, prefix string) (*S3BodyStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return newS3BodyStore(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func newS3BodyStore(client s3API, bucket, prefix string) *S3BodyStore {
	return &S3BodyStore{client: client, bucket: bucket, prefix: prefix}
}

// Body fetches the object at prefix+ref.
func (s *S3BodyStore) Body(ctx context.Context, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", ErrEmptyBody
	}
	key := s.prefix + strings.TrimPrefix(ref, "/")
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", fmt.Errorf("body %s not found in s3://%s: %w", key, s.bucket, err)
		}
		return "", fmt.Errorf("getting S3 object %s: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(io.LimitReader(result.Body, maxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading S3 object body: %w", err)
	}
	if len(data) > maxBodyBytes {
		return "", fmt.Errorf("body %s exceeds %d bytes", key, maxBodyBytes)
	}
	if len(data) == 0 {
		return "", ErrEmptyBody
	}
	return string(data), nil
}
