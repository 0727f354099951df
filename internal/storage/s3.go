package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	// ErrNoSuchBucket is returned when the configured bucket does not exist
	ErrNoSuchBucket = errors.New("bucket does not exist")
	// ErrNoSuchKey is returned when an object does not exist
	ErrNoSuchKey = errors.New("object does not exist")
)

// Config holds the S3-compatible endpoint settings
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// Object is a streamed object body
type Object struct {
	Body          io.ReadCloser
	ContentLength int64
	ContentType   string
}

// S3 wraps an S3-compatible bucket
type S3 struct {
	raw      *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	cfg      Config
}

// NewS3 creates a client bound to one bucket
func NewS3(ctx context.Context, c Config) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
	}
	if c.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.ForcePathStyle
	})

	return &S3{
		raw:      client,
		presign:  s3.NewPresignClient(client),
		uploader: manager.NewUploader(client),
		cfg:      c,
	}, nil
}

// Bucket returns the configured bucket name
func (s *S3) Bucket() string {
	return s.cfg.Bucket
}

// Health checks that the bucket is reachable
func (s *S3) Health(ctx context.Context) error {
	_, err := s.raw.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	return classify(err)
}

// Put writes an object
func (s *S3) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, classify(err))
	}
	return nil
}

// Get opens an object for reading. The caller closes Body.
func (s *S3) Get(ctx context.Context, key string) (*Object, error) {
	out, err := s.raw.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, classify(err))
	}
	return &Object{
		Body:          out.Body,
		ContentLength: aws.ToInt64(out.ContentLength),
		ContentType:   aws.ToString(out.ContentType),
	}, nil
}

// Delete removes an object
func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.raw.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, classify(err))
	}
	return nil
}

// PresignGet returns a time-limited URL to read an object
func (s *S3) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	out, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return out.URL, nil
}

// CreateBucket creates the configured bucket. An existing bucket is not an error.
func (s *S3) CreateBucket(ctx context.Context) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(s.cfg.Bucket)}
	if s.cfg.Region != "" && s.cfg.Region != "us-east-1" && s.cfg.Region != "auto" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.cfg.Region),
		}
	}

	_, err := s.raw.CreateBucket(ctx, in)
	if err == nil || isAlreadyExists(err) {
		return nil
	}
	return fmt.Errorf("failed to create bucket %s: %w", s.cfg.Bucket, err)
}

// classify maps S3 API errors onto the package sentinels, keeping the cause
func classify(err error) error {
	if err == nil {
		return nil
	}

	var noBucket *types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return errors.Join(ErrNoSuchBucket, err)
	}
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return errors.Join(ErrNoSuchKey, err)
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchBucket":
			return errors.Join(ErrNoSuchBucket, err)
		case "NoSuchKey", "NotFound":
			return errors.Join(ErrNoSuchKey, err)
		}
	}
	return err
}

func isAlreadyExists(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		code := ae.ErrorCode()
		return code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists"
	}
	return false
}
