package s3infra

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/facevote-api/internal/config"
	"github.com/facevote-api/internal/domain"
	"github.com/facevote-api/internal/infrastructure/awsconf"
)

// Store wraps the S3 operations the face reference store needs.
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	now       func() time.Time
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := awsconf.Load(ctx, cfg, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		}
	}), nil
}

// NewStore creates a Store with the given S3 client and bucket name.
func NewStore(client *s3.Client, bucket string) *Store {
	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		now:       time.Now,
	}
}

// Put writes data under key, replacing any existing object.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

// SignURL presigns a GET for key valid for ttl. ExpiresAt is measured from
// before the signing call so it never overstates the grant.
func (s *Store) SignURL(ctx context.Context, key string, ttl time.Duration) (domain.SignedReference, error) {
	signedAt := s.now()
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return domain.SignedReference{}, fmt.Errorf("presign get object: %w", err)
	}
	return domain.SignedReference{URL: req.URL, ExpiresAt: signedAt.Add(ttl)}, nil
}
