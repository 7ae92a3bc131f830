package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options configures an S3-compatible bucket (AWS or MinIO).
type S3Options struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Prefix       string
	PresignTTL   time.Duration
}

// S3Store keeps attachments in a bucket and hands out presigned GET URLs.
type S3Store struct {
	objects objectAPI
	presign presignAPI
	bucket  string
	prefix  string
	ttl     time.Duration
}

func NewS3Store(ctx context.Context, o S3Options) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(o.Region)}
	if o.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
		}
		so.UsePathStyle = o.UsePathStyle
	})
	return newS3Store(client, s3.NewPresignClient(client), o), nil
}

func newS3Store(objects objectAPI, presign presignAPI, o S3Options) *S3Store {
	ttl := o.PresignTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &S3Store{objects: objects, presign: presign, bucket: o.Bucket, prefix: o.Prefix, ttl: ttl}
}

func (s *S3Store) key(token string) string {
	return s.prefix + token
}

func (s *S3Store) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	token := NewToken(filename)
	_, err := s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(token)),
		Body:   r,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", token, err)
	}
	return token, nil
}

func (s *S3Store) URL(ctx context.Context, token string) (string, error) {
	if !validToken(token) {
		return "", ErrNotFound
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(token)),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", token, err)
	}
	return req.URL, nil
}

func (s *S3Store) Delete(ctx context.Context, token string) error {
	if !validToken(token) {
		return ErrNotFound
	}
	_, err := s.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(token)),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", token, err)
	}
	return nil
}
