package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kirillkom/notarization-api/internal/core/domain"
	"github.com/kirillkom/notarization-api/internal/infrastructure/resilience"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
	UsePathStyle    bool
}

// Storage uploads files to an S3 bucket (or an S3 compatible endpoint).
type Storage struct {
	client    objectPutter
	bucket    string
	publicURL string
	executor  *resilience.Executor
}

func New(ctx context.Context, cfg Config, executor *resilience.Executor) (*Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	loaders := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loaders = append(loaders, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newWithClient(client, cfg, awsCfg.Region, executor), nil
}

func newWithClient(client objectPutter, cfg Config, region string, executor *resilience.Executor) *Storage {
	return &Storage{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: publicBaseURL(cfg, region),
		executor:  executor,
	}
}

func (s *Storage) Save(ctx context.Context, key, contentType string, data io.Reader, size int64) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if size >= 0 && int64(len(raw)) != size {
		return "", fmt.Errorf("read upload: got %d of %d bytes", len(raw), size)
	}

	call := func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(raw),
			ContentType:   aws.String(contentType),
			ContentLength: aws.Int64(int64(len(raw))),
		})
		if err != nil {
			return fmt.Errorf("s3 put object: %w", err)
		}
		return nil
	}

	if s.executor != nil {
		err = s.executor.Execute(ctx, "s3.put", call, classifyS3Error)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if resilience.IsCircuitOpen(err) || classifyS3Error(err).Retryable {
			return "", domain.WrapError(domain.ErrTemporary, "s3 put object", err)
		}
		return "", err
	}
	return s.publicURL + "/" + escapeKey(key), nil
}

var classifyS3Error = resilience.TransientClassifier(func(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		code := status.HTTPStatusCode()
		return code == 429 || code >= 500
	}
	return false
})

func publicBaseURL(cfg Config, region string) string {
	if cfg.PublicURL != "" {
		return strings.TrimRight(cfg.PublicURL, "/")
	}
	if cfg.Endpoint != "" {
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
