package fluentbit

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/edvin/ecsrollout/internal/platform"
)

// API is the S3 surface used to publish destinations files.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher renders and uploads destinations files.
type Publisher struct {
	api    API
	logger zerolog.Logger
}

// NewPublisher creates a new Publisher.
func NewPublisher(api API, logger zerolog.Logger) *Publisher {
	return &Publisher{
		api:    api,
		logger: logger.With().Str("component", "fluentbit").Logger(),
	}
}

// Publish renders the destinations file and uploads it, returning the S3 ARN the log
// router reads its configuration from.
func (p *Publisher) Publish(ctx context.Context, bucket string, s Settings) (string, error) {
	content, err := Render(s)
	if err != nil {
		return "", err
	}

	key := ObjectKey(s.ContainerName)
	p.logger.Info().Str("bucket", bucket).Str("key", key).Str("index", s.IndexName).Msg("uploading fluent-bit config")

	_, err = p.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return "", fmt.Errorf("upload fluent-bit config to s3://%s/%s: %w", bucket, key, err)
	}
	return platform.S3ObjectARN(bucket, key), nil
}
