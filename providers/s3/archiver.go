// Package s3 archives medvault audit entries to S3-compatible object storage.
//
// Each event becomes one immutable JSON object, keyed by date and a random
// UUID, so the archive is append-only and partitions naturally by day for
// compliance exports.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/caretrust/medvault"
)

// s3Client interface for the object writes the archiver performs (allows mocking)
type s3Client interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// Config configures an Archiver.
type Config struct {
	// Bucket receives the audit objects. Required.
	Bucket string

	// Prefix is prepended to every object key, e.g. "prod". Optional.
	Prefix string

	// Region selects the AWS region when loading the default configuration.
	Region string

	// AWSConfig, when set, is used as-is instead of loading the default
	// configuration.
	AWSConfig *aws.Config
}

// Archiver implements medvault.AuditLogger by writing each entry as a JSON
// object. Events land under "audit/{yyyy-mm-dd}/{uuid}.json" and violations
// under "violations/{yyyy-mm-dd}/{uuid}.json".
type Archiver struct {
	client s3Client
	bucket string
	prefix string
}

// NewArchiver creates an S3 audit archiver.
func NewArchiver(ctx context.Context, cfg Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: audit archive bucket is required", medvault.ErrInvalidConfiguration)
	}

	var awsConfig aws.Config
	var err error
	if cfg.AWSConfig != nil {
		awsConfig = *cfg.AWSConfig
	} else {
		opts := []func(*config.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Region))
		}
		awsConfig, err = config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
	}

	return &Archiver{
		client: awss3.NewFromConfig(awsConfig),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (a *Archiver) LogEvent(ctx context.Context, event medvault.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return a.put(ctx, "audit", event.Timestamp, event)
}

func (a *Archiver) LogSecurityViolation(ctx context.Context, violation medvault.SecurityViolation) error {
	if violation.Timestamp.IsZero() {
		violation.Timestamp = time.Now().UTC()
	}
	return a.put(ctx, "violations", violation.Timestamp, violation)
}

func (a *Archiver) put(ctx context.Context, category string, at time.Time, entry any) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding audit entry: %w", err)
	}

	key := fmt.Sprintf("%s/%s/%s.json", category, at.UTC().Format("2006-01-02"), uuid.NewString())
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}

	_, err = a.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archiving audit entry to s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}
