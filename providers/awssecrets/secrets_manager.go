// Package awssecrets sources the medvault master key from AWS Secrets Manager.
package awssecrets

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/caretrust/medvault"
)

// DefaultSecretName is the Secrets Manager secret name used when no name is
// configured.
const DefaultSecretName = "medvault/master-key"

// secretsManagerClient interface for AWS Secrets Manager operations (allows mocking)
type secretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Config configures a Provider.
type Config struct {
	// Region selects the AWS region when loading the default configuration.
	Region string

	// AWSConfig, when set, is used as-is instead of loading the default
	// configuration.
	AWSConfig *aws.Config

	// SecretName is the Secrets Manager secret holding the base64-encoded
	// master key. Defaults to DefaultSecretName.
	SecretName string
}

// Provider implements medvault.MasterKeyProvider over AWS Secrets Manager.
// The secret string is expected to be the base64-encoded 32-byte master key.
type Provider struct {
	client     secretsManagerClient
	region     string
	secretName string
}

// NewProvider creates a Secrets Manager master key provider.
//
// Usage:
//
//	// Using default AWS configuration
//	provider, err := awssecrets.NewProvider(ctx, awssecrets.Config{})
//
//	// With specific region
//	provider, err := awssecrets.NewProvider(ctx, awssecrets.Config{Region: "us-east-1"})
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
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
			return nil, fmt.Errorf("%w: failed to load AWS config: %w",
				medvault.ErrMasterKeyUnavailable, err)
		}
	}

	secretName := cfg.SecretName
	if secretName == "" {
		secretName = DefaultSecretName
	}

	return &Provider{
		client:     secretsmanager.NewFromConfig(awsConfig),
		region:     awsConfig.Region,
		secretName: secretName,
	}, nil
}

// MasterKey reads and decodes the master key from Secrets Manager.
func (p *Provider) MasterKey(ctx context.Context) ([]byte, error) {
	result, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get master key from Secrets Manager: %w",
			medvault.ErrMasterKeyUnavailable, err)
	}

	if result.SecretString == nil {
		return nil, fmt.Errorf("%w: no master key in secret %s",
			medvault.ErrMasterKeyUnavailable, p.secretName)
	}

	key, err := base64.StdEncoding.DecodeString(*result.SecretString)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode master key: %w",
			medvault.ErrMasterKeyUnavailable, err)
	}

	if len(key) != medvault.MasterKeySize {
		return nil, fmt.Errorf("%w: invalid master key length: expected %d bytes, got %d",
			medvault.ErrMasterKeyUnavailable, medvault.MasterKeySize, len(key))
	}

	return key, nil
}

// Region returns the AWS region this provider is configured for.
func (p *Provider) Region() string {
	return p.region
}
