package awssecrets

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretrust/medvault"
)

// mockSecretsClient implements secretsManagerClient for testing
type mockSecretsClient struct {
	getSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

func (m *mockSecretsClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return m.getSecretValueFunc(ctx, params, optFns...)
}

func TestMasterKeySuccess(t *testing.T) {
	key := make([]byte, medvault.MasterKeySize)
	for i := range key {
		key[i] = byte(i)
	}
	encoded := base64.StdEncoding.EncodeToString(key)

	var requestedSecret string
	provider := &Provider{
		secretName: "medvault/master-key",
		client: &mockSecretsClient{
			getSecretValueFunc: func(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
				requestedSecret = *params.SecretId
				return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(encoded)}, nil
			},
		},
	}

	got, err := provider.MasterKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, key, got)
	assert.Equal(t, "medvault/master-key", requestedSecret)
}

func TestMasterKeyServiceError(t *testing.T) {
	provider := &Provider{
		secretName: "medvault/master-key",
		client: &mockSecretsClient{
			getSecretValueFunc: func(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
				return nil, errors.New("access denied")
			},
		},
	}

	_, err := provider.MasterKey(context.Background())
	assert.ErrorIs(t, err, medvault.ErrMasterKeyUnavailable)
}

func TestMasterKeyMissingValue(t *testing.T) {
	provider := &Provider{
		secretName: "medvault/master-key",
		client: &mockSecretsClient{
			getSecretValueFunc: func(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
				return &secretsmanager.GetSecretValueOutput{}, nil
			},
		},
	}

	_, err := provider.MasterKey(context.Background())
	assert.ErrorIs(t, err, medvault.ErrMasterKeyUnavailable)
}

func TestMasterKeyNotBase64(t *testing.T) {
	provider := &Provider{
		secretName: "medvault/master-key",
		client: &mockSecretsClient{
			getSecretValueFunc: func(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
				return &secretsmanager.GetSecretValueOutput{SecretString: aws.String("not-base64!!!")}, nil
			},
		},
	}

	_, err := provider.MasterKey(context.Background())
	assert.ErrorIs(t, err, medvault.ErrMasterKeyUnavailable)
}

func TestMasterKeyWrongLength(t *testing.T) {
	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	provider := &Provider{
		secretName: "medvault/master-key",
		client: &mockSecretsClient{
			getSecretValueFunc: func(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
				return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(short)}, nil
			},
		},
	}

	_, err := provider.MasterKey(context.Background())
	assert.ErrorIs(t, err, medvault.ErrMasterKeyUnavailable)
}
