// Package hashicorp sources the medvault master key from HashiCorp Vault's
// KV v2 secrets engine.
package hashicorp

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/caretrust/medvault"
)

// DefaultKeyPath is the KV v2 read path used when no path is configured.
// The "/data/" segment is required by the KV v2 API.
const DefaultKeyPath = "secret/data/medvault/master-key"

// KVProvider implements medvault.MasterKeyProvider by reading the 32-byte
// master key from Vault KV v2. The secret is expected to hold a base64-encoded
// key under the "value" field.
type KVProvider struct {
	client *api.Client
	path   string
}

// NewKVProvider creates a KVProvider configured from environment variables
// (see createVaultClient). Pass an empty path to use DefaultKeyPath.
//
// The KV v2 engine must be enabled in Vault before use:
//
//	vault secrets enable -path=secret kv-v2
func NewKVProvider(path string) (*KVProvider, error) {
	client, err := createVaultClient()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = DefaultKeyPath
	}
	return &KVProvider{client: client, path: path}, nil
}

// MasterKey reads and decodes the master key from Vault.
func (p *KVProvider) MasterKey(ctx context.Context) ([]byte, error) {
	secret, err := p.client.Logical().ReadWithContext(ctx, p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read master key from Vault KV: %w",
			medvault.ErrMasterKeyUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: no master key at path %s",
			medvault.ErrMasterKeyUnavailable, p.path)
	}

	// KV v2 wraps the actual data in a "data" key
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: invalid KV v2 secret format at path %s",
			medvault.ErrMasterKeyUnavailable, p.path)
	}

	keyBase64, ok := data["value"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: master key value not found or invalid format at path %s",
			medvault.ErrMasterKeyUnavailable, p.path)
	}

	key, err := base64.StdEncoding.DecodeString(keyBase64)
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

// StoreMasterKey writes a master key to Vault KV v2 for bootstrap and
// rotation tooling. KV v2 versions the secret, so the previous key remains
// recoverable.
func (p *KVProvider) StoreMasterKey(ctx context.Context, key []byte) error {
	if len(key) != medvault.MasterKeySize {
		return fmt.Errorf("%w: master key must be exactly %d bytes, got %d",
			medvault.ErrInvalidConfiguration, medvault.MasterKeySize, len(key))
	}

	// KV v2 requires data to be wrapped in a "data" key
	data := map[string]interface{}{
		"data": map[string]interface{}{
			"value": base64.StdEncoding.EncodeToString(key),
		},
	}

	if _, err := p.client.Logical().WriteWithContext(ctx, p.path, data); err != nil {
		return fmt.Errorf("%w: failed to store master key in Vault KV: %w",
			medvault.ErrMasterKeyUnavailable, err)
	}
	return nil
}
