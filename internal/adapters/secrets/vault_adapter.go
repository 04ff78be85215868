package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/domain"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for the HashiCorp Vault source
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Authentication method: "token" or "approle"
	AuthMethod string

	// Token for token authentication
	Token string

	// AppRole credentials
	RoleID   string
	SecretID string

	// Vault namespace (Vault Enterprise)
	Namespace string

	// KV secrets engine mount path (default: "secret")
	MountPath string

	// KV version: "v1" or "v2" (default: "v2")
	KVVersion string

	// SecretPath is the path of the credential inside the mount (e.g., "newebpay/merchant")
	SecretPath string

	TLSSkipVerify bool
}

// DefaultVaultConfig returns default configuration for the Vault source
func DefaultVaultConfig(address string) *VaultConfig {
	return &VaultConfig{
		Address:    address,
		AuthMethod: "token",
		MountPath:  "secret",
		KVVersion:  "v2",
		SecretPath: "newebpay/merchant",
	}
}

// logicalReader is the subset of the Vault logical client the source uses
type logicalReader interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

type vaultSource struct {
	logical logicalReader
	config  *VaultConfig
	logger  *zap.Logger
}

// NewVaultCredentialSource creates a Vault KV backed credential source
func NewVaultCredentialSource(ctx context.Context, cfg *VaultConfig, logger *zap.Logger) (ports.CredentialSource, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if err := authenticateVault(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	logger.Info("Vault credential source initialized",
		zap.String("address", cfg.Address),
		zap.String("auth_method", cfg.AuthMethod),
		zap.String("mount_path", cfg.MountPath),
		zap.String("kv_version", cfg.KVVersion),
	)

	return &vaultSource{logical: client.Logical(), config: cfg, logger: logger}, nil
}

func authenticateVault(ctx context.Context, client *vault.Client, cfg *VaultConfig) error {
	switch cfg.AuthMethod {
	case "token":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for AppRole auth")
		}
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("AppRole login failed: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("AppRole login returned no auth info")
		}
		client.SetToken(resp.Auth.ClientToken)
		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// fullPath builds the logical path for the configured KV version
func (s *vaultSource) fullPath() string {
	if s.config.KVVersion == "v2" {
		return path.Join(s.config.MountPath, "data", s.config.SecretPath)
	}
	return path.Join(s.config.MountPath, s.config.SecretPath)
}

func (s *vaultSource) Name() string { return SourceVault }

func (s *vaultSource) LoadCredential(ctx context.Context) (*domain.Credential, error) {
	fullPath := s.fullPath()
	start := time.Now()

	secret, err := s.logical.ReadWithContext(ctx, fullPath)
	if err != nil {
		s.logger.Error("Failed to read credential from Vault",
			zap.String("path", fullPath),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s credential: failed to read secret: %w", SourceVault, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%s credential: secret not found: %s", SourceVault, fullPath)
	}

	data := secret.Data
	if s.config.KVVersion == "v2" {
		// KV v2 wraps data in a "data" field
		inner, ok := secret.Data["data"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s credential: invalid secret format", SourceVault)
		}
		data = inner
	}

	s.logger.Info("Credential read from Vault",
		zap.String("path", fullPath),
		zap.Duration("elapsed", time.Since(start)),
	)

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s credential: %w", SourceVault, err)
	}
	return parseCredential(SourceVault, raw)
}
