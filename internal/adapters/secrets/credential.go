package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/domain"
)

// Credential sources
const (
	SourceEnv   = "env"
	SourceFile  = "file"
	SourceAWS   = "aws"
	SourceVault = "vault"
)

// parseCredential decodes a stored secret document and validates it.
// The document shape is {"merchant_id": "...", "hash_key": "...", "hash_iv": "..."}.
func parseCredential(source string, raw []byte) (*domain.Credential, error) {
	var cred domain.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("%s credential: malformed secret document: %w", source, err)
	}
	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf("%s credential: %w", source, err)
	}
	return &cred, nil
}

// staticSource serves a credential already present in configuration
type staticSource struct {
	cred domain.Credential
}

// NewEnvCredentialSource wraps values read from the environment
func NewEnvCredentialSource(merchantID, hashKey, hashIV string) ports.CredentialSource {
	return &staticSource{cred: domain.Credential{MerchantID: merchantID, HashKey: hashKey, HashIV: hashIV}}
}

func (s *staticSource) Name() string { return SourceEnv }

func (s *staticSource) LoadCredential(context.Context) (*domain.Credential, error) {
	if err := s.cred.Validate(); err != nil {
		return nil, fmt.Errorf("%s credential: %w", SourceEnv, err)
	}
	cred := s.cred
	return &cred, nil
}
