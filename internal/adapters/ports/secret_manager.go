package ports

import (
	"context"

	"github.com/kevin07696/newebpay-service/internal/domain"
)

// CredentialSource loads the merchant credential used to sign and encrypt gateway traffic.
// Backends: environment, local JSON file, AWS Secrets Manager, HashiCorp Vault.
//
// Implementations must:
//   - return a credential that passes domain.Credential.Validate
//   - never log key material
//   - wrap backend failures so the source name is visible in the error
type CredentialSource interface {
	// Name identifies the backend for logs ("env", "file", "aws", "vault")
	Name() string

	// LoadCredential fetches and validates the credential
	LoadCredential(ctx context.Context) (*domain.Credential, error)
}
