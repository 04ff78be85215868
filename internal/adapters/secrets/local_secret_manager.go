package secrets

import (
	"context"
	"fmt"
	"os"

	"github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/domain"
	"go.uber.org/zap"
)

// fileSource reads the credential from a local JSON document.
// WARNING: development only. Use AWS Secrets Manager or Vault in production.
type fileSource struct {
	path   string
	logger *zap.Logger
}

// NewFileCredentialSource creates a file-backed credential source
func NewFileCredentialSource(path string, logger *zap.Logger) ports.CredentialSource {
	return &fileSource{path: path, logger: logger}
}

func (s *fileSource) Name() string { return SourceFile }

func (s *fileSource) LoadCredential(ctx context.Context) (*domain.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Debug("Reading credential from filesystem", zap.String("path", s.path))

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s credential: not found: %s", SourceFile, s.path)
		}
		return nil, fmt.Errorf("%s credential: failed to read: %w", SourceFile, err)
	}

	info, err := os.Stat(s.path)
	if err == nil && info.Mode().Perm()&0o077 != 0 {
		s.logger.Warn("Credential file is readable by group or others",
			zap.String("path", s.path),
			zap.String("mode", info.Mode().Perm().String()),
		)
	}

	return parseCredential(SourceFile, data)
}
