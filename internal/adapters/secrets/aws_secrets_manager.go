package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/domain"
	"go.uber.org/zap"
)

// AWSSecretsManagerConfig contains configuration for the AWS Secrets Manager source
type AWSSecretsManagerConfig struct {
	// AWS Region (e.g., "ap-northeast-1")
	Region string

	// SecretID is the name or ARN of the secret holding the credential document
	SecretID string

	// Optional: AWS profile name (for local development)
	Profile string

	// Optional: custom endpoint (for LocalStack testing)
	Endpoint string
}

// secretValueGetter is the subset of the Secrets Manager client the source uses
type secretValueGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// awsSource loads the credential from one AWS Secrets Manager secret
type awsSource struct {
	client   secretValueGetter
	secretID string
	logger   *zap.Logger
}

// NewAWSCredentialSource creates a Secrets Manager backed credential source
func NewAWSCredentialSource(ctx context.Context, cfg *AWSSecretsManagerConfig, logger *zap.Logger) (ports.CredentialSource, error) {
	if cfg.SecretID == "" {
		return nil, fmt.Errorf("%s credential: secret id is required", SourceAWS)
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOptions []func(*secretsmanager.Options)
	if cfg.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	logger.Info("AWS Secrets Manager credential source initialized",
		zap.String("region", cfg.Region),
		zap.String("secret_id", cfg.SecretID),
	)

	return newAWSSource(secretsmanager.NewFromConfig(awsConfig, clientOptions...), cfg.SecretID, logger), nil
}

func newAWSSource(client secretValueGetter, secretID string, logger *zap.Logger) *awsSource {
	return &awsSource{client: client, secretID: secretID, logger: logger}
}

func (s *awsSource) Name() string { return SourceAWS }

func (s *awsSource) LoadCredential(ctx context.Context) (*domain.Credential, error) {
	start := time.Now()
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		s.logger.Error("Failed to retrieve credential secret",
			zap.String("secret_id", s.secretID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s credential: failed to get secret %s: %w", SourceAWS, s.secretID, err)
	}

	s.logger.Info("Credential secret retrieved",
		zap.String("secret_id", s.secretID),
		zap.String("version", aws.ToString(out.VersionId)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if out.SecretString != nil {
		return parseCredential(SourceAWS, []byte(*out.SecretString))
	}
	return parseCredential(SourceAWS, out.SecretBinary)
}
