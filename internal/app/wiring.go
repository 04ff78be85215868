package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kevin07696/newebpay-service/internal/adapters/database"
	"github.com/kevin07696/newebpay-service/internal/adapters/filestore"
	"github.com/kevin07696/newebpay-service/internal/adapters/lock"
	adapterports "github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/adapters/postgres"
	"github.com/kevin07696/newebpay-service/internal/adapters/secrets"
	"github.com/kevin07696/newebpay-service/internal/config"
	domainports "github.com/kevin07696/newebpay-service/internal/domain/ports"
	"github.com/kevin07696/newebpay-service/pkg/observability"
	"github.com/kevin07696/newebpay-service/pkg/shutdown"
)

// initCredentialSource selects the backend holding the merchant credential
func initCredentialSource(ctx context.Context, cfg config.CredentialConfig, logger *zap.Logger) (adapterports.CredentialSource, error) {
	switch cfg.Source {
	case secrets.SourceEnv:
		logger.Warn("Using credential from environment variables; prefer a secret store in production")
		return secrets.NewEnvCredentialSource(cfg.MerchantID, cfg.HashKey, cfg.HashIV), nil
	case secrets.SourceFile:
		return secrets.NewFileCredentialSource(cfg.FilePath, logger), nil
	case secrets.SourceAWS:
		return secrets.NewAWSCredentialSource(ctx, &secrets.AWSSecretsManagerConfig{
			Region:   cfg.AWSRegion,
			SecretID: cfg.AWSSecretID,
			Endpoint: cfg.AWSEndpoint,
		}, logger)
	case secrets.SourceVault:
		vaultCfg := secrets.DefaultVaultConfig(cfg.VaultAddr)
		vaultCfg.Token = cfg.VaultToken
		if cfg.VaultRoleID != "" {
			vaultCfg.AuthMethod = "approle"
			vaultCfg.RoleID = cfg.VaultRoleID
			vaultCfg.SecretID = cfg.VaultSecretID
		}
		vaultCfg.MountPath = cfg.VaultMountPath
		vaultCfg.SecretPath = cfg.VaultPath
		return secrets.NewVaultCredentialSource(ctx, vaultCfg, logger)
	default:
		return nil, fmt.Errorf("unknown credential source %q", cfg.Source)
	}
}

// initOrderStore opens the JSON file store or a migrated PostgreSQL repository
func initOrderStore(
	ctx context.Context,
	cfg config.StoreConfig,
	sm *shutdown.Manager,
	health *observability.HealthChecker,
	logger *zap.Logger,
) (domainports.OrderRepository, error) {
	var orders domainports.OrderRepository

	switch cfg.Driver {
	case "file":
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o750); err != nil {
			return nil, fmt.Errorf("create order directory: %w", err)
		}
		store, err := filestore.NewOrderStore(cfg.FilePath, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Using file order store", zap.String("path", cfg.FilePath))
		orders = store

	case "postgres":
		dbCfg := database.DefaultPostgreSQLConfig(cfg.DatabaseURL)
		dbCfg.MaxConns = cfg.MaxConns
		dbCfg.MinConns = cfg.MinConns

		db, err := database.NewPostgreSQLAdapter(ctx, dbCfg, logger)
		if err != nil {
			return nil, err
		}
		sm.RegisterNoErr("postgres", db.Close)

		if err := db.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}

		monitorCtx, stopMonitor := context.WithCancel(context.Background())
		db.StartPoolMonitoring(monitorCtx, time.Minute)
		sm.RegisterNoErr("postgres-monitor", stopMonitor)

		logger.Info("Using PostgreSQL order store")
		orders = postgres.NewOrderRepository(db.Pool(), logger)

	default:
		return nil, fmt.Errorf("unknown order store %q", cfg.Driver)
	}

	health.Register("order_store", orders.Ping)
	return orders, nil
}

// initLocker returns an in-process locker or a redsync one shared across replicas
func initLocker(
	ctx context.Context,
	cfg config.LockConfig,
	sm *shutdown.Manager,
	health *observability.HealthChecker,
	logger *zap.Logger,
) (domainports.KeyedLocker, error) {
	switch cfg.Driver {
	case "local":
		logger.Info("Using in-process order locks")
		return lock.NewLocal(), nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
		}
		sm.RegisterCloser("redis", rdb)
		health.Register("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

		logger.Info("Using redis order locks", zap.String("addr", cfg.RedisAddr), zap.Duration("expiry", cfg.Expiry))
		return lock.NewRedis(lock.NewRedsync(rdb), cfg.Expiry, logger), nil

	default:
		return nil, fmt.Errorf("unknown locker %q", cfg.Driver)
	}
}
