package main

import (
	"context"
	"fmt"
	"time"

	"shopify-admin-auth/internal/config"
	"shopify-admin-auth/internal/infrastructure/repository"
	"shopify-admin-auth/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const storageConnectTimeout = 10 * time.Second

type sessionStore interface {
	ports.SessionStorage
	ports.ShopSessionCleaner
}

// newSessionStorage connects the configured backend. The returned func releases it.
func newSessionStorage(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (sessionStore, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, storageConnectTimeout)
	defer cancel()

	switch cfg.Kind {
	case config.StorageMongo:
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("Failed to disconnect from MongoDB")
			}
		}
		if err := client.Ping(connectCtx, nil); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
		}

		storage := repository.NewMongoSessionStorage(client.Database(cfg.MongoDatabase))
		if err := storage.EnsureIndexes(connectCtx); err != nil {
			closeFn()
			return nil, nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("Using MongoDB session storage")
		return storage, closeFn, nil

	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close Redis client")
			}
		}

		storage := repository.NewRedisSessionStorage(client, cfg.RedisKeyPrefix)
		if err := storage.Ping(connectCtx); err != nil {
			closeFn()
			return nil, nil, err
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis session storage")
		return storage, closeFn, nil

	default:
		logger.Warn().Msg("Using in-memory session storage, sessions are lost on restart")
		return repository.NewMemorySessionStorage(), func() {}, nil
	}
}
