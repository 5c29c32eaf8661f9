package app

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"telegram-bridge/internal/config"
	"telegram-bridge/internal/db"
	"telegram-bridge/internal/logger"
	"telegram-bridge/internal/redis"
)

type Infra struct {
	DB    *db.DB
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	sqlDB, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := db.RunSessionsMigration(ctx, sqlDB); err != nil {
		return nil, err
	}

	logger.Info("database ready", nil)

	infra := &Infra{DB: &db.DB{DB: sqlDB}}

	// Redis is optional: without it the flow-state store falls back to
	// memory and auth flows simply do not survive a restart.
	if cfg.RedisAddr != "" {
		redisClient, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		infra.Redis = redisClient

		logger.Info("redis ready", nil)
	}

	return infra, nil
}
