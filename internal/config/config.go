package config

import (
	"os"
	"strconv"
)

type Config struct {
	AppPort string

	// Default Telegram application credentials used when a
	// session-creation request does not carry its own.
	TelegramAPIID   int
	TelegramAPIHash string

	RedisAddr     string
	RedisPassword string

	DatabaseDSN string
}

func Load() Config {

	apiID, _ := strconv.Atoi(os.Getenv("TELEGRAM_API_ID"))

	cfg := Config{

		AppPort: os.Getenv("APP_PORT"),

		TelegramAPIID:   apiID,
		TelegramAPIHash: os.Getenv("TELEGRAM_API_HASH"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),
	}

	if cfg.AppPort == "" {
		cfg.AppPort = "8001"
	}

	return cfg

}
