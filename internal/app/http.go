package app

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"telegram-bridge/internal/config"
	"telegram-bridge/internal/flowstate"
	"telegram-bridge/internal/handler"
	"telegram-bridge/internal/middleware"
	"telegram-bridge/internal/session"
	"telegram-bridge/internal/store"
	"telegram-bridge/internal/transport/telegram"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func(ctx context.Context) error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	credentialStore := store.NewPostgresStore(infra.DB)

	var flows flowstate.Store
	if infra.Redis != nil {
		flows = flowstate.NewRedisStore(infra.Redis.Client)
	} else {
		flows = flowstate.NewMemoryStore()
	}

	manager := session.NewManager(credentialStore, flows, telegram.NewFactory())

	// Revive persisted sessions off the request path; a slow or
	// unreachable account must not delay serving.
	go manager.RestoreAll(context.Background())

	sessionHandler := handler.NewHandler(manager, cfg.TelegramAPIID, cfg.TelegramAPIHash)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		AllowCredentials: false,
	}))

	sessionHandler.RegisterRoutes(router)

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, func(ctx context.Context) error {
		manager.CleanupAll(ctx)
		return infra.DB.Close()
	}, nil
}
