package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/storeledger/kledo-sync/internal/api"
	"github.com/storeledger/kledo-sync/internal/config"
	"github.com/storeledger/kledo-sync/internal/database"
	"github.com/storeledger/kledo-sync/internal/eventbus"
	"github.com/storeledger/kledo-sync/internal/kledo"
	"github.com/storeledger/kledo-sync/internal/store"
	syncctl "github.com/storeledger/kledo-sync/internal/sync"
)

func main() {
	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.Provide(
			config.Load,
			initLogger,
			database.Connect,
			initRedis,
			config.LoadVaultOverrides,
			store.NewTokenStore,
			store.NewSyncRecords,
			newSettingsStore,
			newStateStore,
			newHTTPClient,
			newConnection,
			newClient,
			newEventBus,
			syncctl.NewController,
			newHandlers,
			api.NewServer,
		),
		fx.Invoke(run),
		fx.StopTimeout(30*time.Second),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal("Failed to start service: ", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	if err := app.Stop(context.Background()); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Shutdown complete")
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var logLevel zap.AtomicLevel
	switch cfg.Log.Level {
	case "debug":
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		logLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		logLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = logLevel
	return zapConfig.Build()
}

func initRedis(cfg *config.Config, logger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable at startup", zap.Error(err))
	}
	return client
}

func newSettingsStore(db *gorm.DB, overrides *config.CredentialOverrides) *store.SettingsStore {
	return store.NewSettingsStore(db, overrides)
}

// newStateStore keeps the OAuth CSRF state in Redis so it survives restarts
// mid-handshake; without Redis configured it degrades to process memory.
func newStateStore(cfg *config.Config, client *redis.Client, logger *zap.Logger) store.StateStore {
	if cfg.Redis.Addr == "" {
		logger.Warn("Redis not configured, keeping OAuth state in memory")
		return store.NewMemoryStateStore()
	}
	return store.NewRedisStateStore(client)
}

func newHTTPClient(cfg *config.Config) *http.Client {
	return kledo.NewHTTPClient(cfg.Kledo.InsecureSkipVerify)
}

func newConnection(cfg *config.Config, settings *store.SettingsStore, tokens *store.TokenStore, states store.StateStore, httpClient *http.Client, logger *zap.Logger) *kledo.Connection {
	return kledo.NewConnection(settings, tokens, states, cfg.Kledo.RedirectURI, httpClient, logger)
}

func newClient(cfg *config.Config, conn *kledo.Connection, settings *store.SettingsStore, httpClient *http.Client, logger *zap.Logger) *kledo.Client {
	return kledo.NewClient(conn, settings, httpClient, logger)
}

func newEventBus(client *redis.Client, logger *zap.Logger) (eventbus.EventBus, error) {
	return eventbus.NewRedisEventBus(client, logger)
}

func newHandlers(cfg *config.Config, conn *kledo.Connection, client *kledo.Client, settings *store.SettingsStore, records *store.SyncRecords, bus eventbus.EventBus, logger *zap.Logger) *api.Handlers {
	return api.NewHandlers(conn, client, settings, records, bus, cfg.Kledo.SettingsURL, logger)
}

func run(lc fx.Lifecycle, server *api.Server, controller *syncctl.Controller, bus eventbus.EventBus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := controller.Start(ctx); err != nil {
				return err
			}
			server.Start()
			logger.Info("Kledo sync service started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := server.Shutdown(ctx); err != nil {
				logger.Error("HTTP server shutdown failed", zap.Error(err))
			}
			if err := bus.Close(); err != nil {
				logger.Error("Event bus close failed", zap.Error(err))
			}
			logger.Info("Kledo sync service stopped")
			return nil
		},
	})
}
