package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storeledger/kledo-sync/internal/api/middleware"
	"github.com/storeledger/kledo-sync/internal/config"
)

// Server wraps the HTTP server hosting the admin and webhook routes.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds the router and binds the handler set to its routes.
func NewServer(cfg *config.Config, handlers *Handlers, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))

	router.GET("/health", handlers.Health)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/connect", handlers.Connect)
		apiV1.GET("/oauth/callback", handlers.OAuthCallback)

		connectionGroup := apiV1.Group("/connection")
		{
			connectionGroup.POST("/refresh", handlers.RefreshToken)
			connectionGroup.POST("/disconnect", handlers.Disconnect)
			connectionGroup.GET("/status", handlers.ConnectionStatus)
		}

		lookupGroup := apiV1.Group("/lookup")
		{
			lookupGroup.GET("/accounts", handlers.Accounts)
			lookupGroup.GET("/warehouses", handlers.Warehouses)
		}

		settingsGroup := apiV1.Group("/settings")
		{
			settingsGroup.GET("/connection", handlers.GetConnectionSettings)
			settingsGroup.PUT("/connection", handlers.PutConnectionSettings)
			settingsGroup.GET("/invoice", handlers.GetInvoiceSettings)
			settingsGroup.PUT("/invoice", handlers.PutInvoiceSettings)
		}

		webhookGroup := apiV1.Group("/webhooks")
		{
			webhookGroup.POST("/order-completed", handlers.OrderCompletedWebhook)
		}

		apiV1.GET("/sync/records", handlers.SyncRecords)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
