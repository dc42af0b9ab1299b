// Package api provides REST API routing
package api

import (
	"net/http"

	"github.com/unclekaldoteth/stacks-daily-raffle/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// SetupRouter configures the API routes
func SetupRouter(handler *Handler, stream *Stream, m *metrics.Metrics, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), Logger(logger.Named("http")))
	if m != nil {
		router.Use(m.Middleware())
	}

	// Health check
	router.GET("/health", handler.HealthCheck)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := router.Group("/api")

	// Read-only contract proxy
	api.GET("/contract", handler.ContractInfo)
	api.POST("/contract", handler.CallContract)

	// Transaction preparation
	api.POST("/tx-options", handler.TxOptions)

	// Raffle state
	api.GET("/raffle", handler.GetRaffle)
	api.POST("/raffle/refresh", handler.RefreshRaffle)
	if stream != nil {
		api.GET("/raffle/ws", stream.HandleWebSocket)
	}

	return router
}

// WithCORS wraps the router with CORS handling for origins
func WithCORS(router http.Handler, origins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         600,
	})
	return c.Handler(router)
}
