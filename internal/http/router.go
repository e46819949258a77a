package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Faizanmal/SyncQuote-sub003/internal/config"
	"github.com/Faizanmal/SyncQuote-sub003/internal/http/handler"
	httpmiddleware "github.com/Faizanmal/SyncQuote-sub003/internal/http/middleware"
	"github.com/Faizanmal/SyncQuote-sub003/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, logger *zap.Logger, authHandler *handler.AuthHandler, appHandler *handler.AppHandler, session *httpmiddleware.Session, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.POST("/login", authHandler.Login)

	apps := r.Group("/apps", session.RequireSession)
	{
		apps.POST("", appHandler.Create)
		apps.GET("", appHandler.List)
		apps.GET("/:id", appHandler.Get)
		apps.DELETE("/:id", appHandler.Delete)
		apps.POST("/:id/regenerate-secret", appHandler.RegenerateSecret)
	}

	oauth := r.Group("/oauth")
	{
		oauth.POST("/authorize", session.RequireSession, authHandler.Authorize)
		oauth.POST("/token", authHandler.Token)
		oauth.POST("/revoke", authHandler.Revoke)
	}

	r.GET("/authorized-apps", session.RequireSession, authHandler.ListAuthorizedApps)
	r.DELETE("/authorized-apps/:appId", session.RequireSession, authHandler.RevokeAuthorizedApp)

	r.GET("/internal/validate", authHandler.Validate)

	return r
}
