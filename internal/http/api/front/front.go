// Package front registers the user-facing routes: sign-in, key management, the proxy and the model catalog.
package front

import (
	"github.com/gin-gonic/gin"
	"github.com/router-for-me/promptdock/internal/config"
	"github.com/router-for-me/promptdock/internal/http/api"
	"github.com/router-for-me/promptdock/internal/http/api/front/handlers"
	"github.com/router-for-me/promptdock/internal/http/api/rest"
	"github.com/router-for-me/promptdock/internal/proxy"
	"github.com/router-for-me/promptdock/internal/registry"
	"github.com/router-for-me/promptdock/internal/store"
	"github.com/router-for-me/promptdock/internal/usage"
	"gorm.io/gorm"
)

// Services bundles what the front routes need.
type Services struct {
	DB         *gorm.DB
	JWT        config.JWTConfig
	Auth       api.Authenticator
	Keys       *store.GormKeyStore
	Dispatcher *proxy.Dispatcher
	Registry   *registry.Registry
	Usage      *usage.GormRecorder
}

// RegisterFrontRoutes mounts the front routes on r.
func RegisterFrontRoutes(r *gin.Engine, svc Services) {
	if r == nil || svc.DB == nil {
		return
	}
	auth := svc.Auth
	if auth == nil {
		auth = api.NewUserAuthenticator(svc.DB, svc.JWT.Secret)
	}

	healthHandler := handlers.NewHealthHandler(svc.DB)
	r.GET("/healthz", healthHandler.Healthz)

	authHandler := handlers.NewAuthHandler(svc.DB, svc.JWT)
	r.POST("/v0/auth/login", authHandler.Login)

	if svc.Dispatcher != nil {
		proxyHandler := handlers.NewProxyHandler(svc.Dispatcher)
		r.POST("/v0/proxy", proxyHandler.Forward)
	}

	if svc.Registry != nil {
		providerHandler := handlers.NewProviderHandler(svc.Registry)
		r.GET("/providers/models", providerHandler.Models)
		r.GET("/providers/models/:provider", providerHandler.ProviderModels)
		r.GET("/providers/recommendations", providerHandler.Recommendations)

		refresh := r.Group("")
		refresh.Use(api.RequireUser(auth))
		refresh.POST("/providers/models/:provider/refresh", providerHandler.Refresh)
	}

	authed := r.Group("")
	authed.Use(api.RequireUser(auth))

	authed.GET("/v0/me", authHandler.Me)
	authed.POST("/v0/me/totp/prepare", authHandler.PrepareTOTP)
	authed.POST("/v0/me/totp/confirm", authHandler.ConfirmTOTP)
	authed.POST("/v0/me/totp/disable", authHandler.DisableTOTP)

	if svc.Keys != nil {
		keyHandler := handlers.NewKeyHandler(svc.Keys)
		authed.GET("/v0/keys", keyHandler.List)
		authed.POST("/v0/keys", keyHandler.Create)
		authed.PUT("/v0/keys/:id", keyHandler.Update)
		authed.DELETE("/v0/keys/:id", keyHandler.Delete)
		authed.POST("/v0/keys/:id/activate", keyHandler.Activate)
	}

	if svc.Usage != nil {
		usageHandler := handlers.NewUsageHandler(svc.Usage)
		authed.GET("/v0/usage", usageHandler.List)
		authed.GET("/v0/usage/summary", usageHandler.Summary)
	}

	rest.NewHandler(svc.DB).Register(authed)
}
