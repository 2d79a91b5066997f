// Package app wires configuration, storage and the HTTP surface into a running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/promptdock/internal/catalog"
	"github.com/router-for-me/promptdock/internal/config"
	"github.com/router-for-me/promptdock/internal/db"
	"github.com/router-for-me/promptdock/internal/http/api"
	"github.com/router-for-me/promptdock/internal/http/api/front"
	"github.com/router-for-me/promptdock/internal/httpclient"
	"github.com/router-for-me/promptdock/internal/proxy"
	"github.com/router-for-me/promptdock/internal/ratelimit"
	"github.com/router-for-me/promptdock/internal/registry"
	"github.com/router-for-me/promptdock/internal/store"
	"github.com/router-for-me/promptdock/internal/usage"
	"github.com/router-for-me/promptdock/internal/vault"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrMissingJWTSecret indicates the token signing secret is not configured.
var ErrMissingJWTSecret = errors.New("missing jwt secret (set `jwt.secret` in config file or JWT_SECRET)")

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// Settings is the resolved configuration of a server instance.
type Settings struct {
	Server      config.ServerConfig
	JWT         config.JWTConfig
	VaultSecret string
	RateLimit   config.RateLimitConfig
	Catalog     config.CatalogConfig
}

// LoadSettings reads every section the server needs from configPath.
func LoadSettings(configPath string, defaultPort int) (Settings, error) {
	var (
		s   Settings
		err error
	)
	if s.Server, err = config.LoadServerConfig(configPath, defaultPort); err != nil {
		return s, err
	}
	if s.JWT, err = config.LoadJWTConfig(configPath); err != nil {
		return s, err
	}
	if strings.TrimSpace(s.JWT.Secret) == "" {
		return s, ErrMissingJWTSecret
	}
	if s.VaultSecret, err = config.LoadVaultSecret(configPath); err != nil {
		return s, err
	}
	if s.RateLimit, err = config.LoadRateLimitConfig(configPath); err != nil {
		return s, err
	}
	if s.Catalog, err = config.LoadCatalogConfig(configPath); err != nil {
		return s, err
	}
	return s, nil
}

// Components are the long-lived services behind the routes.
type Components struct {
	DB         *gorm.DB
	Auth       *api.UserAuthenticator
	Keys       *store.GormKeyStore
	Limiter    *ratelimit.Limiter
	Dispatcher *proxy.Dispatcher
	Registry   *registry.Registry
	Usage      *usage.GormRecorder
}

// BuildComponents constructs the services for conn. Nothing is started.
func BuildComponents(conn *gorm.DB, s Settings) (*Components, error) {
	v, err := vault.New(s.VaultSecret)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}
	auth := api.NewUserAuthenticator(conn, s.JWT.Secret)
	keys := store.NewGormKeyStore(conn, v)
	limiter := ratelimit.New(s.RateLimit)
	recorder := usage.NewGormRecorder(conn)
	dispatcher := proxy.New(auth, keys, v, httpclient.New("proxy", 0)).
		WithLimiter(limiter).
		WithRecorder(recorder)

	fetcher := catalog.NewFetcher(httpclient.New("catalog", 0), s.Catalog.Keys)
	reg := registry.New(fetcher, registry.NewGormStore(conn), s.Catalog.RefreshInterval)

	return &Components{
		DB:         conn,
		Auth:       auth,
		Keys:       keys,
		Limiter:    limiter,
		Dispatcher: dispatcher,
		Registry:   reg,
		Usage:      recorder,
	}, nil
}

// BuildEngine returns the gin engine serving every route.
func BuildEngine(c *Components, s Settings, initState *atomic.Bool) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	front.RegisterFrontRoutes(engine, front.Services{
		DB:         c.DB,
		JWT:        s.JWT,
		Auth:       c.Auth,
		Keys:       c.Keys,
		Dispatcher: c.Dispatcher,
		Registry:   c.Registry,
		Usage:      c.Usage,
	})
	registerSetupRoutes(engine, c.DB, initState)

	engine.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return engine
}

// RunServer boots the API server and blocks until ctx ends.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	settings, err := LoadSettings(configPath, defaultPort)
	if err != nil {
		return err
	}
	if settings.Server.Debug {
		log.SetLevel(log.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	initialized, errInit := HasUserInitialized(conn)
	if errInit != nil {
		return errInit
	}
	var initState atomic.Bool
	initState.Store(initialized)
	if !initialized {
		log.Warn("no users yet, POST /v0/init/setup to create the first account")
	}

	components, err := BuildComponents(conn, settings)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := components.Limiter.Close(); errClose != nil {
			log.WithError(errClose).Warn("close rate limiter failed")
		}
	}()
	components.Registry.Start(ctx)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           BuildEngine(components, settings, &initState),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting promptdock on %s with config=%s", addr, configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}

// requestLogger logs one line per request at debug level, and failures at warn.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}
