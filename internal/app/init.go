package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/promptdock/internal/config"
	"github.com/router-for-me/promptdock/internal/db"
	"github.com/router-for-me/promptdock/internal/models"
	"github.com/router-for-me/promptdock/internal/security"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// minPasswordLength is enforced on the first account.
const minPasswordLength = 6

// InitRequest contains parameters for first-run setup without a config file.
type InitRequest struct {
	DatabaseType     string `json:"database_type"`
	DatabaseHost     string `json:"database_host"`
	DatabasePort     int    `json:"database_port"`
	DatabaseUser     string `json:"database_user"`
	DatabasePassword string `json:"database_password"`
	DatabaseName     string `json:"database_name"`
	DatabasePath     string `json:"database_path"`
	DatabaseSSLMode  string `json:"database_ssl_mode"`
	Username         string `json:"username" binding:"required"`
	Password         string `json:"password" binding:"required"`
}

// SetupRequest creates the first account on a configured server.
type SetupRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// InitStatusResponse reports whether initialization is complete.
type InitStatusResponse struct {
	Initialized bool `json:"initialized"`
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "promptdock.db"

// BuildDSN builds a database DSN from the init request.
func BuildDSN(req InitRequest) (string, error) {
	switch strings.ToLower(strings.TrimSpace(req.DatabaseType)) {
	case "", "sqlite":
		return buildSQLiteDSN(req.DatabasePath), nil
	case "postgres":
		sslMode := req.DatabaseSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			req.DatabaseUser,
			req.DatabasePassword,
			req.DatabaseHost,
			req.DatabasePort,
			req.DatabaseName,
			sslMode,
		), nil
	default:
		return "", fmt.Errorf("unsupported database type")
	}
}

// buildSQLiteDSN constructs a SQLite DSN with default parameters.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
	}, "&")
}

// TestDatabaseConnection validates that the DSN can connect and ping.
func TestDatabaseConnection(dsn string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return sqlDB.Ping()
}

// validateInitRequest normalizes and validates init input data.
func validateInitRequest(req *InitRequest) error {
	dbType := strings.ToLower(strings.TrimSpace(req.DatabaseType))
	if dbType == "" {
		dbType = "sqlite"
	}
	req.DatabaseType = dbType

	switch dbType {
	case "postgres":
		if strings.TrimSpace(req.DatabaseHost) == "" {
			return fmt.Errorf("database host is required")
		}
		if req.DatabasePort <= 0 {
			return fmt.Errorf("invalid database port")
		}
		if strings.TrimSpace(req.DatabaseUser) == "" {
			return fmt.Errorf("database username is required")
		}
		if strings.TrimSpace(req.DatabaseName) == "" {
			return fmt.Errorf("database name is required")
		}
	case "sqlite":
		if strings.TrimSpace(req.DatabasePath) == "" {
			req.DatabasePath = defaultSQLitePath
		}
	default:
		return fmt.Errorf("unsupported database type")
	}
	return validateCredentials(&req.Username, req.Password)
}

func validateCredentials(username *string, password string) error {
	*username = strings.TrimSpace(*username)
	if *username == "" {
		return fmt.Errorf("username is required")
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	DatabaseDSN string   `yaml:"database-dsn"`
	Debug       bool     `yaml:"debug"`
	JWT         jwtCfg   `yaml:"jwt"`
	Vault       vaultCfg `yaml:"vault"`
}

type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

type vaultCfg struct {
	Secret string `yaml:"secret"`
}

// generateSecret creates a random secret string.
func generateSecret() (string, error) {
	secret, err := security.GenerateRandomString(32)
	if err != nil {
		return "", err
	}
	return secret, nil
}

// WriteConfigFile writes the initial config file with fresh JWT and vault secrets.
func WriteConfigFile(configPath string, dsn string, port int) error {
	jwtSecret, errJWT := generateSecret()
	if errJWT != nil {
		return fmt.Errorf("generate jwt secret: %w", errJWT)
	}
	vaultSecret, errVault := generateSecret()
	if errVault != nil {
		return fmt.Errorf("generate vault secret: %w", errVault)
	}
	cfg := configFile{
		Port:        port,
		DatabaseDSN: dsn,
		JWT: jwtCfg{
			Secret: jwtSecret,
			Expiry: "720h",
		},
		Vault: vaultCfg{Secret: vaultSecret},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}
	return nil
}

// CreateFirstUser migrates the database at dsn and creates the first account.
func CreateFirstUser(dsn string, username, password string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	return CreateUserWithConn(conn, username, password)
}

// CreateUserWithConn creates an active user with a bcrypt-hashed password.
func CreateUserWithConn(conn *gorm.DB, username, password string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	now := time.Now().UTC()
	user := models.User{
		Username:  strings.TrimSpace(username),
		Password:  hashedPassword,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return fmt.Errorf("create user: username already taken")
		}
		return fmt.Errorf("create user: %w", errCreate)
	}
	return nil
}

// registerSetupRoutes lets the first visitor of an empty database create the initial account.
func registerSetupRoutes(engine *gin.Engine, conn *gorm.DB, initState *atomic.Bool) {
	if initState == nil {
		initState = &atomic.Bool{}
		initState.Store(true)
	}
	engine.GET("/v0/init/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, InitStatusResponse{Initialized: initState.Load()})
	})
	engine.POST("/v0/init/setup", func(c *gin.Context) {
		if initState.Load() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "system already initialized"})
			return
		}
		if ok, errInit := HasUserInitialized(conn); errInit != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check user status failed"})
			return
		} else if ok {
			initState.Store(true)
			c.JSON(http.StatusBadRequest, gin.H{"error": "system already initialized"})
			return
		}

		var req SetupRequest
		if errBind := c.ShouldBindJSON(&req); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		if errValidate := validateCredentials(&req.Username, req.Password); errValidate != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
			return
		}
		if errCreate := CreateUserWithConn(conn, req.Username, req.Password); errCreate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to create user: %v", errCreate)})
			return
		}
		initState.Store(true)
		c.JSON(http.StatusOK, gin.H{"message": "initialization successful"})
	})
}

// ErrInitCompleted signals that initialization finished and the server should restart.
var ErrInitCompleted = errors.New("init completed")

// corsMiddleware enables permissive CORS for the init server.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// initEngine serves the first-run endpoints. done is closed after a successful setup.
func initEngine(configPath string, port int, done chan<- struct{}) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	engine.GET("/v0/init/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, InitStatusResponse{Initialized: ConfigExists(configPath)})
	})

	engine.POST("/v0/init/setup", func(c *gin.Context) {
		if ConfigExists(configPath) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "system already initialized"})
			return
		}

		var req InitRequest
		if errBind := c.ShouldBindJSON(&req); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		if errValidate := validateInitRequest(&req); errValidate != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
			return
		}

		dsn, errBuild := BuildDSN(req)
		if errBuild != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBuild.Error()})
			return
		}
		if errTest := TestDatabaseConnection(dsn); errTest != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("database connection failed: %v", errTest)})
			return
		}
		if errWrite := WriteConfigFile(configPath, dsn, port); errWrite != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to write config: %v", errWrite)})
			return
		}
		if errUser := CreateFirstUser(dsn, req.Username, req.Password); errUser != nil {
			if errRemove := os.Remove(configPath); errRemove != nil {
				log.Errorf("remove config file error: %v", errRemove)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to create user: %v", errUser)})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "initialization successful"})
		go func() {
			time.Sleep(500 * time.Millisecond)
			close(done)
		}()
	})

	engine.NoRoute(func(c *gin.Context) {
		if ConfigExists(configPath) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "system initializing, please restart the server"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not initialized, POST /v0/init/setup first"})
	})
	return engine
}

// RunInitServer serves first-run setup until it completes or ctx ends.
func RunInitServer(ctx context.Context, cfg config.AppConfig, port int) error {
	gin.SetMode(gin.ReleaseMode)
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	initDone := make(chan struct{})

	addr := fmt.Sprintf(":%d", port)
	log.Infof("starting init server on %s (config not found at %s)", addr, configPath)

	srv := &http.Server{
		Addr:              addr,
		Handler:           initEngine(configPath, port, initDone),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-initDone:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("init server shutdown error: %v", errShutdown)
		}
	}()

	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}

	select {
	case <-initDone:
		return ErrInitCompleted
	default:
		return nil
	}
}
