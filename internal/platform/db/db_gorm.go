// Package db opens the PostgreSQL connection shared by the ingestion processes.
package db

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	companyadapters "market_ingestor/internal/feature/companies/adapters"
	tickadapters "market_ingestor/internal/feature/ticks/adapters"
)

const (
	defaultConnectTimeout = 60 * time.Second
	defaultMaxOpenConns   = 20
)

// Config holds the database connection settings.
type Config struct {
	User         string
	Password     string
	Name         string
	Host         string
	Port         string
	SSLMode      string
	InstanceName string // Cloud SQL instance; when set the unix socket is used instead of Host/Port

	ConnectTimeout time.Duration
	MaxOpenConns   int
	RunMigrations  bool
}

// LoadConfigFromEnv reads the database settings from environment variables.
func LoadConfigFromEnv() Config {
	cfg := Config{
		User:           os.Getenv("DB_USER"),
		Password:       os.Getenv("DB_PASSWORD"),
		Name:           os.Getenv("DB_NAME"),
		Host:           os.Getenv("DB_HOST"),
		Port:           os.Getenv("DB_PORT"),
		SSLMode:        os.Getenv("DB_SSLMODE"),
		InstanceName:   os.Getenv("INSTANCE_CONNECTION_NAME"),
		ConnectTimeout: defaultConnectTimeout,
		MaxOpenConns:   defaultMaxOpenConns,
		RunMigrations:  os.Getenv("RUN_MIGRATIONS") == "true",
	}
	if cfg.Port == "" {
		cfg.Port = "5432"
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if v, err := time.ParseDuration(os.Getenv("DB_CONNECT_TIMEOUT")); err == nil && v > 0 {
		cfg.ConnectTimeout = v
	}
	if v, err := strconv.Atoi(os.Getenv("DB_MAX_OPEN_CONNS")); err == nil && v > 0 {
		cfg.MaxOpenConns = v
	}
	return cfg
}

// BuildDSN returns the gorm postgres DSN for cfg. Sessions always run in UTC.
func BuildDSN(cfg Config) string {
	host, port := cfg.Host, cfg.Port
	if cfg.InstanceName != "" {
		host = "/cloudsql/" + cfg.InstanceName
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		host, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
	if cfg.InstanceName == "" && port != "" {
		dsn += " port=" + port
	}
	return dsn
}

// Opener opens a gorm connection for a DSN.
type Opener func(dsn string) (*gorm.DB, error)

// ConnectWithRetry calls opener with exponential backoff until it succeeds or timeout elapses.
func ConnectWithRetry(dsn string, timeout time.Duration, opener Opener) (*gorm.DB, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = timeout
	b.Reset()

	db, err := backoff.RetryNotifyWithData(func() (*gorm.DB, error) {
		return opener(dsn)
	}, b, func(err error, next time.Duration) {
		slog.Warn("DB connect failed, retrying", "error", err, "retry_in", next)
	})
	if err != nil {
		return nil, fmt.Errorf("DB connect failed after %s: %w", timeout, err)
	}
	return db, nil
}

func openPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	// gorm.Open は接続を確立しないことがあるため Ping で確認する
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenDB connects to PostgreSQL using cfg and runs migrations when enabled.
func OpenDB(cfg Config) (*gorm.DB, error) {
	db, err := ConnectWithRetry(BuildDSN(cfg), cfg.ConnectTimeout, openPostgres)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	if cfg.RunMigrations {
		if err := Migrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}
	slog.Info("DB connection successful", "host", cfg.Host, "database", cfg.Name)
	return db, nil
}

// Migrate creates or updates the tables owned by the ingestor.
// user_requests belongs to the CRUD backend and is not migrated here.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&companyadapters.CompanySymbolModel{},
		&tickadapters.TickModel{},
	)
}
