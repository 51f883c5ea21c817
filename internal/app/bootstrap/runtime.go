package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medibook/internal/appointments"
	appconfig "github.com/wolfman30/medibook/internal/config"
	"github.com/wolfman30/medibook/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available; transcripts disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Store bundles the appointment store with the handles that must be closed
// on shutdown. AuditDB is nil when no database is configured.
type Store struct {
	Appointments appointments.Store
	AuditDB      *sql.DB
	pool         *pgxpool.Pool
}

// Close releases database handles.
func (s *Store) Close() {
	if s == nil {
		return
	}
	if s.AuditDB != nil {
		_ = s.AuditDB.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// BuildStore connects to Postgres when DATABASE_URL is set and falls back to
// the in-memory store otherwise. The audit trail shares the database through
// database/sql on the pgx driver.
func BuildStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	loc := cfg.Location()

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set; using in-memory appointment store")
		return &Store{Appointments: appointments.NewMemoryStore(loc)}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}

	auditDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: open audit db: %w", err)
	}
	auditDB.SetMaxOpenConns(4)

	logger.Info("postgres connected")
	return &Store{
		Appointments: appointments.NewPostgresStore(pool, loc),
		AuditDB:      auditDB,
		pool:         pool,
	}, nil
}
