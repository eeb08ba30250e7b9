package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectDB creates the PostgreSQL connection pool used for lead and
// message-log persistence.
func ConnectDB() (*pgxpool.Pool, error) {
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		getEnv("DB_USER", "site"),
		getEnv("DB_PASSWORD", ""),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "site"),
		getEnv("DB_SSLMODE", "disable"),
	)

	log.Printf("[DB] Connecting to database: host=%s port=%s db=%s user=%s",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "site"),
		getEnv("DB_USER", "site"),
	)

	maxConns := getEnvAsInt("DB_MAX_CONNS", 10)
	minConns := getEnvAsInt("DB_MIN_CONNS", 2)
	maxConnLifetime := getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	maxConnIdleTime := getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute)

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Printf("[DB] Failed to parse config: %v", err)
		return nil, err
	}

	poolConfig.MaxConns = int32(maxConns)
	poolConfig.MinConns = int32(minConns)
	poolConfig.MaxConnLifetime = maxConnLifetime
	poolConfig.MaxConnIdleTime = maxConnIdleTime
	poolConfig.HealthCheckPeriod = 1 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	log.Printf("[DB] Pool config: max_conns=%d min_conns=%d max_lifetime=%s max_idle_time=%s",
		maxConns, minConns, maxConnLifetime, maxConnIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Printf("[DB] Failed to create pool: %v", err)
		return nil, err
	}

	if err := dbpool.Ping(ctx); err != nil {
		log.Printf("[DB] Failed to ping database: %v", err)
		dbpool.Close()
		return nil, err
	}

	log.Printf("[DB] Connected. Stats: idle=%d active=%d total=%d max=%d",
		dbpool.Stat().IdleConns(),
		dbpool.Stat().AcquiredConns(),
		dbpool.Stat().TotalConns(),
		dbpool.Stat().MaxConns(),
	)

	return dbpool, nil
}
