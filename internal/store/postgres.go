// Package store holds the two logical stores spec.md calls for: a
// relational ConversationStore (this file's PostgresDB wrapper, grounded
// on Danor93-Articles-Chat's internal/database/db.go) and a document
// MessageStore (mongo.go / message.go, grounded on
// GhiaC-Agentize/store/mongodb.go).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ZM-BAD/dag-chat/internal/config"
	"github.com/ZM-BAD/dag-chat/internal/errors"
)

// PostgresDB holds the relational connection pool backing ConversationStore.
type PostgresDB struct {
	*sql.DB
}

// NewPostgresDB opens and pings the relational store, retrying connect
// attempts to ride out container startup ordering.
func NewPostgresDB(cfg *config.Config) (*PostgresDB, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New(errors.ErrInternalServer, "DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, errors.New(errors.ErrStoreError, fmt.Sprintf("open conversation store: %v", err))
	}

	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxConnections / 2)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if err := db.PingContext(ctx); err != nil {
			lastErr = err
			slog.Warn("conversation store connection attempt failed", "attempt", attempt, "error", err)
			if attempt < 3 {
				time.Sleep(2 * time.Second)
				continue
			}
		} else {
			lastErr = nil
			break
		}
	}

	if lastErr != nil {
		db.Close()
		return nil, errors.New(errors.ErrStoreError, fmt.Sprintf("connect to conversation store after 3 attempts: %v", lastErr))
	}

	slog.Info("connected to conversation store")
	return &PostgresDB{db}, nil
}

func (db *PostgresDB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
