package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ZM-BAD/dag-chat/internal/config"
)

// MongoDB wraps the document store connection backing MessageStore,
// grounded on GhiaC-Agentize/store/mongodb.go's connection-pool setup.
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
}

func NewMongoDB(cfg *config.Config) (*MongoDB, error) {
	if cfg.MessageStore.URI == "" {
		return nil, fmt.Errorf("MESSAGE_STORE_URI is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.MessageStore.URI).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(30 * time.Minute).
		SetRetryWrites(true).
		SetRetryReads(true).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to message store: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping message store: %w", err)
	}

	dbName := cfg.MessageStore.Database
	if dbName == "" {
		dbName = "dagchat"
	}

	return &MongoDB{client: client, database: client.Database(dbName)}, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
