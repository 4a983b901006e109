package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Stable classifications for storage failures. Callers branch on these
// instead of driver error types.
var (
	ErrNotFound          = errors.New("document not found")
	ErrDuplicate         = errors.New("duplicate key")
	ErrDatabaseTimeout   = errors.New("database timeout")
	ErrConnection        = errors.New("database connection failed")
	ErrUnauthorized      = errors.New("database unauthorized")
	ErrServerUnavailable = errors.New("database unavailable")
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
)

type Database struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewDatabase(uri, dbName string) (*Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(connectTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &Database{client: client, db: client.Database(dbName)}, nil
}

func (d *Database) GetCollection(name string) *mongo.Collection {
	return d.db.Collection(name)
}

func (d *Database) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return d.client.Ping(ctx, nil)
}

func (d *Database) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// HandleMongoError maps driver errors onto the stable classifications.
// Errors it does not recognize pass through unchanged.
func HandleMongoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	case mongo.IsTimeout(err):
		return ErrDatabaseTimeout
	case mongo.IsNetworkError(err):
		return ErrConnection
	case errors.Is(err, context.Canceled):
		return ErrServerUnavailable
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && (cmdErr.Code == 13 || cmdErr.Code == 18) {
		return ErrUnauthorized
	}
	return err
}
