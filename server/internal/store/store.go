// Package store is a thin typed wrapper around the document store's agents,
// jobs, and runs collections. It owns nothing about scheduling, registry, or
// ingestion policy — it only exposes Find/FindOne/InsertOne/UpdateOne/
// UpdateMany/CountDocuments and creates the collections' unique indexes on
// first use.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// DatabaseName is the fixed database name the coordinator opens, matching
// the name the original job-dispatch core persisted under.
const DatabaseName = "rust-action-dispatch"

const (
	CollectionAgents = "agents"
	CollectionJobs   = "jobs"
	CollectionRuns   = "runs"
)

// Store opens the three collections the core operates on and guarantees
// their unique indexes exist.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger

	Agents *Collection[AgentDoc]
	Jobs   *Collection[JobDoc]
	Runs   *Collection[RunDoc]
}

// Connect dials uri, pings the server, and prepares the three collections
// with their unique indexes. uri defaults to mongodb://localhost:27017 via
// envOrDefault at the call site (see cmd/coordinator).
func Connect(ctx context.Context, uri string, logger *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	db := client.Database(DatabaseName)
	s := &Store{
		client: client,
		db:     db,
		logger: logger.Named("store"),
		Agents: newCollection[AgentDoc](db.Collection(CollectionAgents)),
		Jobs:   newCollection[JobDoc](db.Collection(CollectionJobs)),
		Runs:   newCollection[RunDoc](db.Collection(CollectionRuns)),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("store: ensure indexes: %w", err)
	}
	return s, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("store: disconnect: %w", err)
	}
	return nil
}

// ensureIndexes creates the unique indexes named in the data model,
// idempotently: CreateOne on an index that already exists with the same
// keys and options is a no-op.
func (s *Store) ensureIndexes(ctx context.Context) error {
	if err := createUniqueIndex(ctx, s.Agents.coll, bson.D{{Key: "name", Value: 1}}); err != nil {
		return fmt.Errorf("agents.name: %w", err)
	}
	if err := createUniqueIndex(ctx, s.Agents.coll, bson.D{{Key: "hostname", Value: 1}, {Key: "port", Value: 1}}); err != nil {
		return fmt.Errorf("agents.(hostname,port): %w", err)
	}
	if err := createUniqueIndex(ctx, s.Jobs.coll, bson.D{{Key: "name", Value: 1}}); err != nil {
		return fmt.Errorf("jobs.name: %w", err)
	}
	s.logger.Info("indexes ready")
	return nil
}

func createUniqueIndex(ctx context.Context, coll *mongo.Collection, keys bson.D) error {
	model := mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(true),
	}
	_, err := coll.Indexes().CreateOne(ctx, model)
	return err
}
