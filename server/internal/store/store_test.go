package store

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestErrNotFoundIsDistinctFromDriverError(t *testing.T) {
	if errors.Is(ErrNotFound, mongo.ErrNoDocuments) {
		t.Fatal("ErrNotFound must be this package's own sentinel, not an alias of the driver's")
	}
}

func TestIsDuplicateKeyErrorOnNil(t *testing.T) {
	if IsDuplicateKeyError(nil) {
		t.Fatal("nil error must not be reported as a duplicate key error")
	}
}

func TestDatabaseAndCollectionNames(t *testing.T) {
	if DatabaseName != "rust-action-dispatch" {
		t.Errorf("DatabaseName = %q, want %q", DatabaseName, "rust-action-dispatch")
	}
	if CollectionAgents != "agents" || CollectionJobs != "jobs" || CollectionRuns != "runs" {
		t.Errorf("unexpected collection names: %q %q %q", CollectionAgents, CollectionJobs, CollectionRuns)
	}
}
