package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotFound is returned by FindOne when no document matches the filter.
var ErrNotFound = errors.New("store: record not found")

// Collection is a typed handle over one document-store collection. Filters
// and updates are document literals (bson.M) with operator keys such as
// $and, $in, $lt, $set, $addToSet — the same shape the core specifies.
type Collection[T any] struct {
	coll *mongo.Collection
}

func newCollection[T any](coll *mongo.Collection) *Collection[T] {
	return &Collection[T]{coll: coll}
}

// Find returns every document matching filter.
func (c *Collection[T]) Find(ctx context.Context, filter any) ([]T, error) {
	cur, err := c.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer cur.Close(ctx)

	var docs []T
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("find: decode: %w", err)
	}
	return docs, nil
}

// FindOne returns the first document matching filter, or ErrNotFound.
func (c *Collection[T]) FindOne(ctx context.Context, filter any) (T, error) {
	var doc T
	err := c.coll.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return doc, ErrNotFound
		}
		return doc, fmt.Errorf("find one: %w", err)
	}
	return doc, nil
}

// InsertOne inserts doc. A driver error is wrapped with %w, so callers can
// still detect a unique-index violation with IsDuplicateKeyError, per the
// registration-dedup contract in §4.5.
func (c *Collection[T]) InsertOne(ctx context.Context, doc T) error {
	_, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("insert one: %w", err)
	}
	return nil
}

// UpdateOne applies update to the first document matching filter. Returns
// the number of matched documents so callers can distinguish a no-op update
// from a missing document.
func (c *Collection[T]) UpdateOne(ctx context.Context, filter, update any) (matched int64, err error) {
	res, err := c.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("update one: %w", err)
	}
	return res.MatchedCount, nil
}

// UpdateMany applies update to every document matching filter. Returns the
// number of matched documents.
func (c *Collection[T]) UpdateMany(ctx context.Context, filter, update any) (matched int64, err error) {
	res, err := c.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("update many: %w", err)
	}
	return res.MatchedCount, nil
}

// CountDocuments returns the number of documents matching filter.
func (c *Collection[T]) CountDocuments(ctx context.Context, filter any) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// IsDuplicateKeyError reports whether err is a unique-index violation, used
// by the Completion Ingestor to detect and ignore a duplicate agent
// registration without escalating it.
func IsDuplicateKeyError(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
