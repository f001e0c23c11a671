// Package mongostore implements checkpoint.Store over MongoDB (spec §6,
// SPEC_FULL §11.3): one document per thread, holding the latest opaque
// snapshot as binary. Grounded on the teacher's
// features/run/mongo/clients/mongo/client.go — the same
// collection/singleResult wrapper-interface boundary used there for
// testability is reused here.
package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/coriolis-labs/conductor/checkpoint"
)

const defaultCollection = "conductor_checkpoints"

// collection is the slice of *mongodriver.Collection that Store depends on.
type collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	UpdateOne(ctx context.Context, filter any, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
}

type singleResult interface {
	Decode(val any) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return c.coll.FindOne(ctx, filter, opts...)
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

// Options configures the Mongo-backed checkpoint store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements checkpoint.Store by delegating to a Mongo collection.
// Unlike adapters/runstore/mongo, it creates no explicit index: _id is already
// unique per document, and thread_id is used directly as the document _id.
type Store struct {
	coll    collection
	timeout time.Duration
}

var _ checkpoint.Store = (*Store)(nil)

// New returns a Store backed by opts.Client.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore: database name is required")
	}
	collectionName := opts.Collection
	if collectionName == "" {
		collectionName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	coll := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(collectionName)}
	return &Store{coll: coll, timeout: timeout}, nil
}

// Get implements checkpoint.Store.
func (s *Store) Get(ctx context.Context, threadID string) ([]byte, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc checkpointDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": threadID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc.Snapshot, true, nil
}

// Put implements checkpoint.Store. The whole document is replaced on every
// write; Mongo's own write atomicity per document gives per-thread atomicity
// (spec §6: "per-thread writes are atomic").
func (s *Store) Put(ctx context.Context, threadID string, snapshot []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cp := make([]byte, len(snapshot))
	copy(cp, snapshot)

	filter := bson.M{"_id": threadID}
	update := bson.M{"$set": bson.M{"snapshot": cp, "updated_at": time.Now().UTC()}}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

type checkpointDocument struct {
	ThreadID  string    `bson:"_id"`
	Snapshot  []byte    `bson:"snapshot"`
	UpdatedAt time.Time `bson:"updated_at"`
}
