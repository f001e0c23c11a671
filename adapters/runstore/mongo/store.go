// Package mongo implements run.Store over MongoDB (SPEC_FULL §11.6),
// grounded on the teacher's features/run/mongo/clients/mongo package: an
// upsert-by-run-id document store with a started_at set only on insert. The
// collection/indexView/singleResult interfaces below mirror the teacher's
// wrapper pattern so Store can be exercised against a hand-written fake
// instead of a live MongoDB connection.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/coriolis-labs/conductor/run"
)

const defaultCollection = "conductor_runs"

// collection is the slice of *mongodriver.Collection that Store depends on.
type collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	UpdateOne(ctx context.Context, filter any, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

// mongoCollection adapts a real *mongodriver.Collection to collection.
type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return c.coll.FindOne(ctx, filter, opts...)
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}

// Options configures the Mongo-backed run store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements run.Store by delegating to a Mongo collection.
type Store struct {
	coll    collection
	timeout time.Duration
}

var _ run.Store = (*Store)(nil)

// New returns a Store backed by opts.Client.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
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
	return newStore(coll, timeout)
}

// newStore builds a Store against any collection implementation, letting
// tests supply a fake in place of a live MongoDB connection.
func newStore(coll collection, timeout time.Duration) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := coll.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	return &Store{coll: coll, timeout: timeout}, nil
}

// Upsert stores record, setting StartedAt only on first insert (spec
// SPEC_FULL §11.6: one document per run across its status transitions).
func (s *Store) Upsert(ctx context.Context, record run.Record) error {
	if record.RunID == "" {
		return errors.New("mongo: run id is required")
	}
	now := time.Now().UTC()
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	startedAt := record.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"run_id": record.RunID}
	update := bson.M{
		// started_at is set only via $setOnInsert: MongoDB rejects an update
		// that targets the same field path from both $set and $setOnInsert,
		// so it must never also appear in the $set document below.
		"$set": fromRecord(record),
		"$setOnInsert": bson.M{
			"started_at": startedAt.UTC(),
		},
	}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// Load retrieves the run record for runID, or run.ErrNotFound if absent.
func (s *Store) Load(ctx context.Context, runID string) (run.Record, error) {
	if runID == "" {
		return run.Record{}, errors.New("mongo: run id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc runDocument
	err := s.coll.FindOne(ctx, bson.M{"run_id": runID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return run.Record{}, run.ErrNotFound
	}
	if err != nil {
		return run.Record{}, err
	}
	return doc.toRecord(), nil
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

// runDocument is the on-disk shape read back by Load. started_at is written
// exclusively through $setOnInsert (see Upsert), never through $set, so
// fromRecord below builds a plain bson.M rather than marshaling this struct
// for the $set clause.
type runDocument struct {
	RunID     string            `bson:"run_id"`
	ThreadID  string            `bson:"thread_id"`
	Status    run.Status        `bson:"status"`
	StartedAt time.Time         `bson:"started_at"`
	UpdatedAt time.Time         `bson:"updated_at"`
	Labels    map[string]string `bson:"labels,omitempty"`
	ErrorType string            `bson:"error_type,omitempty"`
}

// fromRecord builds the $set clause for Upsert, deliberately omitting
// started_at (owned by $setOnInsert).
func fromRecord(r run.Record) bson.M {
	set := bson.M{
		"run_id":     r.RunID,
		"thread_id":  r.ThreadID,
		"status":     r.Status,
		"updated_at": r.UpdatedAt.UTC(),
	}
	if len(r.Labels) > 0 {
		set["labels"] = cloneLabels(r.Labels)
	}
	if r.ErrorType != "" {
		set["error_type"] = r.ErrorType
	}
	return set
}

func (doc runDocument) toRecord() run.Record {
	return run.Record{
		RunID:     doc.RunID,
		ThreadID:  doc.ThreadID,
		Status:    doc.Status,
		StartedAt: doc.StartedAt,
		UpdatedAt: doc.UpdatedAt,
		Labels:    cloneLabels(doc.Labels),
		ErrorType: doc.ErrorType,
	}
}

func cloneLabels(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
