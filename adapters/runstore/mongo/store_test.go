package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/coriolis-labs/conductor/run"
)

// fakeCollection is an in-memory stand-in for collection, keyed by run_id,
// mirroring the teacher's own store_test.go style of mocking the client
// boundary rather than talking to a live MongoDB.
type fakeCollection struct {
	docs           map[string]bson.M
	indexCreated   bool
	forceFindErr   error
	forceUpdateErr error
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: map[string]bson.M{}}
}

func (f *fakeCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	if f.forceFindErr != nil {
		return fakeSingleResult{err: f.forceFindErr}
	}
	runID, _ := filter.(bson.M)["run_id"].(string)
	doc, ok := f.docs[runID]
	if !ok {
		return fakeSingleResult{err: mongodriver.ErrNoDocuments}
	}
	return fakeSingleResult{doc: doc}
}

func (f *fakeCollection) UpdateOne(ctx context.Context, filter any, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	if f.forceUpdateErr != nil {
		return nil, f.forceUpdateErr
	}
	runID, _ := filter.(bson.M)["run_id"].(string)
	upd, _ := update.(bson.M)

	existing, found := f.docs[runID]
	if !found {
		existing = bson.M{}
		if onInsert, ok := upd["$setOnInsert"].(bson.M); ok {
			for k, v := range onInsert {
				existing[k] = v
			}
		}
	}
	if set, ok := upd["$set"].(bson.M); ok {
		for k, v := range set {
			existing[k] = v
		}
	}
	f.docs[runID] = existing
	return &mongodriver.UpdateResult{}, nil
}

func (f *fakeCollection) Indexes() indexView {
	return fakeIndexView{f}
}

type fakeIndexView struct {
	f *fakeCollection
}

func (v fakeIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	v.f.indexCreated = true
	return "run_id_1", nil
}

type fakeSingleResult struct {
	doc bson.M
	err error
}

func (r fakeSingleResult) Decode(val any) error {
	if r.err != nil {
		return r.err
	}
	doc, ok := val.(*runDocument)
	if !ok {
		return errors.New("mongo: unsupported decode target in test fake")
	}
	if s, ok := r.doc["run_id"].(string); ok {
		doc.RunID = s
	}
	if s, ok := r.doc["thread_id"].(string); ok {
		doc.ThreadID = s
	}
	if s, ok := r.doc["status"].(run.Status); ok {
		doc.Status = s
	}
	if tm, ok := r.doc["started_at"].(time.Time); ok {
		doc.StartedAt = tm
	}
	if tm, ok := r.doc["updated_at"].(time.Time); ok {
		doc.UpdatedAt = tm
	}
	if labels, ok := r.doc["labels"].(map[string]string); ok {
		doc.Labels = labels
	}
	if s, ok := r.doc["error_type"].(string); ok {
		doc.ErrorType = s
	}
	return nil
}

func TestNewCreatesUniqueRunIDIndex(t *testing.T) {
	fc := newFakeCollection()
	s, err := newStore(fc, time.Second)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, fc.indexCreated)
}

func TestUpsertSetsStartedAtOnlyOnInsert(t *testing.T) {
	fc := newFakeCollection()
	s, err := newStore(fc, time.Second)
	require.NoError(t, err)

	firstStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	err = s.Upsert(context.Background(), run.Record{
		RunID:     "run-1",
		ThreadID:  "thread-1",
		Status:    run.StatusRunning,
		StartedAt: firstStart,
		UpdatedAt: firstStart,
	})
	require.NoError(t, err)

	laterUpdate := firstStart.Add(time.Minute)
	secondStart := firstStart.Add(time.Hour) // should be ignored: not the first insert
	err = s.Upsert(context.Background(), run.Record{
		RunID:     "run-1",
		ThreadID:  "thread-1",
		Status:    run.StatusCompleted,
		StartedAt: secondStart,
		UpdatedAt: laterUpdate,
	})
	require.NoError(t, err)

	got, err := s.Load(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, got.Status)
	assert.True(t, got.StartedAt.Equal(firstStart), "started_at must not change on subsequent upserts")
	assert.True(t, got.UpdatedAt.Equal(laterUpdate))
}

func TestUpsertRequiresRunID(t *testing.T) {
	fc := newFakeCollection()
	s, err := newStore(fc, time.Second)
	require.NoError(t, err)

	err = s.Upsert(context.Background(), run.Record{ThreadID: "thread-1"})
	assert.Error(t, err)
}

func TestLoadReturnsErrNotFoundWhenAbsent(t *testing.T) {
	fc := newFakeCollection()
	s, err := newStore(fc, time.Second)
	require.NoError(t, err)

	_, err = s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, run.ErrNotFound)
}

func TestLoadRequiresRunID(t *testing.T) {
	fc := newFakeCollection()
	s, err := newStore(fc, time.Second)
	require.NoError(t, err)

	_, err = s.Load(context.Background(), "")
	assert.Error(t, err)
}

func TestUpsertPreservesLabelsAndErrorType(t *testing.T) {
	fc := newFakeCollection()
	s, err := newStore(fc, time.Second)
	require.NoError(t, err)

	err = s.Upsert(context.Background(), run.Record{
		RunID:     "run-2",
		ThreadID:  "thread-2",
		Status:    run.StatusFailed,
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
		Labels:    map[string]string{"env": "staging"},
		ErrorType: "timeout",
	})
	require.NoError(t, err)

	got, err := s.Load(context.Background(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, "timeout", got.ErrorType)
	assert.Equal(t, map[string]string{"env": "staging"}, got.Labels)
}
