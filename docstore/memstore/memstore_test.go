package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/fearlessjoy/fridaynz/apperrors"
	"github.com/fearlessjoy/fridaynz/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type widget struct {
	ID     string   `bson:"_id,omitempty"`
	Name   string   `bson:"name"`
	Rank   int32    `bson:"rank"`
	Active bool     `bson:"active"`
	Tags   []string `bson:"tags,omitempty"`
}

func seedWidgets(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	widgets := []widget{
		{ID: "w1", Name: "alpha", Rank: 3, Active: true, Tags: []string{"red", "blue"}},
		{ID: "w2", Name: "bravo", Rank: 1, Active: false, Tags: []string{"red"}},
		{ID: "w3", Name: "charlie", Rank: 2, Active: true},
	}
	for _, w := range widgets {
		if err := s.Set(ctx, "widgets", w.ID, w); err != nil {
			t.Fatalf("failed to seed widget: %v", err)
		}
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "widgets", "w1", widget{Name: "alpha", Rank: 3}))

	var got widget
	require.NoError(t, s.Get(ctx, "widgets", "w1", &got))
	assert.Equal(t, "w1", got.ID, "_id follows the Set key")
	assert.Equal(t, "alpha", got.Name)
}

func TestGetMissing(t *testing.T) {
	s := New()
	var got widget
	err := s.Get(context.Background(), "widgets", "nope", &got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdatePatchesFields(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedWidgets(t, s)

	require.NoError(t, s.Update(ctx, "widgets", "w2", map[string]interface{}{"active": true}))

	var got widget
	require.NoError(t, s.Get(ctx, "widgets", "w2", &got))
	assert.True(t, got.Active)
	assert.Equal(t, "bravo", got.Name, "untouched fields survive a patch")
}

func TestUpdateMissing(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), "widgets", "nope", map[string]interface{}{"active": true})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedWidgets(t, s)

	require.NoError(t, s.Delete(ctx, "widgets", "w1"))
	var got widget
	assert.ErrorIs(t, s.Get(ctx, "widgets", "w1", &got), apperrors.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "widgets", "w1"), apperrors.ErrNotFound)
}

func TestQueryFiltersAndOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedWidgets(t, s)

	var active []widget
	err := s.Query(ctx, "widgets",
		[]docstore.Filter{{Field: "active", Op: "!=", Value: false}},
		&docstore.Order{Field: "rank", Desc: false}, &active)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "w3", active[0].ID)
	assert.Equal(t, "w1", active[1].ID)

	var tagged []widget
	err = s.Query(ctx, "widgets",
		[]docstore.Filter{{Field: "tags", Op: "array-contains", Value: "red"}},
		&docstore.Order{Field: "name", Desc: true}, &tagged)
	require.NoError(t, err)
	require.Len(t, tagged, 2)
	assert.Equal(t, "bravo", tagged[0].Name)
	assert.Equal(t, "alpha", tagged[1].Name)

	var none []widget
	err = s.Query(ctx, "widgets",
		[]docstore.Filter{{Field: "name", Op: "==", Value: "delta"}}, nil, &none)
	require.NoError(t, err)
	assert.Empty(t, none, "no match is an empty list, not an error")
}

func TestSubscribe_InitialAndIncrementalSnapshots(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedWidgets(t, s)

	var snapshots [][]bson.Raw
	cancel, err := s.Subscribe(ctx, "widgets",
		[]docstore.Filter{{Field: "active", Op: "==", Value: true}},
		&docstore.Order{Field: "rank", Desc: true},
		func(docs []bson.Raw) { snapshots = append(snapshots, docs) },
		func(err error) { t.Errorf("unexpected stream error: %v", err) })
	require.NoError(t, err)
	defer cancel()

	require.Len(t, snapshots, 1, "initial snapshot delivered on subscribe")
	assert.Len(t, snapshots[0], 2)

	// Every successful write pushes a fresh full result set.
	require.NoError(t, s.Update(ctx, "widgets", "w2", map[string]interface{}{"active": true}))
	require.Len(t, snapshots, 2)
	assert.Len(t, snapshots[1], 3)

	cancel()
	require.NoError(t, s.Delete(ctx, "widgets", "w2"))
	assert.Len(t, snapshots, 2, "cancelled subscriptions receive nothing")
}

func TestFailNext_FailsOnceThenClears(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedWidgets(t, s)

	injected := errors.New("connection refused")
	s.FailNext("get", injected)

	var got widget
	assert.ErrorIs(t, s.Get(ctx, "widgets", "w1", &got), injected)
	assert.NoError(t, s.Get(ctx, "widgets", "w1", &got))
}

func TestFailedWriteDoesNotNotifySubscribers(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedWidgets(t, s)

	calls := 0
	cancel, err := s.Subscribe(ctx, "widgets", nil, nil,
		func([]bson.Raw) { calls++ }, nil)
	require.NoError(t, err)
	defer cancel()
	require.Equal(t, 1, calls)

	s.FailNext("update", errors.New("connection refused"))
	require.Error(t, s.Update(ctx, "widgets", "w1", map[string]interface{}{"rank": 9}))
	assert.Equal(t, 1, calls, "a failed write must not fan out a snapshot")
}

func TestRefreshConnectionCounts(t *testing.T) {
	s := New()
	assert.True(t, s.RefreshConnection(context.Background()))
	assert.True(t, s.RefreshConnection(context.Background()))
	assert.Equal(t, 2, s.RefreshCount())
}
