package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/colmap/internal/domain"
	"github.com/rpattn/colmap/internal/mapping"
)

func klanten(t *testing.T) domain.TargetSchema {
	t.Helper()
	schema, ok := domain.BuiltinSchema(domain.SchemaKlanten)
	require.True(t, ok)
	return schema
}

func mappedState(t *testing.T) mapping.State {
	t.Helper()
	ds, err := domain.NewSourceDataset(
		[]string{"Name", "first_name"},
		[]domain.Record{{"Name": "abc", "first_name": "x"}, {"Name": "def"}},
		domain.Provenance{FileName: "people.csv", TotalRows: 2},
	)
	require.NoError(t, err)

	s := mapping.NewState(klanten(t)).LoadDataset(ds).
		SelectSource("Name").SelectTarget("firstname").
		SelectSource("Name").SelectTarget("lastname").
		SelectSource("first_name").SelectTarget("email")
	s = s.Disconnect(domain.ConnectionKey{Source: "Name", Ordinal: 0})
	return s.SetTransform(domain.ConnectionKey{Source: "Name", Ordinal: 1}, "value.toUpperCase()").
		SetSourceFilter("na")
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) { return "", errors.New("offline") }
func (failingStore) Set(context.Context, string, string) error   { return errors.New("quota exceeded") }
func (failingStore) Delete(context.Context, string) error        { return errors.New("offline") }

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	persister := NewPersister(store)
	original := mappedState(t)

	require.NoError(t, persister.Save(ctx, original))

	snap, ok := persister.Load(ctx)
	require.True(t, ok)
	restored, err := snap.State(domain.TargetSchema{Name: "unused"})
	require.NoError(t, err)

	assert.Equal(t, original.Edges(), restored.Edges())
	assert.Equal(t, original.NextOrdinal, restored.NextOrdinal)
	assert.Equal(t, original.SourceColumns(), restored.SourceColumns())
	assert.Equal(t, original.Dataset.Rows, restored.Dataset.Rows)
	assert.Equal(t, original.Dataset.Provenance, restored.Dataset.Provenance)
	assert.Equal(t, domain.SchemaKlanten, restored.Schema.Name)
	assert.Empty(t, restored.SourceFilter)
}

func TestSaveLoadRoundTripKeepsTypedCells(t *testing.T) {
	ctx := context.Background()
	persister := NewPersister(NewMemoryStore())
	ds, err := domain.NewSourceDataset(
		[]string{"Qty", "Active", "Price", "Note"},
		[]domain.Record{{"Qty": 5, "Active": true, "Price": 1.5, "Note": nil}, {"Qty": 2.0}},
		domain.Provenance{FileName: "stock.csv", TotalRows: 2},
	)
	require.NoError(t, err)
	assert.Equal(t, []domain.Record{
		{"Qty": "5", "Active": "true", "Price": "1.5", "Note": ""},
		{"Qty": "2"},
	}, ds.Rows)

	original := mapping.NewState(klanten(t)).LoadDataset(ds).SelectSource("Qty").SelectTarget("postal")
	require.NoError(t, persister.Save(ctx, original))

	snap, ok := persister.Load(ctx)
	require.True(t, ok)
	restored, err := snap.State(klanten(t))
	require.NoError(t, err)
	assert.Equal(t, original.Dataset.Rows, restored.Dataset.Rows)
}

func TestSaveEmptyStateDeletesKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	persister := NewPersister(store)
	require.NoError(t, persister.Save(ctx, mappedState(t)))

	require.NoError(t, persister.Save(ctx, mapping.NewState(klanten(t))))

	_, err := store.Get(ctx, DefaultKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadEmptySnapshotClearsStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, DefaultKey, `{"edges":[],"sourceColumns":[],"connectionCounter":4}`))

	snap, ok := NewPersister(store).Load(ctx)

	assert.False(t, ok)
	assert.Nil(t, snap)
	_, err := store.Get(ctx, DefaultKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadMissingOrBrokenState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, ok := NewPersister(store).Load(ctx)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, DefaultKey, "{not json"))
	_, ok = NewPersister(store, WithLogger(func(string, ...any) {})).Load(ctx)
	assert.False(t, ok)
}

func TestLegacySnapshotSplitsAtLastUnderscore(t *testing.T) {
	blob := `{
		"mapping": {"first_name_3": "firstname", "Mail_1": "email", "broken": "city"},
		"columnTransforms": {"first_name_3": "value.trim()"},
		"sourceColumns": ["first_name", "Mail"],
		"sourceData": [{"first_name": " a ", "Mail": "m"}],
		"connectionCounter": 4
	}`

	snap, err := Decode(blob)
	require.NoError(t, err)

	assert.Equal(t, []EdgeEntry{
		{Source: "Mail", Ordinal: 1, Target: "email"},
		{Source: "first_name", Ordinal: 3, Target: "firstname"},
	}, snap.Edges)
	require.Len(t, snap.Transforms, 1)
	assert.Equal(t, "first_name", snap.Transforms[0].Source)

	state, err := snap.State(klanten(t))
	require.NoError(t, err)
	edge, ok := state.Edge(domain.ConnectionKey{Source: "first_name", Ordinal: 3})
	require.True(t, ok)
	assert.Equal(t, "value.trim()", edge.Transform)
	assert.Equal(t, 4, state.NextOrdinal)
}

func TestFailingStoreIsNotFatal(t *testing.T) {
	ctx := context.Background()
	var logged int
	persister := NewPersister(failingStore{}, WithLogger(func(string, ...any) { logged++ }))

	assert.Error(t, persister.Save(ctx, mappedState(t)))
	_, ok := persister.Load(ctx)
	assert.False(t, ok)
	assert.Equal(t, 2, logged)
}

func TestListenerPersistsMachineChanges(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	persister := NewPersister(store, WithKey("test-session"))

	machine := mapping.NewMachine(mapping.NewState(klanten(t)))
	machine.Subscribe(persister.Listener())

	ds, err := domain.NewSourceDataset([]string{"Name"}, []domain.Record{{"Name": "abc"}}, domain.Provenance{})
	require.NoError(t, err)
	machine.LoadDataset(ds)
	machine.SelectSource("Name")
	machine.SelectTarget("firstname")

	blob, err := store.Get(ctx, "test-session")
	require.NoError(t, err)
	snap, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, []EdgeEntry{{Source: "Name", Ordinal: 0, Target: "firstname"}}, snap.Edges)
	assert.Equal(t, 1, snap.ConnectionCounter)

	machine.Reset()
	_, err = store.Get(ctx, "test-session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreWritesAtomically(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, DefaultKey)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, DefaultKey, `{"a":1}`))
	require.NoError(t, store.Set(ctx, DefaultKey, `{"a":2}`))
	value, err := store.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, value)

	require.NoError(t, store.Delete(ctx, DefaultKey))
	require.NoError(t, store.Delete(ctx, DefaultKey))
	_, err = store.Get(ctx, DefaultKey)
	assert.ErrorIs(t, err, ErrNotFound)
}
