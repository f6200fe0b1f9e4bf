package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestArchiveWritesDatedEnvelope(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	clock := fixedClock{now: time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)}
	a := New(store, "/raw/", clock)

	records := []disclosure.RawRecord{
		{Source: "api", Fields: map[string]string{disclosure.FieldID: "2"}},
		{Source: "api", Fields: map[string]string{disclosure.FieldID: "1"}},
	}
	uri, err := a.Archive(context.Background(), "cycle-1", records)
	require.NoError(t, err)
	assert.Equal(t, "memory://raw/2026/10/19/cycle-1.json", uri)

	body, ok := store.Object("raw/2026/10/19/cycle-1.json")
	require.True(t, ok)

	var got batch
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "cycle-1", got.CycleID)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, "2", got.Records[0].Fields[disclosure.FieldID])
	assert.True(t, got.ArchivedAt.Equal(clock.now))
}

func TestArchiveWithoutPrefix(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	a := New(store, "", fixedClock{now: time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)})
	uri, err := a.Archive(context.Background(), "c", nil)
	require.NoError(t, err)
	assert.Equal(t, "memory://2026/01/02/c.json", uri)
	assert.Equal(t, 1, store.Len())
}

func TestArchivePropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	a := New(failingStore{}, "raw", fixedClock{now: time.Now()})
	_, err := a.Archive(context.Background(), "c", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put batch")
}
