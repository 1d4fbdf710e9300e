package refmap

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/aiomigrate/internal/domain"
)

func TestSetKeepsFirstMapping(t *testing.T) {
	m := New()
	key := Key{Endpoint: "1", Kind: domain.ObjectPolicy, Ref: "Base Policy"}

	assert.Equal(t, int64(10), m.Set(key, 10))
	assert.Equal(t, int64(10), m.Set(key, 20))

	id, ok := m.Get(key)
	require.True(t, ok)
	assert.Equal(t, int64(10), id)
	assert.Equal(t, 1, m.Len())
}

func TestGetOrCreateCallsCreateOncePerKey(t *testing.T) {
	m := New()
	key := ContainerKey("1", domain.ContainerKindGroup, domain.Path{"Root", "Linux"})

	var calls atomic.Int32
	release := make(chan struct{})
	create := func() (int64, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int64, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := m.GetOrCreate(key, create)
			assert.NoError(t, err)
			results[i] = id
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, id := range results {
		assert.Equal(t, int64(42), id)
	}
}

func TestGetOrCreateFailureRecordsNothing(t *testing.T) {
	m := New()
	key := Key{Endpoint: "2", Kind: domain.ObjectContact, Ref: "a@example.com"}

	_, err := m.GetOrCreate(key, func() (int64, error) {
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	_, ok := m.Get(key)
	assert.False(t, ok)

	id, err := m.GetOrCreate(key, func() (int64, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestGetOrCreateUsesExistingMapping(t *testing.T) {
	m := New()
	key := Key{Endpoint: "2", Kind: domain.ObjectComputer, Ref: "uuid-1"}
	m.Set(key, 5)

	id, err := m.GetOrCreate(key, func() (int64, error) {
		t.Fatal("create must not be called")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
}

func TestContainerKeysDoNotCollideAcrossKinds(t *testing.T) {
	path := domain.Path{"Root"}
	g := ContainerKey("1", domain.ContainerKindGroup, path)
	f := ContainerKey("1", domain.ContainerKindFolder, path)
	assert.NotEqual(t, g, f)

	slash := ContainerKey("1", domain.ContainerKindGroup, domain.Path{"a/b"})
	nested := ContainerKey("1", domain.ContainerKindGroup, domain.Path{"a", "b"})
	assert.NotEqual(t, slash, nested)
}

func TestEntriesSorted(t *testing.T) {
	m := New()
	m.Set(Key{Endpoint: "1", Kind: domain.ObjectPolicy, Ref: "b"}, 2)
	m.Set(Key{Endpoint: "1", Kind: domain.ObjectPolicy, Ref: "a"}, 1)

	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Key.Ref)
	assert.Equal(t, "b", entries[1].Key.Ref)
}
