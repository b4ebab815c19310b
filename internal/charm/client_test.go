// ABOUTME: Tests for the charm client using an in-memory KV
// ABOUTME: Covers JSON round-trips, prefix listing, and sync-after-write
package charm

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	syncs  int
	closed bool
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}}
}

func (m *memKV) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) Get(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, errors.New("Key not found")
	}
	return v, nil
}

func (m *memKV) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *memKV) Keys() ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([][]byte, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, []byte(k))
	}
	return keys, nil
}

func (m *memKV) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs++
	return nil
}

func (m *memKV) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = map[string][]byte{}
	return nil
}

func (m *memKV) Close() error {
	m.closed = true
	return nil
}

func TestClient_JSONRoundTrip(t *testing.T) {
	c := NewClientWithKV(newMemKV(), &Config{})

	type payload struct{ Name string }
	require.NoError(t, c.SetJSON("k", payload{Name: "demon"}))

	var got payload
	require.NoError(t, c.GetJSON("k", &got))
	assert.Equal(t, "demon", got.Name)
}

func TestClient_ListKeys(t *testing.T) {
	c := NewClientWithKV(newMemKV(), &Config{})
	require.NoError(t, c.Set(HistoryKey("a"), []byte("[]")))
	require.NoError(t, c.Set(HistoryKey("b"), []byte("[]")))
	require.NoError(t, c.Set("other", []byte("x")))

	keys, err := c.ListKeys(HistoryPrefix)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"history:a", "history:b"}, keys)
}

func TestClient_AutoSync(t *testing.T) {
	store := newMemKV()
	c := NewClientWithKV(store, &Config{AutoSync: true})
	assert.Equal(t, 1, store.syncs, "startup pull")

	require.NoError(t, c.Set("k", []byte("v")))
	require.NoError(t, c.Delete("k"))
	assert.Equal(t, 3, store.syncs)
}

func TestClient_Close(t *testing.T) {
	store := newMemKV()
	c := NewClientWithKV(store, nil)
	require.NoError(t, c.Close())
	assert.True(t, store.closed)
	require.NoError(t, c.Close())
}

func TestConversationFromKey(t *testing.T) {
	id, ok := ConversationFromKey(HistoryKey("conv-1"))
	assert.True(t, ok)
	assert.Equal(t, "conv-1", id)

	_, ok = ConversationFromKey("fact:x")
	assert.False(t, ok)
}
