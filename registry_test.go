package parley

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMember(key, name string) *Member {
	c1, c2 := net.Pipe()
	// The far end stays open for the test's lifetime; writes to c1 would
	// block, but registry tests never write.
	_ = c2
	return &Member{
		Key:      key,
		Conn:     c1,
		Name:     name,
		LastSeen: time.Now(),
	}
}

func TestRegistry_InsertAndGet(t *testing.T) {
	reg := NewRegistry(10)

	m := newTestMember("10.0.0.1:5000", "alice")
	replaced, err := reg.Insert(m)
	require.NoError(t, err)
	assert.Nil(t, replaced)

	got := reg.Get("10.0.0.1:5000")
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_CapacityIsAtomic(t *testing.T) {
	reg := NewRegistry(2)

	_, err := reg.Insert(newTestMember("10.0.0.1:1", "a"))
	require.NoError(t, err)
	_, err = reg.Insert(newTestMember("10.0.0.1:2", "b"))
	require.NoError(t, err)

	_, err = reg.Insert(newTestMember("10.0.0.1:3", "c"))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 2, reg.Len())

	// Removal frees the slot.
	require.NotNil(t, reg.Remove("10.0.0.1:1"))
	_, err = reg.Insert(newTestMember("10.0.0.1:3", "c"))
	assert.NoError(t, err)
}

func TestRegistry_InsertReplacesDuplicateKey(t *testing.T) {
	reg := NewRegistry(10)

	first := newTestMember("10.0.0.1:5000", "alice")
	_, err := reg.Insert(first)
	require.NoError(t, err)

	second := newTestMember("10.0.0.1:5000", "alice2")
	replaced, err := reg.Insert(second)
	require.NoError(t, err)
	require.NotNil(t, replaced)
	assert.Same(t, first, replaced)
	assert.Equal(t, first.Color, second.Color, "replacement keeps the assigned color")
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_ColorRoundRobin(t *testing.T) {
	reg := NewRegistry(len(colorPalette) + 1)

	for i := 0; i <= len(colorPalette); i++ {
		m := newTestMember(fmt.Sprintf("10.0.0.1:%d", 5000+i), fmt.Sprintf("u%d", i))
		_, err := reg.Insert(m)
		require.NoError(t, err)
		assert.Equal(t, colorPalette[i%len(colorPalette)], m.Color)
	}
}

func TestRegistry_SnapshotInsertionOrder(t *testing.T) {
	reg := NewRegistry(10)
	keys := []string{"10.0.0.1:1", "10.0.0.1:2", "10.0.0.1:3"}
	for i, key := range keys {
		_, err := reg.Insert(newTestMember(key, fmt.Sprintf("u%d", i)))
		require.NoError(t, err)
	}

	reg.Remove("10.0.0.1:2")

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "10.0.0.1:1", snap[0].Key)
	assert.Equal(t, "10.0.0.1:3", snap[1].Key)
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	reg := NewRegistry(10)
	_, err := reg.Insert(newTestMember("10.0.0.1:1", "alice"))
	require.NoError(t, err)

	snap := reg.Snapshot()
	snap[0].Name = "mutated"

	assert.Equal(t, "alice", reg.Get("10.0.0.1:1").Name)
}

func TestRegistry_LookupIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry(10)
	_, err := reg.Insert(newTestMember("10.0.0.1:1", "Alice"))
	require.NoError(t, err)

	assert.NotNil(t, reg.Lookup("alice"))
	assert.NotNil(t, reg.Lookup("ALICE"))
	assert.Nil(t, reg.Lookup("bob"))
}

func TestRegistry_TouchUpdatesLastSeen(t *testing.T) {
	reg := NewRegistry(10)
	m := newTestMember("10.0.0.1:1", "alice")
	m.LastSeen = time.Now().Add(-time.Hour)
	_, err := reg.Insert(m)
	require.NoError(t, err)

	now := time.Now()
	reg.Touch(m.Key, now)
	assert.Equal(t, now, reg.Get(m.Key).LastSeen)
}

func TestRegistry_RemoveAbsentReturnsNil(t *testing.T) {
	reg := NewRegistry(10)
	assert.Nil(t, reg.Remove("10.0.0.1:404"))
}

func TestRegistry_Clear(t *testing.T) {
	reg := NewRegistry(10)
	for i := 0; i < 3; i++ {
		_, err := reg.Insert(newTestMember(fmt.Sprintf("10.0.0.1:%d", i), fmt.Sprintf("u%d", i)))
		require.NoError(t, err)
	}

	removed := reg.Clear()
	assert.Len(t, removed, 3)
	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.Snapshot())
}

func TestTruncateName(t *testing.T) {
	assert.Equal(t, "short", truncateName("short"))
	assert.Equal(t, 20, len([]rune(truncateName("this-name-is-far-too-long-to-keep"))))
	// Multi-byte names truncate on rune boundaries.
	assert.Equal(t, 20, len([]rune(truncateName("ěščřžýáíéůúťďňěščřžýáí"))))
}
