package parley

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmit_LimitWithinWindow(t *testing.T) {
	reg := NewRegistry(10)
	m := newTestMember("10.0.0.1:1", "alice")
	_, err := reg.Insert(m)
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 10; i++ {
		assert.True(t, reg.Admit(m.Key, 10, time.Second, now), "message %d should be admitted", i+1)
	}
	assert.False(t, reg.Admit(m.Key, 10, time.Second, now), "11th message in the window must be rejected")
}

func TestAdmit_FreshWindowResets(t *testing.T) {
	reg := NewRegistry(10)
	m := newTestMember("10.0.0.1:1", "alice")
	_, err := reg.Insert(m)
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 10; i++ {
		reg.Admit(m.Key, 10, time.Second, now)
	}
	require.False(t, reg.Admit(m.Key, 10, time.Second, now))

	later := now.Add(time.Second)
	assert.True(t, reg.Admit(m.Key, 10, time.Second, later), "a full count is available in the next window")
}

func TestAdmit_RejectionDoesNotConsumeWindow(t *testing.T) {
	reg := NewRegistry(10)
	m := newTestMember("10.0.0.1:1", "alice")
	_, err := reg.Insert(m)
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 10; i++ {
		reg.Admit(m.Key, 10, time.Second, now)
	}
	// Repeated rejections inside the same window stay rejections and do
	// not push the window start forward.
	for i := 0; i < 5; i++ {
		assert.False(t, reg.Admit(m.Key, 10, time.Second, now.Add(time.Duration(i)*time.Millisecond)))
	}
	assert.True(t, reg.Admit(m.Key, 10, time.Second, now.Add(time.Second)))
}

func TestAdmit_ZeroLimitDisables(t *testing.T) {
	reg := NewRegistry(10)
	m := newTestMember("10.0.0.1:1", "alice")
	_, err := reg.Insert(m)
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 100; i++ {
		assert.True(t, reg.Admit(m.Key, 0, time.Second, now))
	}
}

func TestAdmit_MissingKeyAdmits(t *testing.T) {
	reg := NewRegistry(10)
	assert.True(t, reg.Admit("10.0.0.1:404", 10, time.Second, time.Now()))
}
