package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarningIsOneShot(t *testing.T) {
	q := New(time.Second)

	q.Warning("disk_full", "disk is full")
	q.Warning("disk_full", "disk is still full") // second call is a no-op

	entries := q.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "disk is full", entries[0].Message)
	assert.True(t, q.Shown("disk_full"))
	assert.False(t, q.Shown("other_reason"))
}

func TestStatusIsRepeatable(t *testing.T) {
	q := New(time.Second)

	q.Status("init", "Initializing...")
	q.Status("init", "Initializing... (retry)")

	entries := q.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Initializing... (retry)", entries[0].Message)
	assert.True(t, entries[0].Status)
}

func TestUpdateExpiresEntries(t *testing.T) {
	q := New(20 * time.Millisecond)

	q.Status("tick", "alive")
	require.Len(t, q.Entries(), 1)

	time.Sleep(40 * time.Millisecond)
	q.Update()

	assert.Empty(t, q.Entries())
}

func TestNewDefaultsNonPositiveTTL(t *testing.T) {
	q := New(0)
	assert.Equal(t, defaultTTL, q.ttl)
}
