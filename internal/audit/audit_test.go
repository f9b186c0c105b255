package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Record(Event{Timestamp: time.Now(), Username: "alice", Outcome: "success"}))
	require.NoError(t, log.Record(Event{Timestamp: time.Now(), Username: "bob", Outcome: "invalid_password"}))

	events, err := log.Recent(10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Newest first.
	assert.Equal(t, "bob", events[0].Username)
	assert.Equal(t, "alice", events[1].Username)
}

func TestRecentRespectsLimit(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	defer log.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Record(Event{Timestamp: time.Now(), Username: "u", Outcome: "success"}))
	}

	events, err := log.Recent(2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
