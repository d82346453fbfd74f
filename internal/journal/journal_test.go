package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open("run-1", filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndEntries(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Record("c1", "test", EventReceived, 0, ""))
	require.NoError(t, j.Record("c1", "test", EventAcked, 0, ""))
	require.NoError(t, j.Record("c1", "test", EventResult, 1, "2 tests failed"))
	require.NoError(t, j.Record("c2", "read", EventReceived, 0, ""))

	entries, err := j.Entries("c1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, EventReceived, entries[0].Event)
	assert.Equal(t, EventAcked, entries[1].Event)
	assert.Equal(t, EventResult, entries[2].Event)
	assert.Equal(t, 1, entries[2].ExitCode)
	assert.Equal(t, "2 tests failed", entries[2].Error)
	for _, e := range entries {
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, "c1", e.CommandID)
		assert.Equal(t, "test", e.Action)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestEntriesRespectsLimit(t *testing.T) {
	j := openTestJournal(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record("c1", "lint", EventReceived, 0, ""))
	}
	entries, err := j.Entries("c1", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestNilJournalIsNoOp(t *testing.T) {
	var j *Journal
	assert.NoError(t, j.Record("c1", "read", EventReceived, 0, ""))
	entries, err := j.Entries("c1", 10)
	assert.NoError(t, err)
	assert.Nil(t, entries)
	assert.NoError(t, j.Close())
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open("run-1", path)
	require.NoError(t, err)
	require.NoError(t, j.Record("c1", "read", EventReceived, 0, ""))
	require.NoError(t, j.Close())

	j2, err := Open("run-2", path)
	require.NoError(t, err)
	defer j2.Close()
	entries, err := j2.Entries("c1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0].RunID)
}
