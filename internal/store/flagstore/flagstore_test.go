package flagstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "flags.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFlagAndLookup(t *testing.T) {
	s := newTestStore(t)

	flagged, err := s.IsFlagged("tok1")
	require.NoError(t, err)
	assert.False(t, flagged)

	require.NoError(t, s.Flag("tok1", "TOK", "honeypot (0.95)"))

	flagged, err = s.IsFlagged("tok1")
	require.NoError(t, err)
	assert.True(t, flagged)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReflagUpdatesReason(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Flag("tok1", "TOK", "first"))
	require.NoError(t, s.Flag("tok1", "TOK", "second"))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recent, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "second", recent[0].Reason)
}

func TestRecentOrdering(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Flag("a", "A", "r"))
	require.NoError(t, s.Flag("b", "B", "r"))
	require.NoError(t, s.Flag("c", "C", "r"))

	recent, err := s.Recent(2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.db")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Flag("tok1", "TOK", "rug"))
	require.NoError(t, s.Close())

	s2, err := New(path)
	require.NoError(t, err)
	defer s2.Close()
	flagged, err := s2.IsFlagged("tok1")
	require.NoError(t, err)
	assert.True(t, flagged)
}

func TestEmptyPathRejected(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
