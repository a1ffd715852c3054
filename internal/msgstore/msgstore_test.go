package msgstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "messages"))
	require.NoError(t, err)
	return s
}

func TestOpen_CreatesTree(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "messages")

	_, err := Open(root)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "tmp"))
	assert.NoError(t, err, "should create the tmp staging directory")
}

func TestKey_IgnoresAngleBrackets(t *testing.T) {
	// The same message id with and without RFC822 quoting must map to
	// the same content key.
	assert.Equal(t, Key("a@example.com"), Key("<a@example.com>"))
	assert.NotEqual(t, Key("a@example.com"), Key("b@example.com"))
	assert.Len(t, Key("a@example.com"), 64)
}

func TestStoreAndLoad(t *testing.T) {
	s := newTestStore(t)
	raw := []byte("Subject: test\r\n\r\nbody\r\n")

	key, err := s.Store("<msg1@example.com>", raw)
	require.NoError(t, err)
	assert.Equal(t, Key("msg1@example.com"), key)

	got, err := s.Load("msg1@example.com")
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	// The permanent path is sharded on the first two hex characters.
	rel, err := filepath.Rel(filepath.Dir(filepath.Dir(s.Path("msg1@example.com"))), s.Path("msg1@example.com"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(key[:2], key[2:]), rel)
}

func TestStore_Idempotent(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Store("msg1@example.com", []byte("first"))
	require.NoError(t, err)

	// Storing the same id again leaves the original bytes in place.
	_, err = s.Store("msg1@example.com", []byte("second"))
	require.NoError(t, err)

	got, err := s.Load("msg1@example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
}

func TestStore_LeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Store("msg1@example.com", []byte("body"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(s.root, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoad_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExists(t *testing.T) {
	s := newTestStore(t)

	assert.False(t, s.Exists("msg1@example.com"))
	_, err := s.Store("msg1@example.com", []byte("body"))
	require.NoError(t, err)
	assert.True(t, s.Exists("<msg1@example.com>"))
}
