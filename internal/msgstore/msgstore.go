// Package msgstore persists raw message bytes in a content-addressed
// filesystem tree. A message is addressed by the BLAKE3 digest of its
// unquoted Message-ID: the first two hex characters select a shard
// directory, the rest is the filename. Writes go through a tmp
// directory and an atomic rename, so a reader never observes a
// partially written message.
package msgstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/gsliepen/lightbts/internal/mail"
)

// ErrNotFound is returned by Load when no message is stored under the
// given id.
var ErrNotFound = errors.New("message not found in store")

// Store is a content-addressed message store rooted at a directory.
type Store struct {
	root string
}

// Open prepares the store tree at root, creating it if needed.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("create store tree: %w", err)
	}
	return &Store{root: root}, nil
}

// Key derives the content key for a message id.
func Key(msgid string) string {
	sum := blake3.Sum256([]byte(mail.Unquote(msgid)))
	return hex.EncodeToString(sum[:])
}

// Path returns the permanent path for a message id.
func (s *Store) Path(msgid string) string {
	key := Key(msgid)
	return filepath.Join(s.root, key[:2], key[2:])
}

// Store persists raw under the key derived from msgid and returns the
// key. Storing the same id twice is an idempotent no-op; the index's
// uniqueness constraint is the actual duplicate guard.
func (s *Store) Store(msgid string, raw []byte) (string, error) {
	key := Key(msgid)
	final := filepath.Join(s.root, key[:2], key[2:])

	if _, err := os.Stat(final); err == nil {
		return key, nil
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, "tmp"), key[2:]+".*")
	if err != nil {
		return "", fmt.Errorf("create temp message: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write temp message: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp message: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("create shard directory: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publish message: %w", err)
	}
	return key, nil
}

// Load reads back the raw bytes stored for a message id.
func (s *Store) Load(msgid string) ([]byte, error) {
	raw, err := os.ReadFile(s.Path(msgid))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, mail.Unquote(msgid))
	}
	if err != nil {
		return nil, fmt.Errorf("load message: %w", err)
	}
	return raw, nil
}

// Exists reports whether a message is stored under the given id.
func (s *Store) Exists(msgid string) bool {
	_, err := os.Stat(s.Path(msgid))
	return err == nil
}
