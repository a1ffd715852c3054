package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

// A migration brings the schema from any version below target up to
// target. Steps run strictly in order, each inside its own committed
// transaction that stamps user_version last, so an interrupted upgrade
// resumes at the first incomplete step and never re-applies or skips
// one.
type migration struct {
	target int
	apply  func(tx *sql.Tx, env Env) error
}

var migrations = []migration{
	{2, migratePlanningColumns},
	{3, migrateLinks},
	{4, migrateContentStore},
}

func runMigrations(db *sql.DB, version int, env Env) error {
	for _, m := range migrations {
		if version >= m.target {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration to v%d: %w", m.target, err)
		}
		if err := m.apply(tx, env); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate index to v%d: %w", m.target, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.target)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("stamp version %d: %w", m.target, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration to v%d: %w", m.target, err)
		}
		version = m.target
	}
	return nil
}

// v0 -> v2: bugs gain the planning columns.
func migratePlanningColumns(tx *sql.Tx, _ Env) error {
	for _, stmt := range []string{
		"ALTER TABLE bugs ADD COLUMN deadline INTEGER",
		"ALTER TABLE bugs ADD COLUMN progress INTEGER NOT NULL DEFAULT 0",
		"ALTER TABLE bugs ADD COLUMN milestone TEXT",
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// v2 -> v3: the symmetric merges table becomes the generalized links
// table; each merge pair is carried over as a "duplicates" link.
func migrateLinks(tx *sql.Tx, _ Env) error {
	if _, err := tx.Exec(`CREATE TABLE links (
		a INTEGER,
		b INTEGER,
		type INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY(a, b, type),
		FOREIGN KEY(a) REFERENCES bugs(id),
		FOREIGN KEY(b) REFERENCES bugs(id)
	)`); err != nil {
		return fmt.Errorf("create links: %w", err)
	}
	for _, stmt := range []string{
		"CREATE INDEX links_a_index ON links (a)",
		"CREATE INDEX links_b_index ON links (b)",
		"INSERT OR IGNORE INTO links (a, b, type) SELECT a, b, 1 FROM merges",
		"DROP TABLE merges",
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// v3 -> v4: message bodies move from the legacy per-bug mailbox
// folders into the content-addressed store, and the physical-location
// column goes away.
func migrateContentStore(tx *sql.Tx, env Env) error {
	rows, err := tx.Query("SELECT msgid, key, bug FROM messages WHERE key IS NOT NULL AND key != ''")
	if err != nil {
		return fmt.Errorf("list legacy messages: %w", err)
	}

	type legacyMessage struct {
		msgid, key string
		bug        int64
	}
	var legacy []legacyMessage
	for rows.Next() {
		var lm legacyMessage
		if err := rows.Scan(&lm.msgid, &lm.key, &lm.bug); err != nil {
			rows.Close()
			return fmt.Errorf("scan legacy message: %w", err)
		}
		legacy = append(legacy, lm)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate legacy messages: %w", err)
	}
	rows.Close()

	maildir := filepath.Join(env.BaseDir, "btsmail")
	for _, lm := range legacy {
		raw, err := readLegacyMessage(maildir, lm.bug, lm.key)
		if err != nil {
			return fmt.Errorf("read legacy message %s: %w", lm.msgid, err)
		}
		if raw == nil {
			continue
		}
		if _, err := env.Store.Store(lm.msgid, raw); err != nil {
			return fmt.Errorf("relocate message %s: %w", lm.msgid, err)
		}
	}

	for _, stmt := range []string{
		"DROP INDEX IF EXISTS messages_key_index",
		"ALTER TABLE messages DROP COLUMN key",
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}

	// The physical folders go only once everything has been copied
	// out. Removal failures are not fatal: the data is already safe in
	// the store.
	if _, err := os.Stat(maildir); err == nil {
		_ = os.RemoveAll(maildir)
	}
	return nil
}

func readLegacyMessage(maildir string, bug int64, key string) ([]byte, error) {
	for _, sub := range []string{"cur", "new"} {
		path := filepath.Join(maildir, fmt.Sprint(bug), sub, key)
		raw, err := os.ReadFile(path)
		if err == nil {
			return raw, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	// A row whose file has already vanished is left behind rather
	// than failing the whole upgrade.
	return nil, nil
}
