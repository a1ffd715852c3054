package index

// Current schema, created as-is for fresh indexes. Older indexes are
// brought up to this layout by the migration steps in migrate.go.
const schema = `
CREATE TABLE IF NOT EXISTS bugs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    status INTEGER NOT NULL DEFAULT 1,
    severity INTEGER NOT NULL DEFAULT 2,
    title TEXT,
    owner TEXT,
    submitter TEXT,
    date INTEGER,
    deadline INTEGER,
    progress INTEGER NOT NULL DEFAULT 0,
    milestone TEXT
);

CREATE TABLE IF NOT EXISTS messages (
    msgid TEXT PRIMARY KEY,
    bug INTEGER,
    spam INTEGER NOT NULL DEFAULT 0,
    date INTEGER,
    FOREIGN KEY(bug) REFERENCES bugs(id)
);

CREATE INDEX IF NOT EXISTS messages_bug_index ON messages (bug);

CREATE TABLE IF NOT EXISTS recipients (
    bug INTEGER,
    address TEXT,
    PRIMARY KEY(bug, address),
    FOREIGN KEY(bug) REFERENCES bugs(id)
);

CREATE INDEX IF NOT EXISTS recipients_bug_index ON recipients (bug);
CREATE INDEX IF NOT EXISTS recipients_address_index ON recipients (address);

CREATE TABLE IF NOT EXISTS tags (
    bug INTEGER,
    tag TEXT,
    PRIMARY KEY(bug, tag),
    FOREIGN KEY(bug) REFERENCES bugs(id)
);

CREATE INDEX IF NOT EXISTS tags_bug_index ON tags (bug);
CREATE INDEX IF NOT EXISTS tags_tag_index ON tags (tag);

CREATE TABLE IF NOT EXISTS versions (
    bug INTEGER,
    version TEXT,
    status INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY(bug, version),
    FOREIGN KEY(bug) REFERENCES bugs(id)
);

CREATE INDEX IF NOT EXISTS versions_bug_index ON versions (bug);
CREATE INDEX IF NOT EXISTS versions_version_index ON versions (version);

CREATE TABLE IF NOT EXISTS links (
    a INTEGER,
    b INTEGER,
    type INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY(a, b, type),
    FOREIGN KEY(a) REFERENCES bugs(id),
    FOREIGN KEY(b) REFERENCES bugs(id)
);

CREATE INDEX IF NOT EXISTS links_a_index ON links (a);
CREATE INDEX IF NOT EXISTS links_b_index ON links (b);
`
