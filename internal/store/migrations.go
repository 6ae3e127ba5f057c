package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
	id            TEXT PRIMARY KEY,
	thread_id     TEXT NOT NULL DEFAULT '',
	subject       TEXT NOT NULL DEFAULT '',
	sender        TEXT NOT NULL DEFAULT '',
	recipient     TEXT NOT NULL DEFAULT '',
	date          TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL DEFAULT '',
	snippet       TEXT NOT NULL DEFAULT '',
	internal_date INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS email_labels (
	email_id TEXT NOT NULL REFERENCES emails(id),
	label    TEXT NOT NULL,
	PRIMARY KEY (email_id, label)
);

CREATE INDEX IF NOT EXISTS idx_emails_internal_date ON emails(internal_date);
CREATE INDEX IF NOT EXISTS idx_email_labels_email_id ON email_labels(email_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
