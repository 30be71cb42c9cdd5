package tree

// Schema contains the SQL statements to create the metadata schema.
const Schema = `
-- Users table: accounts that own buckets and objects
CREATE TABLE IF NOT EXISTS users (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    login      TEXT UNIQUE NOT NULL,
    password   TEXT,
    email      TEXT,
    access_key TEXT UNIQUE NOT NULL,
    secret_key TEXT NOT NULL,
    superuser  BOOLEAN DEFAULT FALSE,
    deleted    BOOLEAN DEFAULT FALSE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Bits table: buckets (parent_id IS NULL) and slots (parent_id set).
-- The payload is inline bytes or a JSON file_info reference, never both.
CREATE TABLE IF NOT EXISTS bits (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id   INTEGER NOT NULL,
    parent_id  INTEGER,
    name       TEXT NOT NULL,
    access     INTEGER NOT NULL,
    meta       TEXT,
    payload    BLOB,
    file_info  TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (owner_id) REFERENCES users(id)
);

-- Bucket names are globally unique; slot names are unique per bucket
CREATE UNIQUE INDEX IF NOT EXISTS idx_bits_bucket_name ON bits(name) WHERE parent_id IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_bits_slot_name ON bits(parent_id, name) WHERE parent_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_bits_parent ON bits(parent_id);
CREATE INDEX IF NOT EXISTS idx_bits_owner ON bits(owner_id);

-- Per-user ACL overrides: at most one row per (bit, user)
CREATE TABLE IF NOT EXISTS bits_users (
    bit_id  INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    access  INTEGER NOT NULL,
    UNIQUE (bit_id, user_id),
    FOREIGN KEY (bit_id) REFERENCES bits(id) ON DELETE CASCADE,
    FOREIGN KEY (user_id) REFERENCES users(id)
);
`

// nameMinLength is the minimum length for a bit name.
const nameMinLength = 3

// nameMaxLength is the maximum length for a bit name.
const nameMaxLength = 255

// loginMinLength and loginMaxLength bound user login names.
const (
	loginMinLength = 3
	loginMaxLength = 40
)
