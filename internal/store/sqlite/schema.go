package sqlite

import "database/sql"

// EnsureSchema creates the tables if they do not exist. SQLite is the local
// and test engine; Postgres schema lives in goose migrations.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            email TEXT NOT NULL,
            password_hash TEXT NOT NULL,
            is_active INTEGER NOT NULL DEFAULT 1,
            is_staff INTEGER NOT NULL DEFAULT 0,
            is_superuser INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_uq ON users (lower(email));`,
		`CREATE TABLE IF NOT EXISTS user_keys (
            user_id INTEGER PRIMARY KEY REFERENCES users (id) ON DELETE CASCADE,
            encrypted_key TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS vault_collections (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            uuid TEXT NOT NULL UNIQUE,
            user_id INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
            name TEXT NOT NULL CHECK (name <> ''),
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS vault_collections_user_idx ON vault_collections (user_id);`,
		`CREATE TABLE IF NOT EXISTS vault_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            uuid TEXT NOT NULL UNIQUE,
            collection_id INTEGER NOT NULL REFERENCES vault_collections (id) ON DELETE CASCADE,
            encrypted_data TEXT NOT NULL CHECK (encrypted_data <> ''),
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS vault_items_collection_idx ON vault_items (collection_id);`,
		`CREATE TABLE IF NOT EXISTS sessions (
            token TEXT PRIMARY KEY,
            csrf_token TEXT NOT NULL,
            user_id INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
            created_at TIMESTAMP NOT NULL,
            expires_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS sessions_expires_idx ON sessions (expires_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
