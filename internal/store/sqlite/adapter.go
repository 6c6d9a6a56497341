package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	sqlitelib "modernc.org/sqlite"

	"github.com/keyfold/keyfold-server/internal/model"
	"github.com/keyfold/keyfold-server/internal/store"
)

// New opens (or creates) a SQLite database file and ensures the schema.
func New(path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db)
}

// NewWithDB wraps an existing connection (used by tests and the factory).
func NewWithDB(db *sql.DB) (store.Store, error) {
	if err := EnsureSchema(db); err != nil {
		return nil, err
	}
	return &liteStore{db: db}, nil
}

type liteStore struct{ db *sql.DB }

func (s *liteStore) Users() store.Users             { return &users{db: s.db} }
func (s *liteStore) UserKeys() store.UserKeys       { return &userKeys{db: s.db} }
func (s *liteStore) Collections() store.Collections { return &collections{db: s.db} }
func (s *liteStore) Items() store.Items             { return &items{db: s.db} }
func (s *liteStore) Sessions() store.Sessions       { return &sessions{db: s.db} }

func (s *liteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// SQLITE_CONSTRAINT and its UNIQUE/PRIMARYKEY extended codes.
func isUniqueViolation(err error) bool {
	var liteErr *sqlitelib.Error
	if !errors.As(err, &liteErr) {
		return false
	}
	switch liteErr.Code() {
	case 19, 1555, 2067:
		return true
	}
	return false
}

func mapRowErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

// --- Users ---

type users struct{ db *sql.DB }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	return u.create(ctx, m, nil)
}

func (u *users) CreateWithKey(ctx context.Context, m *model.User, encryptedKey string) (*model.User, error) {
	return u.create(ctx, m, &encryptedKey)
}

func (u *users) create(ctx context.Context, m *model.User, encryptedKey *string) (*model.User, error) {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	out := *m
	out.CreatedAt = now
	out.UpdatedAt = now

	res, err := tx.ExecContext(ctx, `
        INSERT INTO users (email, password_hash, is_active, is_staff, is_superuser, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?)
    `, m.Email, m.PasswordHash, m.IsActive, m.IsStaff, m.IsSuperuser, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, err
	}
	out.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO vault_collections (uuid, user_id, name, created_at, updated_at)
        VALUES (?,?,'Default',?,?)
    `, uuid.NewString(), out.ID, now, now); err != nil {
		return nil, err
	}

	if encryptedKey != nil {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO user_keys (user_id, encrypted_key, created_at, updated_at)
            VALUES (?,?,?,?)
        `, out.ID, *encryptedKey, now, now); err != nil {
			if isUniqueViolation(err) {
				return nil, model.ErrConflict
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (u *users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := u.db.QueryRowContext(ctx, `
        SELECT id, email, password_hash, is_active, is_staff, is_superuser, created_at, updated_at
        FROM users WHERE lower(email)=lower(?)
    `, email)
	return scanUser(row)
}

func (u *users) Get(ctx context.Context, id int64) (*model.User, error) {
	row := u.db.QueryRowContext(ctx, `
        SELECT id, email, password_hash, is_active, is_staff, is_superuser, created_at, updated_at
        FROM users WHERE id=?
    `, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*model.User, error) {
	var out model.User
	if err := row.Scan(&out.ID, &out.Email, &out.PasswordHash, &out.IsActive, &out.IsStaff, &out.IsSuperuser, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &out, nil
}

func (u *users) Delete(ctx context.Context, id int64) error {
	res, err := u.db.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- UserKeys ---

type userKeys struct{ db *sql.DB }

func (k *userKeys) Create(ctx context.Context, userID int64, encryptedKey string) (*model.UserKey, error) {
	now := time.Now().UTC()
	if _, err := k.db.ExecContext(ctx, `
        INSERT INTO user_keys (user_id, encrypted_key, created_at, updated_at)
        VALUES (?,?,?,?)
    `, userID, encryptedKey, now, now); err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, err
	}
	return &model.UserKey{UserID: userID, EncryptedKey: encryptedKey, CreatedAt: now, UpdatedAt: now}, nil
}

func (k *userKeys) Get(ctx context.Context, userID int64) (*model.UserKey, error) {
	out := model.UserKey{UserID: userID}
	row := k.db.QueryRowContext(ctx, `
        SELECT encrypted_key, created_at, updated_at
        FROM user_keys WHERE user_id=?
    `, userID)
	if err := row.Scan(&out.EncryptedKey, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &out, nil
}

// --- Collections ---

type collections struct{ db *sql.DB }

func (c *collections) Create(ctx context.Context, ownerID int64, name string) (*model.VaultCollection, error) {
	now := time.Now().UTC()
	out := model.VaultCollection{UUID: uuid.NewString(), UserID: ownerID, Name: name, CreatedAt: now, UpdatedAt: now}
	res, err := c.db.ExecContext(ctx, `
        INSERT INTO vault_collections (uuid, user_id, name, created_at, updated_at)
        VALUES (?,?,?,?,?)
    `, out.UUID, ownerID, name, now, now)
	if err != nil {
		return nil, err
	}
	out.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &out, nil
}

const collectionSelect = `
    SELECT c.id, c.uuid, c.name, COUNT(i.id), c.created_at, c.updated_at
    FROM vault_collections c
    LEFT JOIN vault_items i ON i.collection_id = c.id
`

func (c *collections) GetByUUID(ctx context.Context, ownerID int64, uid string) (*model.VaultCollection, error) {
	out := model.VaultCollection{UserID: ownerID}
	row := c.db.QueryRowContext(ctx, collectionSelect+`
        WHERE c.uuid=? AND c.user_id=? GROUP BY c.id
    `, uid, ownerID)
	if err := row.Scan(&out.ID, &out.UUID, &out.Name, &out.ItemCount, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &out, nil
}

func (c *collections) List(ctx context.Context, ownerID int64) ([]*model.VaultCollection, error) {
	rows, err := c.db.QueryContext(ctx, collectionSelect+`
        WHERE c.user_id=? GROUP BY c.id ORDER BY c.created_at, c.id
    `, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.VaultCollection
	for rows.Next() {
		vc := model.VaultCollection{UserID: ownerID}
		if err := rows.Scan(&vc.ID, &vc.UUID, &vc.Name, &vc.ItemCount, &vc.CreatedAt, &vc.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &vc)
	}
	return res, rows.Err()
}

func (c *collections) Rename(ctx context.Context, ownerID int64, uid, name string) (*model.VaultCollection, error) {
	res, err := c.db.ExecContext(ctx, `
        UPDATE vault_collections SET name=?, updated_at=?
        WHERE uuid=? AND user_id=?
    `, name, time.Now().UTC(), uid, ownerID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	return c.GetByUUID(ctx, ownerID, uid)
}

func (c *collections) Delete(ctx context.Context, ownerID int64, uid string) error {
	res, err := c.db.ExecContext(ctx, `
        DELETE FROM vault_collections WHERE uuid=? AND user_id=?
    `, uid, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (c *collections) ItemUUIDs(ctx context.Context, ownerID int64, uid string) ([]string, error) {
	if _, err := c.GetByUUID(ctx, ownerID, uid); err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, `
        SELECT i.uuid
        FROM vault_items i
        JOIN vault_collections c ON c.id = i.collection_id
        WHERE c.uuid=? AND c.user_id=?
        ORDER BY i.created_at, i.id
    `, uid, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

// --- Items ---

type items struct{ db *sql.DB }

const itemSelect = `
    SELECT i.id, i.uuid, i.collection_id, c.uuid, i.encrypted_data, i.created_at, i.updated_at
    FROM vault_items i
    JOIN vault_collections c ON c.id = i.collection_id
`

func (it *items) Create(ctx context.Context, ownerID int64, collectionUUID, encryptedData string) (*model.VaultItem, error) {
	now := time.Now().UTC()
	uid := uuid.NewString()
	// Single statement: the insert happens only when the owner-filtered
	// collection lookup yields a row.
	res, err := it.db.ExecContext(ctx, `
        INSERT INTO vault_items (uuid, collection_id, encrypted_data, created_at, updated_at)
        SELECT ?, c.id, ?, ?, ?
        FROM vault_collections c
        WHERE c.uuid=? AND c.user_id=?
    `, uid, encryptedData, now, now, collectionUUID, ownerID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	return it.GetByUUID(ctx, ownerID, uid)
}

func (it *items) GetByUUID(ctx context.Context, ownerID int64, uid string) (*model.VaultItem, error) {
	row := it.db.QueryRowContext(ctx, itemSelect+`WHERE i.uuid=? AND c.user_id=?`, uid, ownerID)
	var out model.VaultItem
	if err := row.Scan(&out.ID, &out.UUID, &out.CollectionID, &out.CollectionUUID, &out.EncryptedData, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &out, nil
}

func (it *items) List(ctx context.Context, ownerID int64) ([]*model.VaultItem, error) {
	rows, err := it.db.QueryContext(ctx, itemSelect+`WHERE c.user_id=? ORDER BY i.created_at, i.id`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (it *items) ListByCollection(ctx context.Context, ownerID int64, collectionUUID string) ([]*model.VaultItem, error) {
	rows, err := it.db.QueryContext(ctx, itemSelect+`WHERE c.user_id=? AND c.uuid=? ORDER BY i.created_at, i.id`, ownerID, collectionUUID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func collectItems(rows *sql.Rows) ([]*model.VaultItem, error) {
	defer func() { _ = rows.Close() }()
	var res []*model.VaultItem
	for rows.Next() {
		var m model.VaultItem
		if err := rows.Scan(&m.ID, &m.UUID, &m.CollectionID, &m.CollectionUUID, &m.EncryptedData, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &m)
	}
	return res, rows.Err()
}

func (it *items) Update(ctx context.Context, ownerID int64, uid, encryptedData string, newCollectionUUID *string) (*model.VaultItem, error) {
	tx, err := it.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var res sql.Result
	if newCollectionUUID != nil {
		var targetID int64
		if err := tx.QueryRowContext(ctx, `
            SELECT id FROM vault_collections WHERE uuid=? AND user_id=?
        `, *newCollectionUUID, ownerID).Scan(&targetID); err != nil {
			return nil, mapRowErr(err)
		}
		res, err = tx.ExecContext(ctx, `
            UPDATE vault_items SET encrypted_data=?, collection_id=?, updated_at=?
            WHERE uuid=? AND collection_id IN (SELECT id FROM vault_collections WHERE user_id=?)
        `, encryptedData, targetID, now, uid, ownerID)
	} else {
		res, err = tx.ExecContext(ctx, `
            UPDATE vault_items SET encrypted_data=?, updated_at=?
            WHERE uuid=? AND collection_id IN (SELECT id FROM vault_collections WHERE user_id=?)
        `, encryptedData, now, uid, ownerID)
	}
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}

	var out model.VaultItem
	row := tx.QueryRowContext(ctx, itemSelect+`WHERE i.uuid=? AND c.user_id=?`, uid, ownerID)
	if err := row.Scan(&out.ID, &out.UUID, &out.CollectionID, &out.CollectionUUID, &out.EncryptedData, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (it *items) Delete(ctx context.Context, ownerID int64, uid string) error {
	res, err := it.db.ExecContext(ctx, `
        DELETE FROM vault_items
        WHERE uuid=? AND collection_id IN (SELECT id FROM vault_collections WHERE user_id=?)
    `, uid, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- Sessions ---

type sessions struct{ db *sql.DB }

func (s *sessions) Create(ctx context.Context, m *model.Session) error {
	m.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO sessions (token, csrf_token, user_id, created_at, expires_at)
        VALUES (?,?,?,?,?)
    `, m.Token, m.CSRFToken, m.UserID, m.CreatedAt, m.ExpiresAt)
	return err
}

func (s *sessions) Get(ctx context.Context, token string) (*model.Session, error) {
	var out model.Session
	row := s.db.QueryRowContext(ctx, `
        SELECT token, csrf_token, user_id, created_at, expires_at
        FROM sessions WHERE token=? AND expires_at > ?
    `, token, time.Now().UTC())
	if err := row.Scan(&out.Token, &out.CSRFToken, &out.UserID, &out.CreatedAt, &out.ExpiresAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &out, nil
}

func (s *sessions) Delete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=?`, token)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
