package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/keyfold/keyfold-server/internal/model"
	"github.com/keyfold/keyfold-server/internal/store"
	"github.com/keyfold/keyfold-server/internal/store/postgres/migrations"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies
// connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// NewWithDB constructs a Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Users() store.Users             { return &users{db: s.db} }
func (s *pgStore) UserKeys() store.UserKeys       { return &userKeys{db: s.db} }
func (s *pgStore) Collections() store.Collections { return &collections{db: s.db} }
func (s *pgStore) Items() store.Items             { return &items{db: s.db} }
func (s *pgStore) Sessions() store.Sessions       { return &sessions{db: s.db} }

func (s *pgStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
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

// create inserts the user, its default collection and (optionally) its key
// record in one transaction, so a user is never observable without them.
func (u *users) create(ctx context.Context, m *model.User, encryptedKey *string) (*model.User, error) {
	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out := *m
	row := tx.QueryRowContext(ctx, `
        INSERT INTO users (email, password_hash, is_active, is_staff, is_superuser)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at
    `, m.Email, m.PasswordHash, m.IsActive, m.IsStaff, m.IsSuperuser)
	if err := row.Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO vault_collections (uuid, user_id, name)
        VALUES ($1,$2,'Default')
    `, uuid.NewString(), out.ID); err != nil {
		return nil, err
	}

	if encryptedKey != nil {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO user_keys (user_id, encrypted_key)
            VALUES ($1,$2)
        `, out.ID, *encryptedKey); err != nil {
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
	var out model.User
	row := u.db.QueryRowContext(ctx, `
        SELECT id, email, password_hash, is_active, is_staff, is_superuser, created_at, updated_at
        FROM users WHERE lower(email)=lower($1)
    `, email)
	if err := row.Scan(&out.ID, &out.Email, &out.PasswordHash, &out.IsActive, &out.IsStaff, &out.IsSuperuser, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &out, nil
}

func (u *users) Get(ctx context.Context, id int64) (*model.User, error) {
	var out model.User
	row := u.db.QueryRowContext(ctx, `
        SELECT id, email, password_hash, is_active, is_staff, is_superuser, created_at, updated_at
        FROM users WHERE id=$1
    `, id)
	if err := row.Scan(&out.ID, &out.Email, &out.PasswordHash, &out.IsActive, &out.IsStaff, &out.IsSuperuser, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &out, nil
}

func (u *users) Delete(ctx context.Context, id int64) error {
	res, err := u.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
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
	out := model.UserKey{UserID: userID, EncryptedKey: encryptedKey}
	row := k.db.QueryRowContext(ctx, `
        INSERT INTO user_keys (user_id, encrypted_key)
        VALUES ($1,$2)
        RETURNING created_at, updated_at
    `, userID, encryptedKey)
	if err := row.Scan(&out.CreatedAt, &out.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, err
	}
	return &out, nil
}

func (k *userKeys) Get(ctx context.Context, userID int64) (*model.UserKey, error) {
	out := model.UserKey{UserID: userID}
	row := k.db.QueryRowContext(ctx, `
        SELECT encrypted_key, created_at, updated_at
        FROM user_keys WHERE user_id=$1
    `, userID)
	if err := row.Scan(&out.EncryptedKey, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &out, nil
}

// --- Collections ---

type collections struct{ db *sql.DB }

func (c *collections) Create(ctx context.Context, ownerID int64, name string) (*model.VaultCollection, error) {
	out := model.VaultCollection{UUID: uuid.NewString(), UserID: ownerID, Name: name}
	row := c.db.QueryRowContext(ctx, `
        INSERT INTO vault_collections (uuid, user_id, name)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at
    `, out.UUID, ownerID, name)
	if err := row.Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *collections) GetByUUID(ctx context.Context, ownerID int64, uid string) (*model.VaultCollection, error) {
	out := model.VaultCollection{UserID: ownerID}
	row := c.db.QueryRowContext(ctx, `
        SELECT c.id, c.uuid, c.name, COUNT(i.id), c.created_at, c.updated_at
        FROM vault_collections c
        LEFT JOIN vault_items i ON i.collection_id = c.id
        WHERE c.uuid=$1 AND c.user_id=$2
        GROUP BY c.id
    `, uid, ownerID)
	if err := row.Scan(&out.ID, &out.UUID, &out.Name, &out.ItemCount, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &out, nil
}

func (c *collections) List(ctx context.Context, ownerID int64) ([]*model.VaultCollection, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT c.id, c.uuid, c.name, COUNT(i.id), c.created_at, c.updated_at
        FROM vault_collections c
        LEFT JOIN vault_items i ON i.collection_id = c.id
        WHERE c.user_id=$1
        GROUP BY c.id
        ORDER BY c.created_at
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
	out := model.VaultCollection{UUID: uid, UserID: ownerID, Name: name}
	row := c.db.QueryRowContext(ctx, `
        UPDATE vault_collections SET name=$1, updated_at=now()
        WHERE uuid=$2 AND user_id=$3
        RETURNING id, created_at, updated_at
    `, name, uid, ownerID)
	if err := row.Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &out, nil
}

func (c *collections) Delete(ctx context.Context, ownerID int64, uid string) error {
	res, err := c.db.ExecContext(ctx, `
        DELETE FROM vault_collections WHERE uuid=$1 AND user_id=$2
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
	// The collection itself must resolve owner-filtered first so an empty
	// collection and a foreign one do not look alike.
	if _, err := c.GetByUUID(ctx, ownerID, uid); err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, `
        SELECT i.uuid
        FROM vault_items i
        JOIN vault_collections c ON c.id = i.collection_id
        WHERE c.uuid=$1 AND c.user_id=$2
        ORDER BY i.created_at
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

func (it *items) Create(ctx context.Context, ownerID int64, collectionUUID, encryptedData string) (*model.VaultItem, error) {
	out := model.VaultItem{UUID: uuid.NewString(), CollectionUUID: collectionUUID, EncryptedData: encryptedData}
	// One statement: the insert only happens when the owner-filtered
	// collection lookup yields a row.
	row := it.db.QueryRowContext(ctx, `
        INSERT INTO vault_items (uuid, collection_id, encrypted_data)
        SELECT $1, c.id, $2
        FROM vault_collections c
        WHERE c.uuid=$3 AND c.user_id=$4
        RETURNING id, collection_id, created_at, updated_at
    `, out.UUID, encryptedData, collectionUUID, ownerID)
	if err := row.Scan(&out.ID, &out.CollectionID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &out, nil
}

const itemSelect = `
    SELECT i.id, i.uuid, i.collection_id, c.uuid, i.encrypted_data, i.created_at, i.updated_at
    FROM vault_items i
    JOIN vault_collections c ON c.id = i.collection_id
`

func scanItem(row *sql.Row) (*model.VaultItem, error) {
	var out model.VaultItem
	if err := row.Scan(&out.ID, &out.UUID, &out.CollectionID, &out.CollectionUUID, &out.EncryptedData, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &out, nil
}

func (it *items) GetByUUID(ctx context.Context, ownerID int64, uid string) (*model.VaultItem, error) {
	row := it.db.QueryRowContext(ctx, itemSelect+`WHERE i.uuid=$1 AND c.user_id=$2`, uid, ownerID)
	return scanItem(row)
}

func (it *items) List(ctx context.Context, ownerID int64) ([]*model.VaultItem, error) {
	rows, err := it.db.QueryContext(ctx, itemSelect+`WHERE c.user_id=$1 ORDER BY i.created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (it *items) ListByCollection(ctx context.Context, ownerID int64, collectionUUID string) ([]*model.VaultItem, error) {
	rows, err := it.db.QueryContext(ctx, itemSelect+`WHERE c.user_id=$1 AND c.uuid=$2 ORDER BY i.created_at`, ownerID, collectionUUID)
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
	tx, err := it.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	if newCollectionUUID != nil {
		// Resolve the move target owner-filtered inside the same transaction
		// as the write; a foreign target is indistinguishable from a missing
		// one.
		var targetID int64
		if err := tx.QueryRowContext(ctx, `
            SELECT id FROM vault_collections WHERE uuid=$1 AND user_id=$2
        `, *newCollectionUUID, ownerID).Scan(&targetID); err != nil {
			return nil, mapRowErr(err)
		}
		res, err = tx.ExecContext(ctx, `
            UPDATE vault_items i SET encrypted_data=$1, collection_id=$2, updated_at=now()
            FROM vault_collections c
            WHERE c.id = i.collection_id AND i.uuid=$3 AND c.user_id=$4
        `, encryptedData, targetID, uid, ownerID)
	} else {
		res, err = tx.ExecContext(ctx, `
            UPDATE vault_items i SET encrypted_data=$1, updated_at=now()
            FROM vault_collections c
            WHERE c.id = i.collection_id AND i.uuid=$2 AND c.user_id=$3
        `, encryptedData, uid, ownerID)
	}
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}

	out, err := scanItem(tx.QueryRowContext(ctx, itemSelect+`WHERE i.uuid=$1 AND c.user_id=$2`, uid, ownerID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (it *items) Delete(ctx context.Context, ownerID int64, uid string) error {
	res, err := it.db.ExecContext(ctx, `
        DELETE FROM vault_items i
        USING vault_collections c
        WHERE c.id = i.collection_id AND i.uuid=$1 AND c.user_id=$2
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
	row := s.db.QueryRowContext(ctx, `
        INSERT INTO sessions (token, csrf_token, user_id, expires_at)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at
    `, m.Token, m.CSRFToken, m.UserID, m.ExpiresAt)
	return row.Scan(&m.CreatedAt)
}

func (s *sessions) Get(ctx context.Context, token string) (*model.Session, error) {
	var out model.Session
	row := s.db.QueryRowContext(ctx, `
        SELECT token, csrf_token, user_id, created_at, expires_at
        FROM sessions WHERE token=$1 AND expires_at > $2
    `, token, time.Now().UTC())
	if err := row.Scan(&out.Token, &out.CSRFToken, &out.UserID, &out.CreatedAt, &out.ExpiresAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &out, nil
}

func (s *sessions) Delete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=$1`, token)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
