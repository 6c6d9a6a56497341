package store

import (
	"context"
	"time"

	"github.com/keyfold/keyfold-server/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (e.g., postgres, sqlite).
//
// Every lookup that takes a UUID also takes the owner's user ID, and
// implementations must fold both into a single query predicate. There is
// deliberately no way to fetch a collection or item by UUID alone, so an
// ownership check can never be skipped by a future code path. A missing row
// and a row owned by someone else are the same outcome: model.ErrNotFound.
type Store interface {
	Users() Users
	UserKeys() UserKeys
	Collections() Collections
	Items() Items
	Sessions() Sessions

	// Ping verifies connectivity to the backing engine.
	Ping(ctx context.Context) error
}

type Users interface {
	// Create inserts the user and provisions its "Default" collection in one
	// transaction, so no user is ever observable without it. A duplicate
	// email (case-insensitive) returns model.ErrConflict.
	Create(ctx context.Context, u *model.User) (*model.User, error)

	// CreateWithKey is the signup path: same transaction as Create plus the
	// user's encrypted symmetric key record.
	CreateWithKey(ctx context.Context, u *model.User, encryptedKey string) (*model.User, error)

	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Get(ctx context.Context, id int64) (*model.User, error)

	// Delete removes the user and, via cascade, its key record, sessions,
	// collections and items.
	Delete(ctx context.Context, id int64) error
}

type UserKeys interface {
	// Create returns model.ErrConflict if a key record already exists.
	Create(ctx context.Context, userID int64, encryptedKey string) (*model.UserKey, error)

	// Get returns model.ErrNotFound for accounts without a key record; that
	// is an expected state, not a fault.
	Get(ctx context.Context, userID int64) (*model.UserKey, error)
}

type Collections interface {
	Create(ctx context.Context, ownerID int64, name string) (*model.VaultCollection, error)
	GetByUUID(ctx context.Context, ownerID int64, uuid string) (*model.VaultCollection, error)
	List(ctx context.Context, ownerID int64) ([]*model.VaultCollection, error)
	Rename(ctx context.Context, ownerID int64, uuid, name string) (*model.VaultCollection, error)

	// Delete cascades to the collection's items.
	Delete(ctx context.Context, ownerID int64, uuid string) error

	// ItemUUIDs lists the UUIDs of the collection's items, owner-scoped.
	ItemUUIDs(ctx context.Context, ownerID int64, uuid string) ([]string, error)
}

type Items interface {
	// Create resolves the target collection owner-filtered inside the insert
	// statement; an unknown or foreign collection UUID is model.ErrNotFound.
	Create(ctx context.Context, ownerID int64, collectionUUID, encryptedData string) (*model.VaultItem, error)

	GetByUUID(ctx context.Context, ownerID int64, uuid string) (*model.VaultItem, error)
	List(ctx context.Context, ownerID int64) ([]*model.VaultItem, error)
	ListByCollection(ctx context.Context, ownerID int64, collectionUUID string) ([]*model.VaultItem, error)

	// Update replaces the ciphertext and, when newCollectionUUID is non-nil,
	// moves the item; the target collection is validated owner-filtered in
	// the same transaction as the write.
	Update(ctx context.Context, ownerID int64, uuid, encryptedData string, newCollectionUUID *string) (*model.VaultItem, error)

	Delete(ctx context.Context, ownerID int64, uuid string) error
}

type Sessions interface {
	Create(ctx context.Context, s *model.Session) error

	// Get returns model.ErrNotFound for unknown and for expired tokens.
	Get(ctx context.Context, token string) (*model.Session, error)

	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
