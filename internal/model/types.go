package model

import "time"

// User represents an account in the system. The numeric ID is internal and
// never leaves the process boundary; users are addressed by email externally.
type User struct {
	ID           int64     `json:"-"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"isActive"`
	IsStaff      bool      `json:"-"`
	IsSuperuser  bool      `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserKey holds the client-encrypted symmetric key for one user. The server
// stores it as an opaque string and never interprets it.
type UserKey struct {
	UserID       int64     `json:"-"`
	EncryptedKey string    `json:"encryptedKey"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// VaultCollection groups vault items under a user. UUID is the only public
// identifier; it is generated at creation and immutable.
type VaultCollection struct {
	ID        int64     `json:"-"`
	UUID      string    `json:"uuid"`
	UserID    int64     `json:"-"`
	Name      string    `json:"name"`
	ItemCount int       `json:"itemCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VaultItem is an opaque ciphertext record belonging to one collection.
// Ownership is transitive: the item's owner is its collection's owner.
type VaultItem struct {
	ID             int64     `json:"-"`
	UUID           string    `json:"uuid"`
	CollectionID   int64     `json:"-"`
	CollectionUUID string    `json:"collectionUuid"`
	EncryptedData  string    `json:"encryptedData"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Session is a server-side login session referenced by an opaque cookie.
// The CSRF token is bound to the session and required on unsafe methods.
type Session struct {
	Token     string
	CSRFToken string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}
