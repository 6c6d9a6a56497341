package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/keyfold/keyfold-server/internal/model"
	"github.com/keyfold/keyfold-server/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	newUser := func(t *testing.T) *model.User {
		t.Helper()
		u := &model.User{
			Email:        "u-" + uuid.NewString() + "@example.test",
			PasswordHash: "x",
			IsActive:     true,
		}
		created, err := s.Users().Create(ctx, u)
		if err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		return created
	}

	t.Run("user create provisions default collection", func(t *testing.T) {
		u := newUser(t)
		if u.ID == 0 {
			t.Fatalf("CreateUser: zero id")
		}
		cols, err := s.Collections().List(ctx, u.ID)
		if err != nil {
			t.Fatalf("ListCollections: %v", err)
		}
		if len(cols) != 1 || cols[0].Name != "Default" {
			t.Fatalf("expected exactly one Default collection, got %+v", cols)
		}
		if cols[0].UUID == "" {
			t.Fatalf("default collection has no uuid")
		}
	})

	t.Run("duplicate email is conflict, case-insensitive", func(t *testing.T) {
		u := newUser(t)
		dup := &model.User{Email: u.Email, PasswordHash: "y", IsActive: true}
		if _, err := s.Users().Create(ctx, dup); !errors.Is(err, model.ErrConflict) {
			t.Fatalf("duplicate email: want ErrConflict, got %v", err)
		}
		upper := &model.User{Email: "U-" + u.Email[2:], PasswordHash: "y", IsActive: true}
		if _, err := s.Users().Create(ctx, upper); !errors.Is(err, model.ErrConflict) {
			t.Fatalf("case-variant duplicate: want ErrConflict, got %v", err)
		}
	})

	t.Run("create with key provisions key record once", func(t *testing.T) {
		u := &model.User{Email: "k-" + uuid.NewString() + "@example.test", PasswordHash: "x", IsActive: true}
		created, err := s.Users().CreateWithKey(ctx, u, "enc-key-blob")
		if err != nil {
			t.Fatalf("CreateWithKey: %v", err)
		}
		k, err := s.UserKeys().Get(ctx, created.ID)
		if err != nil || k.EncryptedKey != "enc-key-blob" {
			t.Fatalf("UserKeys.Get: got=%+v err=%v", k, err)
		}
		if _, err := s.UserKeys().Create(ctx, created.ID, "another"); !errors.Is(err, model.ErrConflict) {
			t.Fatalf("second key: want ErrConflict, got %v", err)
		}
	})

	t.Run("missing key record is not found", func(t *testing.T) {
		u := newUser(t)
		if _, err := s.UserKeys().Get(ctx, u.ID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("collection crud is owner scoped", func(t *testing.T) {
		owner := newUser(t)
		stranger := newUser(t)

		c, err := s.Collections().Create(ctx, owner.ID, "Work")
		if err != nil {
			t.Fatalf("CreateCollection: %v", err)
		}
		if c.UUID == "" {
			t.Fatalf("collection has no uuid")
		}
		if _, err := uuid.Parse(c.UUID); err != nil {
			t.Fatalf("collection uuid not parseable: %v", err)
		}

		if got, err := s.Collections().GetByUUID(ctx, owner.ID, c.UUID); err != nil || got.Name != "Work" {
			t.Fatalf("GetByUUID: got=%+v err=%v", got, err)
		}
		// Foreign owner and unknown uuid collapse into the same outcome.
		if _, err := s.Collections().GetByUUID(ctx, stranger.ID, c.UUID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("foreign get: want ErrNotFound, got %v", err)
		}
		if _, err := s.Collections().GetByUUID(ctx, owner.ID, uuid.NewString()); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("unknown get: want ErrNotFound, got %v", err)
		}

		if _, err := s.Collections().Rename(ctx, stranger.ID, c.UUID, "stolen"); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("foreign rename: want ErrNotFound, got %v", err)
		}
		renamed, err := s.Collections().Rename(ctx, owner.ID, c.UUID, "Personal")
		if err != nil || renamed.Name != "Personal" {
			t.Fatalf("Rename: got=%+v err=%v", renamed, err)
		}

		if err := s.Collections().Delete(ctx, stranger.ID, c.UUID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("foreign delete: want ErrNotFound, got %v", err)
		}
		if err := s.Collections().Delete(ctx, owner.ID, c.UUID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Collections().GetByUUID(ctx, owner.ID, c.UUID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("get after delete: want ErrNotFound, got %v", err)
		}
	})

	t.Run("item lifecycle", func(t *testing.T) {
		owner := newUser(t)
		stranger := newUser(t)
		c, err := s.Collections().Create(ctx, owner.ID, "folder1")
		if err != nil {
			t.Fatalf("CreateCollection: %v", err)
		}

		// Create against a foreign collection fails closed.
		foreign, err := s.Collections().Create(ctx, stranger.ID, "folder2")
		if err != nil {
			t.Fatalf("CreateCollection(stranger): %v", err)
		}
		if _, err := s.Items().Create(ctx, owner.ID, foreign.UUID, "cipher"); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("create in foreign collection: want ErrNotFound, got %v", err)
		}

		item, err := s.Items().Create(ctx, owner.ID, c.UUID, "cipher-X")
		if err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
		if item.UUID == "" || item.CollectionUUID != c.UUID {
			t.Fatalf("CreateItem: bad item %+v", item)
		}

		if _, err := s.Items().GetByUUID(ctx, stranger.ID, item.UUID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("foreign item get: want ErrNotFound, got %v", err)
		}

		// Update round-trip.
		upd, err := s.Items().Update(ctx, owner.ID, item.UUID, "cipher-Y", nil)
		if err != nil || upd.EncryptedData != "cipher-Y" {
			t.Fatalf("Update: got=%+v err=%v", upd, err)
		}
		got, err := s.Items().GetByUUID(ctx, owner.ID, item.UUID)
		if err != nil || got.EncryptedData != "cipher-Y" {
			t.Fatalf("get after update: got=%+v err=%v", got, err)
		}

		// Move to another owned collection.
		c2, err := s.Collections().Create(ctx, owner.ID, "folder3")
		if err != nil {
			t.Fatalf("CreateCollection: %v", err)
		}
		moved, err := s.Items().Update(ctx, owner.ID, item.UUID, "cipher-Z", &c2.UUID)
		if err != nil || moved.CollectionUUID != c2.UUID {
			t.Fatalf("move: got=%+v err=%v", moved, err)
		}

		// Move to a foreign collection is refused and changes nothing.
		if _, err := s.Items().Update(ctx, owner.ID, item.UUID, "evil", &foreign.UUID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("move to foreign: want ErrNotFound, got %v", err)
		}
		got, err = s.Items().GetByUUID(ctx, owner.ID, item.UUID)
		if err != nil || got.EncryptedData != "cipher-Z" || got.CollectionUUID != c2.UUID {
			t.Fatalf("item changed by refused move: got=%+v err=%v", got, err)
		}

		// Foreign update leaves the row untouched.
		if _, err := s.Items().Update(ctx, stranger.ID, item.UUID, "evil", nil); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("foreign update: want ErrNotFound, got %v", err)
		}

		if err := s.Items().Delete(ctx, stranger.ID, item.UUID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("foreign delete: want ErrNotFound, got %v", err)
		}
		if err := s.Items().Delete(ctx, owner.ID, item.UUID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Items().GetByUUID(ctx, owner.ID, item.UUID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("get after delete: want ErrNotFound, got %v", err)
		}
	})

	t.Run("collection delete cascades to items", func(t *testing.T) {
		owner := newUser(t)
		c, _ := s.Collections().Create(ctx, owner.ID, "doomed")
		if _, err := s.Items().Create(ctx, owner.ID, c.UUID, "cipher"); err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
		if err := s.Collections().Delete(ctx, owner.ID, c.UUID); err != nil {
			t.Fatalf("DeleteCollection: %v", err)
		}
		lst, err := s.Items().List(ctx, owner.ID)
		if err != nil {
			t.Fatalf("ListItems: %v", err)
		}
		for _, it := range lst {
			if it.CollectionUUID == c.UUID {
				t.Fatalf("orphan item survived cascade: %+v", it)
			}
		}
	})

	t.Run("user delete cascades everything", func(t *testing.T) {
		u := &model.User{Email: "d-" + uuid.NewString() + "@example.test", PasswordHash: "x", IsActive: true}
		created, err := s.Users().CreateWithKey(ctx, u, "key")
		if err != nil {
			t.Fatalf("CreateWithKey: %v", err)
		}
		cols, _ := s.Collections().List(ctx, created.ID)
		if _, err := s.Items().Create(ctx, created.ID, cols[0].UUID, "cipher"); err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
		sess := &model.Session{Token: uuid.NewString(), CSRFToken: "c", UserID: created.ID, ExpiresAt: time.Now().Add(time.Hour)}
		if err := s.Sessions().Create(ctx, sess); err != nil {
			t.Fatalf("Sessions.Create: %v", err)
		}

		if err := s.Users().Delete(ctx, created.ID); err != nil {
			t.Fatalf("Users.Delete: %v", err)
		}
		if _, err := s.UserKeys().Get(ctx, created.ID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("key survived cascade: %v", err)
		}
		if lst, err := s.Collections().List(ctx, created.ID); err != nil || len(lst) != 0 {
			t.Fatalf("collections survived cascade: n=%d err=%v", len(lst), err)
		}
		if lst, err := s.Items().List(ctx, created.ID); err != nil || len(lst) != 0 {
			t.Fatalf("items survived cascade: n=%d err=%v", len(lst), err)
		}
		if _, err := s.Sessions().Get(ctx, sess.Token); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("session survived cascade: %v", err)
		}
	})

	t.Run("sessions expire", func(t *testing.T) {
		u := newUser(t)
		live := &model.Session{Token: uuid.NewString(), CSRFToken: "c1", UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour)}
		dead := &model.Session{Token: uuid.NewString(), CSRFToken: "c2", UserID: u.ID, ExpiresAt: time.Now().Add(-time.Minute)}
		if err := s.Sessions().Create(ctx, live); err != nil {
			t.Fatalf("Sessions.Create live: %v", err)
		}
		if err := s.Sessions().Create(ctx, dead); err != nil {
			t.Fatalf("Sessions.Create dead: %v", err)
		}
		if got, err := s.Sessions().Get(ctx, live.Token); err != nil || got.UserID != u.ID {
			t.Fatalf("Sessions.Get live: got=%+v err=%v", got, err)
		}
		if _, err := s.Sessions().Get(ctx, dead.Token); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expired session: want ErrNotFound, got %v", err)
		}
		if n, err := s.Sessions().DeleteExpired(ctx, time.Now()); err != nil || n < 1 {
			t.Fatalf("DeleteExpired: n=%d err=%v", n, err)
		}
		if err := s.Sessions().Delete(ctx, live.Token); err != nil {
			t.Fatalf("Sessions.Delete: %v", err)
		}
		if _, err := s.Sessions().Get(ctx, live.Token); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("deleted session still readable")
		}
	})
}
