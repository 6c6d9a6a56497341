package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/keyfold/keyfold-server/internal/model"
	"github.com/keyfold/keyfold-server/internal/store"
)

// VaultService fronts the owner-scoped vault hierarchy. Every operation takes
// the caller's user ID; the store guarantees the predicate reaches the query.
type VaultService struct {
	store store.Store
}

func NewVaultService(s store.Store) *VaultService { return &VaultService{store: s} }

func (s *VaultService) CreateCollection(ctx context.Context, ownerID int64, name string) (*model.VaultCollection, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name must not be blank", model.ErrValidation)
	}
	return s.store.Collections().Create(ctx, ownerID, name)
}

func (s *VaultService) GetCollection(ctx context.Context, ownerID int64, uuid string) (*model.VaultCollection, error) {
	return s.store.Collections().GetByUUID(ctx, ownerID, uuid)
}

func (s *VaultService) ListCollections(ctx context.Context, ownerID int64) ([]*model.VaultCollection, error) {
	return s.store.Collections().List(ctx, ownerID)
}

func (s *VaultService) RenameCollection(ctx context.Context, ownerID int64, uuid, name string) (*model.VaultCollection, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name must not be blank", model.ErrValidation)
	}
	return s.store.Collections().Rename(ctx, ownerID, uuid, name)
}

func (s *VaultService) DeleteCollection(ctx context.Context, ownerID int64, uuid string) error {
	return s.store.Collections().Delete(ctx, ownerID, uuid)
}

// CollectionItemUUIDs backs the expanded collection detail view.
func (s *VaultService) CollectionItemUUIDs(ctx context.Context, ownerID int64, uuid string) ([]string, error) {
	return s.store.Collections().ItemUUIDs(ctx, ownerID, uuid)
}

func (s *VaultService) CreateItem(ctx context.Context, ownerID int64, collectionUUID, encryptedData string) (*model.VaultItem, error) {
	if encryptedData == "" {
		return nil, fmt.Errorf("%w: encryptedData must not be blank", model.ErrValidation)
	}
	return s.store.Items().Create(ctx, ownerID, collectionUUID, encryptedData)
}

func (s *VaultService) GetItem(ctx context.Context, ownerID int64, uuid string) (*model.VaultItem, error) {
	return s.store.Items().GetByUUID(ctx, ownerID, uuid)
}

// ListItems returns the caller's items; collectionUUID narrows the listing
// when non-empty.
func (s *VaultService) ListItems(ctx context.Context, ownerID int64, collectionUUID string) ([]*model.VaultItem, error) {
	if collectionUUID != "" {
		return s.store.Items().ListByCollection(ctx, ownerID, collectionUUID)
	}
	return s.store.Items().List(ctx, ownerID)
}

func (s *VaultService) UpdateItem(ctx context.Context, ownerID int64, uuid, encryptedData string, newCollectionUUID *string) (*model.VaultItem, error) {
	if encryptedData == "" {
		return nil, fmt.Errorf("%w: encryptedData must not be blank", model.ErrValidation)
	}
	return s.store.Items().Update(ctx, ownerID, uuid, encryptedData, newCollectionUUID)
}

func (s *VaultService) DeleteItem(ctx context.Context, ownerID int64, uuid string) error {
	return s.store.Items().Delete(ctx, ownerID, uuid)
}
