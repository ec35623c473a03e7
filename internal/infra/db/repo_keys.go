package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"custodia/internal/domain"
)

// DataKeyRepo persists wrapped data keys. The wrapped blob is opaque
// here; only the crypto service can open it.
type DataKeyRepo struct {
	store *Store
}

func (r *DataKeyRepo) Save(ctx context.Context, key domain.WrappedKey) error {
	model := dataKeyToModel(key)
	if err := r.store.DB.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("save data key %s: %w", key.KeyID, err)
	}
	return nil
}

func (r *DataKeyRepo) Get(ctx context.Context, keyID string) (domain.WrappedKey, error) {
	var model dataKeyModel
	err := r.store.DB.WithContext(ctx).Where("key_id = ?", keyID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.WrappedKey{}, fmt.Errorf("key %s: %w", keyID, domain.ErrKeyUnknown)
	}
	if err != nil {
		return domain.WrappedKey{}, fmt.Errorf("get data key %s: %w", keyID, err)
	}
	return dataKeyFromModel(model), nil
}

func (r *DataKeyRepo) Update(ctx context.Context, key domain.WrappedKey) error {
	result := r.store.DB.WithContext(ctx).
		Model(&dataKeyModel{}).
		Where("key_id = ?", key.KeyID).
		Updates(map[string]any{
			"expires_at": key.ExpiresAt,
			"version":    key.Version,
		})
	if result.Error != nil {
		return fmt.Errorf("update data key %s: %w", key.KeyID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("key %s: %w", key.KeyID, domain.ErrKeyUnknown)
	}
	return nil
}

func (r *DataKeyRepo) List(ctx context.Context) ([]domain.WrappedKey, error) {
	var models []dataKeyModel
	if err := r.store.DB.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list data keys: %w", err)
	}
	keys := make([]domain.WrappedKey, 0, len(models))
	for _, model := range models {
		keys = append(keys, dataKeyFromModel(model))
	}
	return keys, nil
}

func dataKeyToModel(key domain.WrappedKey) dataKeyModel {
	return dataKeyModel{
		KeyID:     key.KeyID,
		Algorithm: key.Algorithm,
		CreatedAt: key.CreatedAt,
		ExpiresAt: key.ExpiresAt,
		Version:   key.Version,
		Wrapped:   key.Wrapped,
	}
}

func dataKeyFromModel(model dataKeyModel) domain.WrappedKey {
	return domain.WrappedKey{
		EncryptionKey: domain.EncryptionKey{
			KeyID:     model.KeyID,
			Algorithm: model.Algorithm,
			CreatedAt: model.CreatedAt,
			ExpiresAt: model.ExpiresAt,
			Version:   model.Version,
		},
		Wrapped: model.Wrapped,
	}
}
