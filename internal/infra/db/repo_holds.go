package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"custodia/internal/domain"
)

type LegalHoldRepo struct {
	store *Store
}

func (r *LegalHoldRepo) Create(ctx context.Context, hold domain.LegalHold) error {
	model := legalHoldToModel(hold)
	if err := r.store.DB.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("create legal hold %s: %w", hold.HoldID, err)
	}
	return nil
}

func (r *LegalHoldRepo) Update(ctx context.Context, hold domain.LegalHold) error {
	result := r.store.DB.WithContext(ctx).
		Model(&legalHoldModel{}).
		Where("hold_id = ?", hold.HoldID).
		Updates(map[string]any{
			"description": hold.Description,
			"expires_at":  hold.ExpiresAt,
			"is_active":   hold.IsActive,
		})
	if result.Error != nil {
		return fmt.Errorf("update legal hold %s: %w", hold.HoldID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("legal hold %s not found", hold.HoldID)
	}
	return nil
}

func (r *LegalHoldRepo) GetByID(ctx context.Context, holdID string) (domain.LegalHold, error) {
	var model legalHoldModel
	err := r.store.DB.WithContext(ctx).Where("hold_id = ?", holdID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.LegalHold{}, fmt.Errorf("legal hold %s not found", holdID)
	}
	if err != nil {
		return domain.LegalHold{}, fmt.Errorf("get legal hold %s: %w", holdID, err)
	}
	return legalHoldFromModel(model), nil
}

func (r *LegalHoldRepo) ListByCase(ctx context.Context, caseID string) ([]domain.LegalHold, error) {
	var models []legalHoldModel
	err := r.store.DB.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list legal holds for case %s: %w", caseID, err)
	}
	return legalHoldsFromModels(models), nil
}

func (r *LegalHoldRepo) ListActive(ctx context.Context, now time.Time) ([]domain.LegalHold, error) {
	var models []legalHoldModel
	err := r.store.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list active legal holds: %w", err)
	}
	return legalHoldsFromModels(models), nil
}

func legalHoldToModel(hold domain.LegalHold) legalHoldModel {
	return legalHoldModel{
		HoldID:      hold.HoldID,
		CaseID:      hold.CaseID,
		Description: hold.Description,
		CreatedBy:   hold.CreatedBy,
		CreatedAt:   hold.CreatedAt,
		ExpiresAt:   hold.ExpiresAt,
		IsActive:    hold.IsActive,
	}
}

func legalHoldFromModel(model legalHoldModel) domain.LegalHold {
	return domain.LegalHold{
		HoldID:      model.HoldID,
		CaseID:      model.CaseID,
		Description: model.Description,
		CreatedBy:   model.CreatedBy,
		CreatedAt:   model.CreatedAt,
		ExpiresAt:   model.ExpiresAt,
		IsActive:    model.IsActive,
	}
}

func legalHoldsFromModels(models []legalHoldModel) []domain.LegalHold {
	holds := make([]domain.LegalHold, 0, len(models))
	for _, model := range models {
		holds = append(holds, legalHoldFromModel(model))
	}
	return holds
}
