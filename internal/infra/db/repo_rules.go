package db

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"custodia/internal/domain"
)

type ComplianceRuleRepo struct {
	store *Store
}

// Save upserts on rule id so re-registering a rule edits it in place.
func (r *ComplianceRuleRepo) Save(ctx context.Context, rule domain.ComplianceRule) error {
	model, err := complianceRuleToModel(rule)
	if err != nil {
		return err
	}
	err = r.store.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "rule_id"}},
			UpdateAll: true,
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("save compliance rule %s: %w", rule.RuleID, err)
	}
	return nil
}

func (r *ComplianceRuleRepo) List(ctx context.Context) ([]domain.ComplianceRule, error) {
	var models []complianceRuleModel
	if err := r.store.DB.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list compliance rules: %w", err)
	}
	rules := make([]domain.ComplianceRule, 0, len(models))
	for _, model := range models {
		rule, err := complianceRuleFromModel(model)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func complianceRuleToModel(rule domain.ComplianceRule) (complianceRuleModel, error) {
	types := make([]string, 0, len(rule.EventTypes))
	for _, t := range rule.EventTypes {
		types = append(types, string(t))
	}
	encodedTypes, err := marshalStringSlice(types)
	if err != nil {
		return complianceRuleModel{}, fmt.Errorf("encode event types for %s: %w", rule.RuleID, err)
	}
	conditions, err := marshalJSONColumn(rule.Conditions)
	if err != nil {
		return complianceRuleModel{}, fmt.Errorf("encode conditions for %s: %w", rule.RuleID, err)
	}
	return complianceRuleModel{
		RuleID:      rule.RuleID,
		Name:        rule.Name,
		Description: rule.Description,
		EventTypes:  encodedTypes,
		Conditions:  conditions,
		RegoModule:  rule.RegoModule,
		Severity:    string(rule.Severity),
		Enabled:     rule.Enabled,
	}, nil
}

func complianceRuleFromModel(model complianceRuleModel) (domain.ComplianceRule, error) {
	types, err := unmarshalStringSlice(model.EventTypes)
	if err != nil {
		return domain.ComplianceRule{}, fmt.Errorf("decode event types for %s: %w", model.RuleID, err)
	}
	eventTypes := make([]domain.AuditEventType, 0, len(types))
	for _, t := range types {
		eventTypes = append(eventTypes, domain.AuditEventType(t))
	}
	conditions, err := unmarshalJSONColumn(model.Conditions)
	if err != nil {
		return domain.ComplianceRule{}, fmt.Errorf("decode conditions for %s: %w", model.RuleID, err)
	}
	return domain.ComplianceRule{
		RuleID:      model.RuleID,
		Name:        model.Name,
		Description: model.Description,
		EventTypes:  eventTypes,
		Conditions:  conditions,
		RegoModule:  model.RegoModule,
		Severity:    domain.Severity(model.Severity),
		Enabled:     model.Enabled,
	}, nil
}
