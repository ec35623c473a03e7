package db

import (
	"context"
	"fmt"
	"time"

	"custodia/internal/domain"
)

// AuditEventRepo is the durable append-only trail. Rows are never
// updated or deleted; List returns append order.
type AuditEventRepo struct {
	store *Store
}

func (r *AuditEventRepo) Append(ctx context.Context, event domain.AuditEvent) error {
	model, err := auditEventToModel(event)
	if err != nil {
		return err
	}
	if err := r.store.DB.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("append audit event %s: %w", event.EventID, err)
	}
	return nil
}

func (r *AuditEventRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	query := r.store.DB.WithContext(ctx).Model(&auditEventModel{}).Order("id ASC")
	if filter.CaseID != "" {
		query = query.Where("case_id = ?", filter.CaseID)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if !filter.Start.IsZero() {
		query = query.Where("timestamp_ns >= ?", filter.Start.UnixNano())
	}
	if !filter.End.IsZero() {
		query = query.Where("timestamp_ns <= ?", filter.End.UnixNano())
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, 0, len(filter.EventTypes))
		for _, t := range filter.EventTypes {
			types = append(types, string(t))
		}
		query = query.Where("event_type IN ?", types)
	}

	var models []auditEventModel
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	events := make([]domain.AuditEvent, 0, len(models))
	for _, model := range models {
		event, err := auditEventFromModel(model)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func auditEventToModel(event domain.AuditEvent) (auditEventModel, error) {
	details, err := marshalJSONColumn(event.Details)
	if err != nil {
		return auditEventModel{}, fmt.Errorf("encode details for %s: %w", event.EventID, err)
	}
	ts := event.Timestamp.UTC()
	return auditEventModel{
		EventID:     event.EventID,
		EventType:   string(event.EventType),
		Timestamp:   ts.Format(time.RFC3339Nano),
		TimestampNS: ts.UnixNano(),
		UserID:      event.UserID,
		Username:    event.Username,
		IPAddress:   event.IPAddress,
		UserAgent:   event.UserAgent,
		SessionID:   event.SessionID,
		CaseID:      event.CaseID,
		ResourceID:  event.ResourceID,
		Action:      event.Action,
		Details:     details,
		Severity:    string(event.Severity),
		Checksum:    event.Checksum,
		Signature:   event.Signature,
	}, nil
}

func auditEventFromModel(model auditEventModel) (domain.AuditEvent, error) {
	ts, err := time.Parse(time.RFC3339Nano, model.Timestamp)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("decode timestamp for %s: %w", model.EventID, err)
	}
	details, err := unmarshalJSONColumn(model.Details)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("decode details for %s: %w", model.EventID, err)
	}
	return domain.AuditEvent{
		EventID:    model.EventID,
		EventType:  domain.AuditEventType(model.EventType),
		Timestamp:  ts,
		UserID:     model.UserID,
		Username:   model.Username,
		IPAddress:  model.IPAddress,
		UserAgent:  model.UserAgent,
		SessionID:  model.SessionID,
		CaseID:     model.CaseID,
		ResourceID: model.ResourceID,
		Action:     model.Action,
		Details:    details,
		Severity:   domain.Severity(model.Severity),
		Checksum:   model.Checksum,
		Signature:  model.Signature,
	}, nil
}
