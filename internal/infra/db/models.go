package db

import "time"

// auditEventModel stores the timestamp twice: the RFC3339Nano string is
// authoritative so the canonical checksum survives a round trip exactly,
// and the nanosecond column exists for range queries and ordering.
type auditEventModel struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	EventID     string `gorm:"uniqueIndex;size:64"`
	EventType   string `gorm:"index;size:64"`
	Timestamp   string `gorm:"size:64"`
	TimestampNS int64  `gorm:"index"`

	UserID    string `gorm:"index;size:128"`
	Username  string `gorm:"size:256"`
	IPAddress string `gorm:"size:64"`
	UserAgent string `gorm:"size:512"`
	SessionID string `gorm:"size:128"`

	CaseID     string `gorm:"index;size:128"`
	ResourceID string `gorm:"index;size:128"`

	Action   string `gorm:"size:128"`
	Details  string
	Severity string `gorm:"size:16"`

	Checksum  string `gorm:"size:64"`
	Signature string `gorm:"size:256"`
}

func (auditEventModel) TableName() string { return "audit_events" }

type legalHoldModel struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	HoldID      string `gorm:"uniqueIndex;size:64"`
	CaseID      string `gorm:"index;size:128"`
	Description string
	CreatedBy   string `gorm:"size:128"`
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	IsActive    bool `gorm:"index"`
}

func (legalHoldModel) TableName() string { return "legal_holds" }

type complianceRuleModel struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	RuleID      string `gorm:"uniqueIndex;size:64"`
	Name        string `gorm:"size:256"`
	Description string
	EventTypes  string
	Conditions  string
	RegoModule  string
	Severity    string `gorm:"size:16"`
	Enabled     bool   `gorm:"index"`
}

func (complianceRuleModel) TableName() string { return "compliance_rules" }

type dataKeyModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	KeyID     string `gorm:"uniqueIndex;size:64"`
	Algorithm string `gorm:"size:32"`
	CreatedAt time.Time
	ExpiresAt time.Time
	Version   int
	Wrapped   []byte
}

func (dataKeyModel) TableName() string { return "data_keys" }
