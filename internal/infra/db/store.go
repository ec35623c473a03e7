// Package db persists audit events, legal holds, compliance rules and
// wrapped data keys behind gorm.
package db

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Store struct {
	DB  *gorm.DB
	log *logrus.Logger
}

// New wraps an already-open gorm handle. Tests use this with the sqlite
// driver; production goes through OpenPostgres.
func New(gdb *gorm.DB, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.New()
	}
	store := &Store{DB: gdb, log: log}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func OpenPostgres(dsn string, log *logrus.Logger) (*Store, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(gdb, log)
}

func (s *Store) migrate() error {
	if err := s.DB.AutoMigrate(
		&auditEventModel{},
		&legalHoldModel{},
		&complianceRuleModel{},
		&dataKeyModel{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) AuditEvents() *AuditEventRepo {
	return &AuditEventRepo{store: s}
}

func (s *Store) LegalHolds() *LegalHoldRepo {
	return &LegalHoldRepo{store: s}
}

func (s *Store) ComplianceRules() *ComplianceRuleRepo {
	return &ComplianceRuleRepo{store: s}
}

func (s *Store) DataKeys() *DataKeyRepo {
	return &DataKeyRepo{store: s}
}
