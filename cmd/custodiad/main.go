// custodiad runs the custody core's background maintenance: periodic
// data-key rotation and audit-trail integrity sweeps. The custody
// operations themselves are a library boundary consumed in-process.
package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"custodia/internal/config"
	"custodia/internal/domain"
	"custodia/internal/infra/blobfs"
	"custodia/internal/infra/crypto"
	"custodia/internal/infra/db"
	"custodia/internal/infra/detector"
	"custodia/internal/infra/policyrego"
	"custodia/internal/usecase"
)

func main() {
	cfg := config.FromEnv()

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("custodiad exited")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	masterKey, err := decodeMasterKey(cfg)
	if err != nil {
		return err
	}
	master, err := crypto.NewMasterAEAD(string(cfg.WrapSuite), masterKey)
	crypto.Zero(masterKey)
	if err != nil {
		return fmt.Errorf("master key: %w", err)
	}

	signer, err := loadSigner(cfg, log)
	if err != nil {
		return err
	}

	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	store, err := db.OpenPostgres(cfg.PostgresDSN, log)
	if err != nil {
		return err
	}

	windows, err := buildWindows(cfg)
	if err != nil {
		return err
	}

	ledger := usecase.NewAuditLedger(store.AuditEvents(), usecase.LedgerOptions{
		Holds:    store.LegalHolds(),
		Rules:    store.ComplianceRules(),
		Signer:   signer,
		Detector: usecase.NewSuspiciousActivityDetector(windows, log),
		Policy:   policyrego.NewEngine(log),
		Logger:   log,
	})
	if err := ledger.SeedDefaultRules(ctx); err != nil {
		return fmt.Errorf("seed compliance rules: %w", err)
	}
	if err := loadBundleRules(ctx, ledger, cfg.PolicyBundlePath, log); err != nil {
		return err
	}

	blobs, err := blobfs.Open(cfg.StoragePath, blobfs.Options{Logger: log})
	if err != nil {
		return err
	}
	blobs.SetHoldChecker(ledger)

	cryptoSvc := usecase.NewCryptoService(master, store.DataKeys(), usecase.CryptoOptions{
		Audit:             ledger,
		RotationPeriod:    time.Duration(cfg.KeyRotationDays) * 24 * time.Hour,
		RotationThreshold: time.Duration(cfg.RotationThresholdDays) * 24 * time.Hour,
		Logger:            log,
	})

	log.WithFields(logrus.Fields{
		"storage_path":     cfg.StoragePath,
		"wrap_suite":       string(cfg.WrapSuite),
		"detector_backend": string(cfg.DetectorBackend),
	}).Info("custodiad started")

	rotation := time.NewTicker(time.Duration(cfg.RotationIntervalHours) * time.Hour)
	defer rotation.Stop()
	sweep := time.NewTicker(time.Duration(cfg.IntegritySweepMinutes) * time.Minute)
	defer sweep.Stop()

	systemActor := domain.Actor{UserID: "system", Username: "custodiad"}
	for {
		select {
		case <-ctx.Done():
			log.Info("custodiad stopping")
			return nil
		case <-rotation.C:
			report, err := cryptoSvc.RotateKeys(ctx, systemActor)
			if err != nil {
				log.WithError(err).Error("key rotation pass failed")
				continue
			}
			log.WithFields(logrus.Fields{
				"rotated": len(report.RotatedKeys),
				"expired": len(report.ExpiredKeys),
				"errors":  len(report.Errors),
			}).Info("key rotation pass complete")
		case <-sweep.C:
			runIntegritySweep(ctx, ledger, blobs, log)
		}
	}
}

func runIntegritySweep(ctx context.Context, ledger *usecase.AuditLedger, blobs *blobfs.Store, log *logrus.Logger) {
	report, err := ledger.VerifyAuditIntegrity(ctx, domain.AuditFilter{})
	if err != nil {
		log.WithError(err).Error("integrity sweep failed")
		return
	}
	entry := log.WithFields(logrus.Fields{
		"total_events":    report.TotalEvents,
		"verified_events": report.VerifiedEvents,
		"trail_root":      report.TrailRoot,
	})
	if report.Clean() {
		entry.Info("audit trail verified")
	} else {
		entry.WithFields(logrus.Fields{
			"tampered":           len(report.TamperedEvents),
			"missing_signatures": len(report.MissingSignatures),
			"failed":             len(report.FailedVerifications),
		}).Error("audit trail integrity violation")
	}

	if err := blobs.HealthCheck(ctx); err != nil {
		log.WithError(err).Error("storage health check failed")
		return
	}
	stats, err := blobs.Stats(ctx)
	if err != nil {
		log.WithError(err).Error("storage stats unavailable")
		return
	}
	log.WithFields(logrus.Fields{
		"objects":     stats.TotalObjects,
		"bytes":       stats.TotalBytes,
		"worm_locked": stats.WormLocked,
	}).Info("storage healthy")
}

func decodeMasterKey(cfg config.Config) ([]byte, error) {
	var key []byte
	var err error
	switch {
	case cfg.MasterKeyBase64 != "":
		key, err = base64.StdEncoding.DecodeString(cfg.MasterKeyBase64)
	case cfg.MasterKeyHex != "":
		key, err = hex.DecodeString(cfg.MasterKeyHex)
	default:
		return nil, fmt.Errorf("CUSTODIA_MASTER_KEY_BASE64 or CUSTODIA_MASTER_KEY_HEX is required")
	}
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(key) != crypto.DataKeyLength {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", crypto.DataKeyLength, len(key))
	}
	return key, nil
}

func loadSigner(cfg config.Config, log *logrus.Logger) (*crypto.Signer, error) {
	switch {
	case cfg.LedgerKeySeedHex != "":
		return crypto.SignerFromSeedHex(cfg.LedgerKeySeedHex)
	case cfg.LedgerKeyBase64 != "":
		return crypto.SignerFromBase64(cfg.LedgerKeyBase64)
	default:
		// An ephemeral key still signs, but signatures will not verify
		// across restarts. Fine for development only.
		log.Warn("no ledger signing key configured, generating an ephemeral one")
		return crypto.NewSigner()
	}
}

func buildWindows(cfg config.Config) (usecase.WindowStore, error) {
	switch cfg.DetectorBackend {
	case config.DetectorBackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for the redis detector backend")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return detector.NewRedisWindows(client), nil
	default:
		return detector.NewMemoryWindows(cfg.DetectorMaxKeys), nil
	}
}

// loadBundleRules registers every .rego file in the bundle directory as
// an enabled rule applying to all event types. The module itself decides
// which events it cares about.
func loadBundleRules(ctx context.Context, ledger *usecase.AuditLedger, bundlePath string, log *logrus.Logger) error {
	if bundlePath == "" {
		return nil
	}
	entries, err := os.ReadDir(bundlePath)
	if err != nil {
		return fmt.Errorf("read policy bundle: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		module, err := os.ReadFile(filepath.Join(bundlePath, entry.Name()))
		if err != nil {
			return fmt.Errorf("read policy %s: %w", entry.Name(), err)
		}
		ruleID := strings.TrimSuffix(entry.Name(), ".rego")
		err = ledger.RegisterRule(ctx, domain.ComplianceRule{
			RuleID:     "bundle_" + ruleID,
			Name:       ruleID,
			RegoModule: string(module),
			Severity:   domain.SeverityMedium,
			Enabled:    true,
		})
		if err != nil {
			return fmt.Errorf("register policy %s: %w", entry.Name(), err)
		}
		log.WithField("rule_id", "bundle_"+ruleID).Info("policy bundle rule loaded")
	}
	return nil
}
