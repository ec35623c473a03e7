package config

import (
	"os"
	"strconv"
)

// WrapSuite selects the AEAD used to seal data keys under the master key.
type WrapSuite string

const (
	WrapSuiteAESGCM  WrapSuite = "aes-gcm"
	WrapSuiteXChaCha WrapSuite = "xchacha20"
)

// DetectorBackend selects where the suspicious-activity windows live.
type DetectorBackend string

const (
	DetectorBackendMemory DetectorBackend = "memory"
	DetectorBackendRedis  DetectorBackend = "redis"
)

type Config struct {
	StoragePath string
	PostgresDSN string
	LogLevel    string

	MasterKeyBase64 string
	MasterKeyHex    string
	WrapSuite       WrapSuite

	KeyRotationDays       int
	RotationThresholdDays int

	LedgerKeySeedHex string
	LedgerKeyBase64  string
	PolicyBundlePath string

	DetectorBackend DetectorBackend
	DetectorMaxKeys int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RotationIntervalHours int
	IntegritySweepMinutes int
}

func FromEnv() Config {
	storagePath := os.Getenv("CUSTODIA_STORAGE_PATH")
	if storagePath == "" {
		storagePath = "/var/lib/custodia"
	}
	return Config{
		StoragePath:           storagePath,
		PostgresDSN:           os.Getenv("POSTGRES_DSN"),
		LogLevel:              envDefault("LOG_LEVEL", "info"),
		MasterKeyBase64:       os.Getenv("CUSTODIA_MASTER_KEY_BASE64"),
		MasterKeyHex:          os.Getenv("CUSTODIA_MASTER_KEY_HEX"),
		WrapSuite:             wrapSuiteDefault("CUSTODIA_WRAP_SUITE", WrapSuiteAESGCM),
		KeyRotationDays:       envIntDefault("CUSTODIA_KEY_ROTATION_DAYS", 90),
		RotationThresholdDays: envIntDefault("CUSTODIA_ROTATION_THRESHOLD_DAYS", 7),
		LedgerKeySeedHex:      os.Getenv("CUSTODIA_LEDGER_KEY_SEED_HEX"),
		LedgerKeyBase64:       os.Getenv("CUSTODIA_LEDGER_KEY_BASE64"),
		PolicyBundlePath:      os.Getenv("CUSTODIA_POLICY_BUNDLE_PATH"),
		DetectorBackend:       detectorBackendDefault("CUSTODIA_DETECTOR_BACKEND", DetectorBackendMemory),
		DetectorMaxKeys:       envIntDefault("CUSTODIA_DETECTOR_MAX_KEYS", 10000),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               envIntDefault("REDIS_DB", 0),
		RotationIntervalHours: envIntDefault("CUSTODIA_ROTATION_INTERVAL_HOURS", 24),
		IntegritySweepMinutes: envIntDefault("CUSTODIA_INTEGRITY_SWEEP_MINUTES", 60),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func wrapSuiteDefault(key string, def WrapSuite) WrapSuite {
	switch WrapSuite(os.Getenv(key)) {
	case WrapSuiteAESGCM:
		return WrapSuiteAESGCM
	case WrapSuiteXChaCha:
		return WrapSuiteXChaCha
	default:
		return def
	}
}

func detectorBackendDefault(key string, def DetectorBackend) DetectorBackend {
	switch DetectorBackend(os.Getenv(key)) {
	case DetectorBackendMemory:
		return DetectorBackendMemory
	case DetectorBackendRedis:
		return DetectorBackendRedis
	default:
		return def
	}
}
