package config

import "testing"

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"CUSTODIA_STORAGE_PATH", "POSTGRES_DSN", "LOG_LEVEL",
		"CUSTODIA_WRAP_SUITE", "CUSTODIA_KEY_ROTATION_DAYS",
		"CUSTODIA_ROTATION_THRESHOLD_DAYS", "CUSTODIA_DETECTOR_BACKEND",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	if cfg.StoragePath != "/var/lib/custodia" {
		t.Fatalf("storage path %q", cfg.StoragePath)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level %q", cfg.LogLevel)
	}
	if cfg.WrapSuite != WrapSuiteAESGCM {
		t.Fatalf("wrap suite %q", cfg.WrapSuite)
	}
	if cfg.KeyRotationDays != 90 || cfg.RotationThresholdDays != 7 {
		t.Fatalf("rotation defaults %d/%d", cfg.KeyRotationDays, cfg.RotationThresholdDays)
	}
	if cfg.DetectorBackend != DetectorBackendMemory {
		t.Fatalf("detector backend %q", cfg.DetectorBackend)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CUSTODIA_STORAGE_PATH", "/tmp/evidence")
	t.Setenv("CUSTODIA_WRAP_SUITE", "xchacha20")
	t.Setenv("CUSTODIA_KEY_ROTATION_DAYS", "30")
	t.Setenv("CUSTODIA_DETECTOR_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg := FromEnv()
	if cfg.StoragePath != "/tmp/evidence" {
		t.Fatalf("storage path %q", cfg.StoragePath)
	}
	if cfg.WrapSuite != WrapSuiteXChaCha {
		t.Fatalf("wrap suite %q", cfg.WrapSuite)
	}
	if cfg.KeyRotationDays != 30 {
		t.Fatalf("rotation days %d", cfg.KeyRotationDays)
	}
	if cfg.DetectorBackend != DetectorBackendRedis || cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("detector config %q %q", cfg.DetectorBackend, cfg.RedisAddr)
	}
}

func TestFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("CUSTODIA_WRAP_SUITE", "rot13")
	t.Setenv("CUSTODIA_KEY_ROTATION_DAYS", "-5")
	t.Setenv("CUSTODIA_DETECTOR_BACKEND", "carrier-pigeon")

	cfg := FromEnv()
	if cfg.WrapSuite != WrapSuiteAESGCM {
		t.Fatalf("bad suite not defaulted: %q", cfg.WrapSuite)
	}
	if cfg.KeyRotationDays != 90 {
		t.Fatalf("bad int not defaulted: %d", cfg.KeyRotationDays)
	}
	if cfg.DetectorBackend != DetectorBackendMemory {
		t.Fatalf("bad backend not defaulted: %q", cfg.DetectorBackend)
	}
}
