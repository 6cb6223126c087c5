package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	clearEnv(t, "ENV", "RUN_STORE", "DATABASE_URL", "ENGINE", "ENGINE_LOCK_TIMEOUT", "MAX_UPLOAD_BYTES", "ENGINE_WARMUP", "PORT")

	cfg := Load()
	if cfg.Port != "8080" || cfg.Env != "dev" {
		t.Fatalf("unexpected port/env: %q %q", cfg.Port, cfg.Env)
	}
	if cfg.Engine != EngineDictionary {
		t.Fatalf("expected dictionary engine, got %q", cfg.Engine)
	}
	if cfg.RunStore != RunStoreMemory {
		t.Fatalf("expected memory run store, got %q", cfg.RunStore)
	}
	if cfg.EngineLockTimeout != 0 || cfg.EngineWarmup {
		t.Fatalf("unexpected engine defaults: %+v", cfg)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("unexpected upload cap %d", cfg.MaxUploadBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "prod")
	t.Setenv("ENGINE", "REMOTE")
	t.Setenv("ENGINE_URL", "http://engine:9000")
	t.Setenv("ENGINE_TIMEOUT_SECONDS", "5")
	t.Setenv("ENGINE_LOCK_TIMEOUT", "250ms")
	t.Setenv("ENGINE_SCOPES", "annotate, read ,")
	t.Setenv("ENGINE_WARMUP", "true")
	t.Setenv("RUN_STORE", "sqlite3")
	t.Setenv("ANNOTATE_RATE", "0.5")
	t.Setenv("ANNOTATE_BURST", "2")

	cfg := Load()
	if cfg.Env != "production" || cfg.Engine != EngineRemote || cfg.RunStore != RunStoreSQLite {
		t.Fatalf("unexpected normalization: %+v", cfg)
	}
	if cfg.EngineTimeout != 5*time.Second || cfg.EngineLockTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected durations: %s %s", cfg.EngineTimeout, cfg.EngineLockTimeout)
	}
	if !reflect.DeepEqual(cfg.EngineScopes, []string{"annotate", "read"}) {
		t.Fatalf("unexpected scopes %v", cfg.EngineScopes)
	}
	if !cfg.EngineWarmup || cfg.AnnotateRate != 0.5 || cfg.AnnotateBurst != 2 {
		t.Fatalf("unexpected values: %+v", cfg)
	}
}

func TestLoadLockTimeoutSeconds(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENGINE_LOCK_TIMEOUT", "30")
	if got := Load().EngineLockTimeout; got != 30*time.Second {
		t.Fatalf("expected 30s, got %s", got)
	}
}

func TestLoadInvalidNumbersKeepDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MAX_UPLOAD_BYTES", "big")
	t.Setenv("ENGINE_WARMUP", "maybe")
	cfg := Load()
	if cfg.MaxUploadBytes != 10<<20 || cfg.EngineWarmup {
		t.Fatalf("invalid values should keep defaults: %+v", cfg)
	}
}

func TestRunStoreDefaultsToPostgresWithDatabaseURL(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RUN_STORE", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/annotations")
	if got := Load().RunStore; got != RunStorePostgres {
		t.Fatalf("expected postgres, got %q", got)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ENGINE_DICTIONARY=\"/etc/dict.yaml\"\n# comment\nPORT=9999\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// t.Setenv registers cleanup; the empty value lets the file supply it.
	t.Setenv("ENGINE_DICTIONARY", "")
	os.Unsetenv("ENGINE_DICTIONARY")
	t.Setenv("PORT", "7000")

	cfg := Load()
	if cfg.EngineDictionary != "/etc/dict.yaml" {
		t.Fatalf("expected dictionary from .env, got %q", cfg.EngineDictionary)
	}
	if cfg.Port != "7000" {
		t.Fatalf("process env should win over .env, got %q", cfg.Port)
	}
}
