package config

import (
	"testing"

	"github.com/spf13/viper"
)

func loadForTest(t *testing.T) *Config {
	t.Helper()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadForTest(t)

	if cfg.Server.Port != 8080 {
		t.Fatalf("server.port default = %d, want 8080", cfg.Server.Port)
	}
	if cfg.SQLite.Path != "./data/medaccred.db" {
		t.Fatalf("sqlite.path default = %q", cfg.SQLite.Path)
	}
	if cfg.Redis.Enabled || cfg.Neo4j.Enabled || cfg.Vector.Enabled {
		t.Fatal("optional infrastructure must be disabled by default")
	}
	if cfg.Redis.TTLHours != 24 {
		t.Fatalf("redis.ttlHours default = %d, want 24", cfg.Redis.TTLHours)
	}
	if cfg.Vector.VectorDim != 1536 || cfg.Vector.TopK != 8 {
		t.Fatalf("unexpected vector defaults: %+v", cfg.Vector)
	}
	if cfg.Assessment.ActionDueDays != 30 || cfg.Assessment.MaxEvidencePerME != 8 {
		t.Fatalf("unexpected assessment defaults: %+v", cfg.Assessment)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MEDACCRED_SERVER_PORT", "9090")
	t.Setenv("MEDACCRED_LOGGING_LEVEL", "debug")

	cfg := loadForTest(t)

	if cfg.Server.Port != 9090 {
		t.Fatalf("env override ignored: server.port = %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("env override ignored: logging.level = %q", cfg.Logging.Level)
	}
}
