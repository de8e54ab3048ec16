package config

import (
	"os"
	"path/filepath"
	"testing"

	"reorgcdc/internal/sink"
)

func writeConfigFile(t *testing.T, dir string, transformPath string) string {
	t.Helper()
	content := `{
		"metashrew": {"url": "http://localhost:8080", "timeout": 30, "max_retries": 3, "retry_delay": 1000},
		"transform": {"path": "` + transformPath + `"},
		"sink": {"type": "console", "pretty_print": false},
		"cache_size": 6,
		"log_level": "info"
	}`
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error writing config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	transformPath := filepath.Join(dir, "transform.wasm")
	if err := os.WriteFile(transformPath, []byte{0x00, 0x61, 0x73, 0x6d}, 0o644); err != nil {
		t.Fatalf("unexpected error writing transform stub: %v", err)
	}
	cfgPath := writeConfigFile(t, dir, transformPath)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CacheSize != 6 || cfg.Upstream.URL != "http://localhost:8080" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsMissingTransformFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfigFile(t, dir, filepath.Join(dir, "does-not-exist.wasm"))

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected an error for a missing transform file")
	}
}

func TestSinkSectionResolveAppliesDefaults(t *testing.T) {
	s := SinkSection{Type: "postgres", ConnectionString: "dsn"}
	cfg, err := s.Resolve()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Kind != sink.KindPostgres || cfg.Postgres.Schema != "public" || cfg.Postgres.BatchSize != 100 {
		t.Fatalf("unexpected defaults applied: %+v", cfg.Postgres)
	}
}

func TestSinkSectionResolveRejectsUnknownType(t *testing.T) {
	s := SinkSection{Type: "carrier-pigeon"}
	if _, err := s.Resolve(); err == nil {
		t.Fatalf("expected an error for an unknown sink type")
	}
}

func validConfig(t *testing.T, dir string) Config {
	t.Helper()
	transformPath := filepath.Join(dir, "transform.wasm")
	if err := os.WriteFile(transformPath, []byte{0x00, 0x61, 0x73, 0x6d}, 0o644); err != nil {
		t.Fatalf("unexpected error writing transform stub: %v", err)
	}
	return Config{
		Upstream:  UpstreamConfig{URL: "http://localhost:8080", TimeoutSecs: 30},
		Transform: TransformConfig{Path: transformPath},
		Sink:      SinkSection{Type: "console"},
		CacheSize: 6,
	}
}

func TestValidateRejectsPostgresWithoutConnectionString(t *testing.T) {
	cfg := validConfig(t, t.TempDir())
	cfg.Sink = SinkSection{Type: "postgres"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for a postgres sink missing connection_string")
	}
}

func TestValidateRejectsKafkaWithoutBootstrapServers(t *testing.T) {
	cfg := validConfig(t, t.TempDir())
	cfg.Sink = SinkSection{Type: "kafka"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for a kafka sink missing bootstrap_servers")
	}
}

func TestValidateRejectsNegativeBatchSize(t *testing.T) {
	cfg := validConfig(t, t.TempDir())
	cfg.Sink = SinkSection{Type: "kafka", BootstrapServers: "nats://localhost:4222", BatchSize: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for a negative batch_size")
	}
}
