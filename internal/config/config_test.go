package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/finmycelium")
	t.Setenv("RABBITMQ_URL", "amqp://localhost:5672")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("S3_BUCKET", "documents")
	t.Setenv("S3_ACCESS_KEY", "access")
	t.Setenv("S3_SECRET_KEY", "secret")
	t.Setenv("ORACLE_API_KEY", "key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Oracle.Adapter != "openai" {
		t.Fatalf("expected default adapter openai, got %s", cfg.Oracle.Adapter)
	}
	if cfg.Pipeline.VectorThreshold != 0.35 {
		t.Fatalf("expected default vector threshold 0.35, got %f", cfg.Pipeline.VectorThreshold)
	}

	wantStrategies := []StrategyConfig{
		{Name: "lexical"},
		{Name: "vector"},
		{Name: "judged"},
	}
	if !reflect.DeepEqual(cfg.Pipeline.Strategies, wantStrategies) {
		t.Fatalf("expected default strategies %v, got %v", wantStrategies, cfg.Pipeline.Strategies)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error, got nil")
	}
}

func TestLoad_InvalidAdapter(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ORACLE_ADAPTER", "gemini")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error, got nil")
	}
}

func TestLoad_PipelineFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	content := []byte(`
strategies:
  - name: lexical
  - name: filtered
    options:
      prefilter_limit: 50
max_concurrency: 2
token_budget: 4096
vector_threshold: 0.5
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PIPELINE_CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(cfg.Pipeline.Strategies) != 2 {
		t.Fatalf("expected 2 strategies, got %d", len(cfg.Pipeline.Strategies))
	}
	if cfg.Pipeline.Strategies[1].Name != "filtered" {
		t.Fatalf("expected second strategy filtered, got %s", cfg.Pipeline.Strategies[1].Name)
	}
	if cfg.Pipeline.MaxConcurrency != 2 {
		t.Fatalf("expected max concurrency 2, got %d", cfg.Pipeline.MaxConcurrency)
	}
	if cfg.Pipeline.VectorThreshold != 0.5 {
		t.Fatalf("expected vector threshold 0.5, got %f", cfg.Pipeline.VectorThreshold)
	}
}
