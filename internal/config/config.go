package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"

	"github.com/AgenticFinLab/FinMycelium/internal/util"
)

// Config holds everything the server and worker need at startup. Values come
// from the environment, with an optional YAML file for the pipeline section.
type Config struct {
	Debug    bool
	Server   ServerConfig
	Database DatabaseConfig
	Queue    QueueConfig
	Storage  StorageConfig
	Oracle   OracleConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Port int `validate:"required,min=1,max=65535"`
}

type DatabaseConfig struct {
	URL string `validate:"required"`
}

type QueueConfig struct {
	URL string `validate:"required"`
}

type StorageConfig struct {
	Endpoint  string `validate:"required"`
	Region    string `validate:"required"`
	Bucket    string `validate:"required"`
	AccessKey string `validate:"required"`
	SecretKey string `validate:"required"`
	UsePath   bool
}

// OracleConfig selects and tunes the language model backend.
type OracleConfig struct {
	Adapter        string `validate:"required,oneof=openai ollama"`
	BaseURL        string
	APIKey         string
	Model          string `validate:"required"`
	EmbeddingModel string `validate:"required"`
	Temperature    float64
	MaxTries       int           `validate:"min=1"`
	CallTimeout    time.Duration `validate:"required"`
	RequestsPerMin int           `validate:"min=0"`
}

// PipelineConfig tunes the reconstruction pipeline. Strategies may be
// overridden from a YAML file pointed at by PIPELINE_CONFIG_PATH.
type PipelineConfig struct {
	Strategies      []StrategyConfig `yaml:"strategies" validate:"required,min=1,dive"`
	MaxConcurrency  int              `yaml:"max_concurrency" validate:"min=1"`
	TokenBudget     int              `yaml:"token_budget" validate:"min=256"`
	VectorThreshold float64          `yaml:"vector_threshold" validate:"min=0,max=1"`
}

// StrategyConfig names one matching strategy and carries its options.
type StrategyConfig struct {
	Name    string         `yaml:"name" validate:"required"`
	Options map[string]any `yaml:"options"`
}

// Load reads the configuration from the environment and validates it.
// Invalid configuration is an error for the caller to treat as fatal.
func Load() (*Config, error) {
	util.LoadEnv()

	cfg := &Config{
		Debug: util.GetEnvBool("DEBUG", false),
		Server: ServerConfig{
			Port: util.GetEnvInt("PORT", 8080),
		},
		Database: DatabaseConfig{
			URL: util.GetEnv("DATABASE_URL"),
		},
		Queue: QueueConfig{
			URL: util.GetEnv("RABBITMQ_URL"),
		},
		Storage: StorageConfig{
			Endpoint:  util.GetEnv("S3_ENDPOINT"),
			Region:    util.GetEnvString("S3_REGION", "us-east-1"),
			Bucket:    util.GetEnv("S3_BUCKET"),
			AccessKey: util.GetEnv("S3_ACCESS_KEY"),
			SecretKey: util.GetEnv("S3_SECRET_KEY"),
			UsePath:   util.GetEnvBool("S3_USE_PATH_STYLE", true),
		},
		Oracle: OracleConfig{
			Adapter:        util.GetEnvString("ORACLE_ADAPTER", "openai"),
			BaseURL:        util.GetEnv("ORACLE_BASE_URL"),
			APIKey:         util.GetEnv("ORACLE_API_KEY"),
			Model:          util.GetEnvString("ORACLE_MODEL", "gpt-4o-mini"),
			EmbeddingModel: util.GetEnvString("ORACLE_EMBEDDING_MODEL", "text-embedding-3-small"),
			Temperature:    util.GetEnvFloat("ORACLE_TEMPERATURE", 0.1),
			MaxTries:       util.GetEnvInt("ORACLE_MAX_TRIES", 3),
			CallTimeout:    time.Duration(util.GetEnvInt("ORACLE_CALL_TIMEOUT_SECONDS", 120)) * time.Second,
			RequestsPerMin: util.GetEnvInt("ORACLE_REQUESTS_PER_MINUTE", 0),
		},
		Pipeline: defaultPipeline(),
	}

	if path := util.GetEnv("PIPELINE_CONFIG_PATH"); path != "" {
		if err := loadPipelineFile(path, &cfg.Pipeline); err != nil {
			return nil, fmt.Errorf("load pipeline config: %w", err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaultPipeline() PipelineConfig {
	return PipelineConfig{
		Strategies: []StrategyConfig{
			{Name: "lexical"},
			{Name: "vector"},
			{Name: "judged"},
		},
		MaxConcurrency:  4,
		TokenBudget:     8192,
		VectorThreshold: 0.35,
	}
}

func loadPipelineFile(path string, pipeline *PipelineConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, pipeline)
}
