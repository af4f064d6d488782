package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	apperrors "hybrid-memory/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port     string `yaml:"port" validate:"required"`
	Env      string `yaml:"env" validate:"oneof=development production test"`
	LogLevel string `yaml:"log_level"`

	// Canonical record store
	StoreBackend   string `yaml:"store_backend" validate:"oneof=file neo4j badger"`
	MemoryFilePath string `yaml:"memory_file_path" validate:"required_if=StoreBackend file"`
	BadgerPath     string `yaml:"badger_path" validate:"required_if=StoreBackend badger"`

	// Neo4j
	Neo4jURI      string `yaml:"neo4j_uri" validate:"required_if=StoreBackend neo4j"`
	Neo4jUser     string `yaml:"neo4j_user" validate:"required_if=StoreBackend neo4j"`
	Neo4jPassword string `yaml:"neo4j_password" validate:"required_if=StoreBackend neo4j"`
	Neo4jDatabase string `yaml:"neo4j_database"`

	// Similarity index
	SimilarityBackend string `yaml:"similarity_backend" validate:"oneof=qdrant memory"`
	QdrantHost        string `yaml:"qdrant_host" validate:"required_if=SimilarityBackend qdrant"`
	QdrantPort        int    `yaml:"qdrant_port" validate:"min=1,max=65535"`
	QdrantAPIKey      string `yaml:"qdrant_api_key"`
	QdrantUseTLS      bool   `yaml:"qdrant_use_tls"`
	CollectionName    string `yaml:"collection_name" validate:"required"`

	// Embeddings
	EmbeddingBackend    string `yaml:"embedding_backend" validate:"oneof=openai hash"`
	EmbeddingBaseURL    string `yaml:"embedding_base_url" validate:"omitempty,url"`
	EmbeddingAPIKey     string `yaml:"embedding_api_key"`
	EmbeddingModel      string `yaml:"embedding_model" validate:"required"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions" validate:"min=0"`

	// Initialization and maintenance
	RecreateOnDimensionMismatch bool          `yaml:"recreate_on_dimension_mismatch"`
	InitRetries                 int           `yaml:"init_retries" validate:"min=1,max=10"`
	InitBackoff                 time.Duration `yaml:"init_backoff" validate:"min=0"`
	ReindexConcurrency          int           `yaml:"reindex_concurrency" validate:"min=1,max=32"`
}

// Defaults returns the configuration used when nothing else is set
func Defaults() *Config {
	return &Config{
		Port:                        "8080",
		Env:                         "development",
		StoreBackend:                "file",
		MemoryFilePath:              "memory.json",
		BadgerPath:                  "data/badger",
		Neo4jURI:                    "bolt://localhost:7687",
		Neo4jUser:                   "neo4j",
		Neo4jPassword:               "password",
		SimilarityBackend:           "qdrant",
		QdrantHost:                  "localhost",
		QdrantPort:                  6334,
		CollectionName:              "memory",
		EmbeddingBackend:            "openai",
		EmbeddingBaseURL:            "https://api.openai.com/v1",
		EmbeddingModel:              "text-embedding-3-small",
		RecreateOnDimensionMismatch: true,
		InitRetries:                 5,
		InitBackoff:                 500 * time.Millisecond,
		ReindexConcurrency:          4,
	}
}

// Load reads configuration from an optional YAML file, a .env file and the
// environment, in that order of increasing precedence
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, oops.In("config").With("path", path).Wrapf(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, oops.In("config").With("path", path).Wrapf(err, "failed to parse YAML config")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, oops.In("config").Wrapf(err, "config validation failed")
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Env = getEnv("ENV", c.Env)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", c.StoreBackend))
	c.MemoryFilePath = getEnv("MEMORY_FILE_PATH", c.MemoryFilePath)
	c.BadgerPath = getEnv("BADGER_PATH", c.BadgerPath)
	c.Neo4jURI = getEnv("NEO4J_URI", c.Neo4jURI)
	c.Neo4jUser = getEnv("NEO4J_USER", c.Neo4jUser)
	c.Neo4jPassword = getEnv("NEO4J_PASSWORD", c.Neo4jPassword)
	c.Neo4jDatabase = getEnv("NEO4J_DATABASE", c.Neo4jDatabase)
	c.SimilarityBackend = strings.ToLower(getEnv("SIMILARITY_BACKEND", c.SimilarityBackend))
	c.QdrantHost = getEnv("QDRANT_HOST", c.QdrantHost)
	c.QdrantPort = getEnvInt("QDRANT_PORT", c.QdrantPort)
	c.QdrantAPIKey = getEnv("QDRANT_API_KEY", c.QdrantAPIKey)
	c.QdrantUseTLS = getEnvBool("QDRANT_USE_TLS", c.QdrantUseTLS)
	c.CollectionName = getEnv("COLLECTION_NAME", c.CollectionName)
	c.EmbeddingBackend = strings.ToLower(getEnv("EMBEDDING_BACKEND", c.EmbeddingBackend))
	c.EmbeddingBaseURL = getEnv("EMBEDDING_BASE_URL", c.EmbeddingBaseURL)
	c.EmbeddingAPIKey = getEnv("EMBEDDING_API_KEY", c.EmbeddingAPIKey)
	c.EmbeddingModel = getEnv("EMBEDDING_MODEL", c.EmbeddingModel)
	c.EmbeddingDimensions = getEnvInt("EMBEDDING_DIMENSIONS", c.EmbeddingDimensions)
	c.RecreateOnDimensionMismatch = getEnvBool("RECREATE_ON_DIMENSION_MISMATCH", c.RecreateOnDimensionMismatch)
	c.InitRetries = getEnvInt("INIT_RETRIES", c.InitRetries)
	c.InitBackoff = getEnvDuration("INIT_BACKOFF", c.InitBackoff)
	c.ReindexConcurrency = getEnvInt("REINDEX_CONCURRENCY", c.ReindexConcurrency)
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			if fe.Tag() == "required" || fe.Tag() == "required_if" {
				return apperrors.NewConfigMissingRequired(fe.Field())
			}
			return apperrors.NewConfigValidationFailed(fe.Field(), fmt.Sprintf("failed %q check (value %v)", fe.Tag(), fe.Value()))
		}
		return apperrors.NewConfigValidationFailed("config", err.Error())
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}
