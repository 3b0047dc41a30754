package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"papyrus"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"papyrus"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	UploadDir       string `envconfig:"PAPYRUS_UPLOAD_DIR" default:"./uploads"`

	// Embedding client. Batch size is capped at the provider limit of 96
	// texts per request; the delay spaces batches under the burst ceiling.
	EmbeddingModel        string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	EmbeddingBatchSize    int    `envconfig:"EMBEDDING_BATCH_SIZE" default:"96"`
	EmbeddingDimension    int    `envconfig:"EMBEDDING_DIMENSION" default:"1536"`
	EmbeddingBatchDelayMs int    `envconfig:"EMBEDDING_BATCH_DELAY_MS" default:"500"`

	// Ingestion/retrieval defaults. These seed the settings row on first
	// boot; the live values are editable via PUT /settings.
	MaxChunkSize   int     `envconfig:"MAX_CHUNK_SIZE" default:"1000"`
	ChunkOverlap   int     `envconfig:"CHUNK_OVERLAP" default:"200"`
	FlushRatio     float64 `envconfig:"FLUSH_RATIO" default:"0.7"`
	TopKChunks     int     `envconfig:"TOP_K_CHUNKS" default:"10"`
	SemanticWeight float64 `envconfig:"SEMANTIC_WEIGHT" default:"0.5"`
	RelevanceFloor float64 `envconfig:"RELEVANCE_FLOOR" default:"0.3"`
	PDFCJKRatio    float64 `envconfig:"PDF_CJK_RATIO" default:"0.3"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: EMBEDDING_DIMENSION", ErrMissingRequired)
	}
	if c.ChunkOverlap >= c.MaxChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than max chunk size %d", c.ChunkOverlap, c.MaxChunkSize)
	}
	return nil
}
