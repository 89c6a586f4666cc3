package common

import (
	"os"
	"strconv"
	"time"

	"github.com/tade-balogun/policy-engine/constants"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Storage   StorageConfig
	OCR       OCRConfig
	Embedding EmbeddingConfig
	Chunking  ChunkingConfig
	Worker    WorkerConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// StorageConfig holds the on-disk data layout configuration
type StorageConfig struct {
	DataDir string
}

// OCRConfig holds OCR-related configuration.
//
// The numeric thresholds are empirically chosen values reproduced from the
// observed system; treat them as tunables, not law.
type OCRConfig struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Pdfinfo   string // binary name or absolute path; if empty -> "pdfinfo"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Magick    string // preprocessing converter; if empty -> "magick"

	Language  string // tesseract language spec, default "eng+ara"
	DPI       int    // rasterization DPI for deterministic OCR, default 200
	VisionDPI int    // rasterization DPI for vision OCR, default 225

	Provider constants.OCRProviderPolicy // "vision" | "tesseract" | "auto"
	Preset   constants.OCRPreset

	VisionModel   string
	VisionBaseURL string
	VisionAPIKey  string
	VisionMaxTok  int

	// NeedsOCRThreshold: native text shorter than this marks a page as an
	// OCR candidate during extraction.
	NeedsOCRThreshold int
	// ForceOCRThreshold: the orchestrator's stricter bound; pages under it
	// are forced into OCR even when the extractor judged them sufficient.
	ForceOCRThreshold int
	// DuplicateRunLength: consecutive identical OCR pages that fail a job.
	DuplicateRunLength int
}

// EmbeddingConfig holds embedding/index-writer configuration
type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	BatchSize  int // texts per embedding request
	UpsertSize int // fragments per vector-store upsert
	Dimensions int // vector dimension of the collection
}

// ChunkingConfig holds chunker tuning
type ChunkingConfig struct {
	ChunkSize    int // target chunk size in characters
	ChunkOverlap int // line-granular overlap budget in characters
	MinChunkLen  int // fragments shorter than this are discarded
	MinWords     int // fragments with fewer word tokens are discarded
}

// WorkerConfig sizes the job queue
type WorkerConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Storage: StorageConfig{
			DataDir: getEnv("POLICY_ENGINE_DATA_DIR", "./data"),
		},
		OCR: OCRConfig{
			Pdftotext:          getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:           getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Pdfinfo:            getEnv("PDFINFO_BIN", "pdfinfo"),
			Tesseract:          getEnv("TESSERACT_BIN", "tesseract"),
			Magick:             getEnv("MAGICK_BIN", "magick"),
			Language:           getEnv("OCR_LANG", "eng+ara"),
			DPI:                getEnvAsInt("OCR_DPI", 200),
			VisionDPI:          getEnvAsInt("VISION_OCR_DPI", 225),
			Provider:           constants.OCRProviderPolicy(getEnv("OCR_PROVIDER", "auto")),
			Preset:             constants.ParseOCRPreset(getEnv("OCR_PRESET", "normal_ocr")),
			VisionModel:        getEnv("VISION_OCR_MODEL", "gpt-4o-mini"),
			VisionBaseURL:      getEnv("VISION_OCR_BASE_URL", ""),
			VisionAPIKey:       getEnv("OPENAI_API_KEY", ""),
			VisionMaxTok:       getEnvAsInt("VISION_OCR_MAX_TOKENS", 4000),
			NeedsOCRThreshold:  getEnvAsInt("MIN_NATIVE_TEXT", 25),
			ForceOCRThreshold:  getEnvAsInt("MIN_TEXT_BEFORE_FORCE_OCR", 800),
			DuplicateRunLength: getEnvAsInt("OCR_DUPLICATE_RUN", 3),
		},
		Embedding: EmbeddingConfig{
			BaseURL:    getEnv("EMBEDDINGS_BASE_URL", ""),
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			Model:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			BatchSize:  getEnvAsInt("EMBEDDING_BATCH_SIZE", 50),
			UpsertSize: getEnvAsInt("VECTOR_BATCH_SIZE", 200),
			Dimensions: getEnvAsInt("EMBEDDING_DIM", 1536),
		},
		Chunking: ChunkingConfig{
			ChunkSize:    getEnvAsInt("CHUNK_SIZE", 2000),
			ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 300),
			MinChunkLen:  getEnvAsInt("CHUNK_MIN_LEN", 100),
			MinWords:     getEnvAsInt("CHUNK_MIN_WORDS", 10),
		},
		Worker: WorkerConfig{
			Workers:    getEnvAsInt("INGEST_WORKERS", 2),
			QueueSize:  getEnvAsInt("INGEST_QUEUE_SIZE", 256),
			JobTimeout: getEnvAsDuration("INGEST_JOB_TIMEOUT", 15*time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Storage.DataDir == "" {
		return NewAppError("CONFIG_ERROR", "POLICY_ENGINE_DATA_DIR is required", ErrInvalidInput)
	}
	switch c.OCR.Provider {
	case constants.PolicyAuto, constants.PolicyDeterministic, constants.PolicyVision:
	default:
		return NewAppError("CONFIG_ERROR", "OCR_PROVIDER must be vision, tesseract or auto", ErrInvalidInput)
	}
	return nil
}
