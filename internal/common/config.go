package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration
type Config struct {
	OfflineMode bool
	Server      ServerConfig
	Pipeline    PipelineConfig
	Extraction  ExtractionConfig
	OCR         OCRConfig
	Analysis    AnalysisConfig
	Archive     ArchiveConfig
	Database    DatabaseConfig
	Ingest      IngestConfig
	Retention   RetentionConfig
}

// ServerConfig holds listener addresses. An empty address disables that listener.
type ServerConfig struct {
	HTTPAddr string
	GRPCAddr string
}

// PipelineConfig holds worker pool and admission settings
type PipelineConfig struct {
	Workers        int           `validate:"min=1"`
	QueueSize      int           `validate:"min=1"`
	JobTimeout     time.Duration `validate:"gt=0"`
	MaxUploadBytes int64         `validate:"min=1"`
}

// ExtractionConfig holds the fallback chain definition and acceptance thresholds
type ExtractionConfig struct {
	Backends        []string      `validate:"min=1,dive,oneof=pdf pdftotext html text tesseract mock"`
	BackendTimeout  time.Duration `validate:"gt=0"`
	MinCharsPerPage int           `validate:"min=0"`
	MinTextChars    int           `validate:"min=0"`
	MockText        string
}

// OCRConfig holds external tool settings for the command-line backends
type OCRConfig struct {
	Pdftotext           string `validate:"required"`
	Pdftoppm            string `validate:"required"`
	Tesseract           string `validate:"required"`
	TesseractLang       string `validate:"required"`
	TessdataDir         string
	DPI                 int     `validate:"min=72"`
	MaxPages            int     `validate:"min=0"`
	PSM                 int     `validate:"min=0,max=13"`
	OEM                 int     `validate:"min=0,max=3"`
	ConfidenceThreshold float64 `validate:"min=0,max=1"`
}

// AnalysisConfig holds analysis provider and client settings
type AnalysisConfig struct {
	Provider            string `validate:"oneof=openai deepseek gemini mock"`
	Model               string
	APIKey              string `validate:"required_unless=Provider mock"`
	BaseURL             string
	Temperature         float32       `validate:"min=0,max=2"`
	Timeout             time.Duration `validate:"gt=0"`
	MaxAttempts         int           `validate:"min=1"`
	InitialBackoff      time.Duration `validate:"gt=0"`
	MaxBackoff          time.Duration `validate:"gtefield=InitialBackoff"`
	ChunkChars          int           `validate:"min=500"`
	ChunkOverlap        int           `validate:"min=0,ltfield=ChunkChars"`
	MaxConcurrentChunks int           `validate:"min=1"`
	MaxClauses          int           `validate:"min=0"`
}

// ArchiveConfig selects the optional job snapshot archive. Empty Driver keeps jobs in memory only.
type ArchiveConfig struct {
	Driver string `validate:"omitempty,oneof=sqlite postgres"`
	DSN    string `validate:"required_with=Driver"`
}

// DatabaseConfig holds Postgres pool settings used when Archive.Driver is postgres
type DatabaseConfig struct {
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// IngestConfig holds the inbox watcher settings. Empty InboxDir disables it.
type IngestConfig struct {
	InboxDir   string
	InboxOwner string `validate:"required_with=InboxDir"`
}

// RetentionConfig holds the sweeper schedule. Zero TTL disables it.
type RetentionConfig struct {
	Schedule string        `validate:"required_with=TTL"`
	TTL      time.Duration `validate:"min=0"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	cfg := &Config{
		OfflineMode: getEnvAsBool("OFFLINE_MODE", false),
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr: getEnv("GRPC_ADDR", ":9090"),
		},
		Pipeline: PipelineConfig{
			Workers:        getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:      getEnvAsInt("PIPELINE_QUEUE_SIZE", 256),
			JobTimeout:     getEnvAsDuration("PIPELINE_JOB_TIMEOUT", 10*time.Minute),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 50<<20),
		},
		Extraction: ExtractionConfig{
			Backends:        getEnvAsList("EXTRACTION_BACKENDS", []string{"pdf", "html", "text", "pdftotext", "tesseract"}),
			BackendTimeout:  getEnvAsDuration("EXTRACTION_BACKEND_TIMEOUT", 2*time.Minute),
			MinCharsPerPage: getEnvAsInt("EXTRACTION_MIN_CHARS_PER_PAGE", 20),
			MinTextChars:    getEnvAsInt("MIN_TEXT_CHARS", 50),
			MockText:        getEnv("EXTRACTION_MOCK_TEXT", ""),
		},
		OCR: OCRConfig{
			Pdftotext:           getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:            getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:           getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang:       getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:         getEnv("TESSDATA_PREFIX", ""),
			DPI:                 getEnvAsInt("OCR_DPI", 300),
			MaxPages:            getEnvAsInt("OCR_MAX_PAGES", 0),
			PSM:                 getEnvAsInt("TESSERACT_PSM", 0),
			OEM:                 getEnvAsInt("TESSERACT_OEM", 0),
			ConfidenceThreshold: getEnvAsFloat64("OCR_CONFIDENCE_THRESHOLD", 0.6),
		},
		Analysis: AnalysisConfig{
			Provider:            strings.ToLower(getEnv("ANALYSIS_PROVIDER", "openai")),
			Model:               getEnv("ANALYSIS_MODEL", ""),
			APIKey:              getEnv("ANALYSIS_API_KEY", ""),
			BaseURL:             getEnv("ANALYSIS_BASE_URL", ""),
			Temperature:         getEnvAsFloat32("ANALYSIS_TEMPERATURE", 0.1),
			Timeout:             getEnvAsDuration("ANALYSIS_TIMEOUT", 90*time.Second),
			MaxAttempts:         getEnvAsInt("ANALYSIS_MAX_ATTEMPTS", 3),
			InitialBackoff:      getEnvAsDuration("ANALYSIS_INITIAL_BACKOFF", time.Second),
			MaxBackoff:          getEnvAsDuration("ANALYSIS_MAX_BACKOFF", 16*time.Second),
			ChunkChars:          getEnvAsInt("ANALYSIS_CHUNK_CHARS", 24000),
			ChunkOverlap:        getEnvAsInt("ANALYSIS_CHUNK_OVERLAP", 1000),
			MaxConcurrentChunks: getEnvAsInt("ANALYSIS_MAX_CONCURRENT_CHUNKS", 3),
			MaxClauses:          getEnvAsInt("ANALYSIS_MAX_CLAUSES", 10),
		},
		Archive: ArchiveConfig{
			Driver: strings.ToLower(getEnv("ARCHIVE_DRIVER", "")),
			DSN:    getEnv("ARCHIVE_DSN", ""),
		},
		Database: DatabaseConfig{
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Ingest: IngestConfig{
			InboxDir:   getEnv("INBOX_DIR", ""),
			InboxOwner: getEnv("INBOX_OWNER", "inbox"),
		},
		Retention: RetentionConfig{
			Schedule: getEnv("RETENTION_SCHEDULE", "@hourly"),
			TTL:      getEnvAsDuration("RETENTION_TTL", 0),
		},
	}
	if cfg.OfflineMode {
		cfg.Analysis.Provider = "mock"
	}
	return cfg
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var validate = validator.New()

// Validate checks the loaded configuration against its struct tags
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return NewAppError("CONFIG_ERROR", err.Error(), ErrInvalidInput)
	}
	return nil
}

// ValidateStruct runs the shared validator over any tagged struct.
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return NewAppError("VALIDATION_ERROR", err.Error(), ErrInvalidInput)
	}
	return nil
}
