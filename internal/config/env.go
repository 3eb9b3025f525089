package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
)

const (
	StorageDriverS3         = "s3"
	StorageDriverFilesystem = "filesystem"
)

type Config struct {
	Env     string
	Port    string
	LogFile string

	DatabaseURL    string
	DBMaxOpenConns int
	SslCertPath    string

	StorageDriver string
	AwsAccessKey  string
	AwsSecretKey  string
	AwsRegion     string
	BucketName    string
	StorageRoot   string
	MaxUploadSize int64
	StorageQuota  int64

	AIAPIKey     string
	ChatModels   []string
	SuggestModel string
	EmbedEnabled bool
	EmbedModel   string
	EmbedDim     int

	IngestWorkers     int
	IngestStepRetries int
	IngestBatchSize   int
	OCREnabled        bool
	OCRLanguage       string

	ContextBudget  int
	RequestTimeout time.Duration

	JWTSecret   string
	CORSOrigins []string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:     getEnv("APP_ENV", "development"),
		Port:    getEnv("PORT", "8080"),
		LogFile: getEnv("LOG_FILE", ""),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 20),
		SslCertPath:    getEnv("SSL_CERT_PATH", ""),

		StorageDriver: getEnv("STORAGE_DRIVER", StorageDriverS3),
		AwsAccessKey:  getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:  getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:     getEnv("AWS_REGION", "us-east-2"),
		BucketName:    getEnv("BUCKET_NAME", "documind-uploads"),
		StorageRoot:   getEnv("STORAGE_ROOT", "./data/uploads"),
		MaxUploadSize: getEnvSize("MAX_UPLOAD_SIZE", "5MB"),
		StorageQuota:  getEnvSize("STORAGE_QUOTA", "100MB"),

		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		ChatModels:   getEnvList("CHAT_MODELS", []string{"gemini-2.0-flash", "gemini-1.5-flash", "gemini-1.5-flash-8b"}),
		SuggestModel: getEnv("SUGGEST_MODEL", "gemini-1.5-flash-8b"),
		EmbedEnabled: getEnvBool("EMBED_ENABLED", false),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),

		IngestWorkers:     getEnvInt("INGEST_WORKERS", 4),
		IngestStepRetries: getEnvInt("INGEST_STEP_RETRIES", 2),
		IngestBatchSize:   getEnvInt("INGEST_BATCH_SIZE", 500),
		OCREnabled:        getEnvBool("OCR_ENABLED", true),
		OCRLanguage:       getEnv("OCR_LANGUAGE", "eng"),

		ContextBudget:  getEnvInt("CONTEXT_BUDGET", 28000),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET not set")
	}
	switch c.StorageDriver {
	case StorageDriverS3:
		if c.BucketName == "" {
			return fmt.Errorf("BUCKET_NAME not set")
		}
	case StorageDriverFilesystem:
		if c.StorageRoot == "" {
			return fmt.Errorf("STORAGE_ROOT not set")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER %q is not one of s3, filesystem", c.StorageDriver)
	}
	if len(c.ChatModels) == 0 {
		return fmt.Errorf("CHAT_MODELS is empty")
	}
	if c.IngestWorkers < 1 {
		return fmt.Errorf("INGEST_WORKERS must be at least 1")
	}
	if c.IngestStepRetries < 1 {
		return fmt.Errorf("INGEST_STEP_RETRIES must be at least 1")
	}
	if c.IngestBatchSize < 1 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be at least 1")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	return nil
}

// IsProduction reports whether APP_ENV selects production logging.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

// getEnvSize accepts sizes such as "5MB" or "512k", read with binary multiples.
func getEnvSize(key, def string) int64 {
	v := getEnv(key, def)
	n, err := units.RAMInBytes(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a size, using default %s", key, v, def)
		n, _ = units.RAMInBytes(def)
	}
	return n
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
