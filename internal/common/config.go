package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names the YAML file read when LoadConfig gets no path.
const ConfigPathEnv = "KYC_CONFIG"

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	OCR        OCRConfig        `yaml:"ocr"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Narrative  NarrativeConfig  `yaml:"narrative"`
	Journal    JournalConfig    `yaml:"journal"`
	Storage    StorageConfig    `yaml:"storage"`
	Batch      BatchConfig      `yaml:"batch"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`
	// CORSOrigins lists browser origins allowed to call the HTTP API.
	CORSOrigins []string `yaml:"cors_origins"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract     string `yaml:"tesseract"`
	Lang          string `yaml:"lang"`
	TessdataDir   string `yaml:"tessdata_dir"`
	PSM           int    `yaml:"psm"`
	OEM           int    `yaml:"oem"`
	TSVConfidence bool   `yaml:"tsv_confidence"`
	TempDir       string `yaml:"temp_dir"`
}

// ExtractionConfig tunes field extraction
type ExtractionConfig struct {
	FoldApostrophes bool `yaml:"fold_apostrophes"`
}

// NarrativeConfig holds the chat-completion settings
type NarrativeConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Provider    string        `yaml:"provider"` // http | openai
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// JournalConfig holds database-related configuration
type JournalConfig struct {
	Driver          string        `yaml:"driver"` // sqlite | postgres | mysql | none
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// StorageConfig points at an S3-compatible bucket for batch reports
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// BatchConfig sizes the batch worker queue
type BatchConfig struct {
	Workers    int           `yaml:"workers"`
	QueueSize  int           `yaml:"queue_size"`
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCAddr: ":8080",
			HTTPAddr: ":8081",
			LogLevel: "info",
		},
		OCR: OCRConfig{
			Tesseract: "tesseract",
			Lang:      "fra",
		},
		Narrative: NarrativeConfig{
			Provider:    "http",
			BaseURL:     "https://api.deepseek.com/v1",
			Model:       "deepseek-chat",
			Temperature: 0.3,
			MaxTokens:   300,
			Timeout:     30 * time.Second,
		},
		Journal: JournalConfig{
			Driver:          "sqlite",
			DSN:             "file:kyc.db?_pragma=busy_timeout(5000)",
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Storage: StorageConfig{
			Bucket: "kyc-reports",
			Region: "us-east-1",
		},
		Batch: BatchConfig{
			Workers:    4,
			QueueSize:  64,
			JobTimeout: 2 * time.Minute,
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file at path (or
// $KYC_CONFIG when path is empty), then environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError(CodeConfig, "read config file", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, NewAppError(CodeConfig, fmt.Sprintf("parse %s", path), fmt.Errorf("%w: %v", ErrInvalidInput, err))
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.LogLevel = getEnv("LOG_LEVEL", c.Server.LogLevel)
	if v := getEnv("CORS_ORIGINS", ""); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	c.OCR.Tesseract = getEnv("TESSERACT_BIN", c.OCR.Tesseract)
	c.OCR.Lang = getEnv("OCR_LANG", c.OCR.Lang)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.PSM = getEnvAsInt("OCR_PSM", c.OCR.PSM)
	c.OCR.OEM = getEnvAsInt("OCR_OEM", c.OCR.OEM)
	c.OCR.TSVConfidence = getEnvAsBool("OCR_TSV_CONFIDENCE", c.OCR.TSVConfidence)
	c.OCR.TempDir = getEnv("OCR_TEMP_DIR", c.OCR.TempDir)

	c.Extraction.FoldApostrophes = getEnvAsBool("KYC_FOLD_APOSTROPHES", c.Extraction.FoldApostrophes)

	c.Narrative.Enabled = getEnvAsBool("NARRATIVE_ENABLED", c.Narrative.Enabled)
	c.Narrative.Provider = getEnv("NARRATIVE_PROVIDER", c.Narrative.Provider)
	c.Narrative.BaseURL = getEnv("DEEPSEEK_BASE_URL", c.Narrative.BaseURL)
	c.Narrative.Model = getEnv("DEEPSEEK_MODEL", c.Narrative.Model)
	c.Narrative.APIKey = getEnv("DEEPSEEK_API_KEY", c.Narrative.APIKey)
	c.Narrative.Temperature = getEnvAsFloat32("NARRATIVE_TEMPERATURE", c.Narrative.Temperature)
	c.Narrative.MaxTokens = getEnvAsInt("NARRATIVE_MAX_TOKENS", c.Narrative.MaxTokens)
	c.Narrative.Timeout = getEnvAsDuration("NARRATIVE_TIMEOUT", c.Narrative.Timeout)

	c.Journal.Driver = getEnv("JOURNAL_DRIVER", c.Journal.Driver)
	c.Journal.DSN = getEnv("DB_URL", c.Journal.DSN)
	c.Journal.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Journal.MaxConns)
	c.Journal.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Journal.MinConns)
	c.Journal.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Journal.MaxConnLifetime)
	c.Journal.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Journal.MaxConnIdleTime)
	c.Journal.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Journal.DialTimeout)

	c.Storage.Endpoint = getEnv("MINIO_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = getEnv("MINIO_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnv("MINIO_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.Bucket = getEnv("MINIO_BUCKET", c.Storage.Bucket)
	c.Storage.Region = getEnv("MINIO_REGION", c.Storage.Region)
	c.Storage.UseSSL = getEnvAsBool("MINIO_USE_SSL", c.Storage.UseSSL)

	c.Batch.Workers = getEnvAsInt("BATCH_WORKERS", c.Batch.Workers)
	c.Batch.QueueSize = getEnvAsInt("BATCH_QUEUE_SIZE", c.Batch.QueueSize)
	c.Batch.JobTimeout = getEnvAsDuration("BATCH_JOB_TIMEOUT", c.Batch.JobTimeout)
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("server.grpc_addr", c.Server.GRPCAddr, Required)
	v.Field("server.http_addr", c.Server.HTTPAddr, Required)
	v.Field("server.log_level", strings.ToLower(c.Server.LogLevel), OneOf("debug", "info", "warn", "error"))
	v.Field("ocr.lang", c.OCR.Lang, Required)
	v.Field("narrative.provider", c.Narrative.Provider, OneOf("http", "openai"))
	v.Field("narrative.temperature", float64(c.Narrative.Temperature), Range(0, 2))
	v.Field("narrative.max_tokens", float64(c.Narrative.MaxTokens), Range(1, 8192))
	v.Field("journal.driver", c.Journal.Driver, OneOf("sqlite", "postgres", "mysql", "none"))
	if c.Journal.Driver != "none" {
		v.Field("journal.dsn", c.Journal.DSN, Required)
	}
	if c.Storage.Endpoint != "" {
		v.Field("storage.bucket", c.Storage.Bucket, Required, MinLength(3))
	}
	v.Field("batch.workers", float64(c.Batch.Workers), Range(1, 256))
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
