// Package config loads and holds the application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"docrag-go/internal/textclean"
)

// Conf is the process-wide configuration populated by Init.
var Conf Config

// Config mirrors the structure of config.yaml.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Database      DatabaseConfig      `mapstructure:"database"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	PDFToText     PDFToTextConfig     `mapstructure:"pdftotext"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Search        SearchConfig        `mapstructure:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string `mapstructure:"port"`
	Mode           string `mapstructure:"mode"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	// SeedDir holds documents ingested at startup for SeedUserID. Empty disables seeding.
	SeedDir    string `mapstructure:"seed_dir"`
	SeedUserID string `mapstructure:"seed_user_id"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// JWTConfig holds token settings.
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// DatabaseConfig holds the SQL and Redis connections.
type DatabaseConfig struct {
	// DSN is used by the postgres and mysql vector store backends.
	DSN   string      `mapstructure:"dsn"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// VectorStoreConfig selects and tunes the chunk store.
type VectorStoreConfig struct {
	// Backend is one of "postgres", "mysql", "elasticsearch" or "memory".
	Backend           string        `mapstructure:"backend"`
	FallbackScanLimit int           `mapstructure:"fallback_scan_limit"`
	InsertAttempts    int           `mapstructure:"insert_attempts"`
	InsertBackoff     time.Duration `mapstructure:"insert_backoff"`
}

// ElasticsearchConfig holds Elasticsearch settings.
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig holds blob storage settings.
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// KafkaConfig holds async ingestion settings.
type KafkaConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Brokers     string        `mapstructure:"brokers"`
	Topic       string        `mapstructure:"topic"`
	GroupID     string        `mapstructure:"group_id"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// TikaConfig holds the document parsing service URL. Empty disables it.
type TikaConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// PDFToTextConfig locates the poppler binary.
type PDFToTextConfig struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is "openai" (SDK) or "compatible" (plain HTTP).
	Provider          string        `mapstructure:"provider"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	BatchSize         int           `mapstructure:"batch_size"`
	BatchDelay        time.Duration `mapstructure:"batch_delay"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds ingestion constants.
type PipelineConfig struct {
	ChunkSize          int              `mapstructure:"chunk_size"`
	ChunkOverlap       int              `mapstructure:"chunk_overlap"`
	MinChunkLength     int              `mapstructure:"min_chunk_length"`
	MaxPDFPages        int              `mapstructure:"max_pdf_pages"`
	MinExtractedLength int              `mapstructure:"min_extracted_length"`
	Validation         ValidationConfig `mapstructure:"validation"`
}

// ValidationConfig holds the two text validity predicates.
type ValidationConfig struct {
	Storage   textclean.Thresholds `mapstructure:"storage"`
	Embedding textclean.Thresholds `mapstructure:"embedding"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	Count     int     `mapstructure:"count"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_upload_bytes", 50<<20)
	v.SetDefault("server.seed_dir", "")
	v.SetDefault("server.seed_user_id", "system")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "./logs/docrag.log")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_expire_hours", 24)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.redis.addr", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("vector_store.backend", "postgres")
	v.SetDefault("vector_store.fallback_scan_limit", 10000)
	v.SetDefault("vector_store.insert_attempts", 3)
	v.SetDefault("vector_store.insert_backoff", time.Second)

	v.SetDefault("elasticsearch.addresses", "")
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index_name", "docrag_chunks")

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.bucket_name", "docrag")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "docrag-ingest")
	v.SetDefault("kafka.group_id", "docrag-ingest-group")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("kafka.retry_delay", 5*time.Second)

	v.SetDefault("tika.server_url", "")
	v.SetDefault("tika.timeout", 60*time.Second)

	v.SetDefault("pdftotext.path", "pdftotext")
	v.SetDefault("pdftotext.timeout", 60*time.Second)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 20)
	v.SetDefault("embedding.batch_delay", 200*time.Millisecond)
	v.SetDefault("embedding.requests_per_second", 5.0)
	v.SetDefault("embedding.timeout", 60*time.Second)

	v.SetDefault("pipeline.chunk_size", 1000)
	v.SetDefault("pipeline.chunk_overlap", 200)
	v.SetDefault("pipeline.min_chunk_length", 50)
	v.SetDefault("pipeline.max_pdf_pages", 50)
	v.SetDefault("pipeline.min_extracted_length", 100)
	setThresholdDefaults(v, "pipeline.validation.storage", textclean.StorageThresholds)
	setThresholdDefaults(v, "pipeline.validation.embedding", textclean.EmbeddingThresholds)

	v.SetDefault("search.threshold", 0.5)
	v.SetDefault("search.count", 5)
}

func setThresholdDefaults(v *viper.Viper, prefix string, t textclean.Thresholds) {
	v.SetDefault(prefix+".min_printable_ratio", t.MinPrintableRatio)
	v.SetDefault(prefix+".max_control_ratio", t.MaxControlRatio)
	v.SetDefault(prefix+".min_words", t.MinWords)
	v.SetDefault(prefix+".min_word_length", t.MinWordLength)
}

// Load reads the YAML file at path, applies defaults and DOCRAG_ environment
// overrides, and returns the result. A missing file leaves the defaults and
// environment in effect.
func Load(path string) (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("DOCRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Init loads the configuration into Conf and panics on failure.
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
