package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the runtime configuration of the service.
type Config struct {
	Port     string
	LogLevel string

	GeminiAPIKey string
	CohereAPIKey string

	// OutputFormat selects the encoder profile ("mp4" or "webm")
	OutputFormat string
	FFmpegPath   string

	MusicDir     string
	MusicCatalog string

	History HistoryConfig
	Storage StorageConfig
	Kafka   KafkaConfig
	Feeds   FeedConfig

	YouTubeServiceAccount string
}

// HistoryConfig selects the history backend.
type HistoryConfig struct {
	// Backend is "redis" or "memory"
	Backend   string
	RedisAddr string
	RedisPass string
	RedisDB   int
	// MaxBytes emulates the local storage quota; 0 disables the limit
	MaxBytes int
}

// StorageConfig selects where finished artifacts are published.
type StorageConfig struct {
	// Backend is "local", "s3" or "minio"
	Backend   string
	LocalDir  string
	Bucket    string
	Prefix    string
	Region    string
	Profile   string
	PathStyle bool

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool
}

// KafkaConfig holds the consumer settings for queued productions.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// FeedConfig holds product feed polling settings.
type FeedConfig struct {
	URLs     []string
	Schedule string
	MaxItems int
	Duration int
	Tone     string
}

var defaults = map[string]interface{}{
	"PORT":                    "8080",
	"LOG_LEVEL":               "info",
	"OUTPUT_FORMAT":           DefaultOutputFormat,
	"FFMPEG_PATH":             "ffmpeg",
	"MUSIC_DIR":               MusicDir,
	"MUSIC_CATALOG":           "",
	"HISTORY_BACKEND":         "memory",
	"REDIS_ADDR":              "localhost:6379",
	"REDIS_PASS":              "",
	"REDIS_DB":                0,
	"HISTORY_MAX_BYTES":       5 * 1024 * 1024,
	"STORAGE_BACKEND":         "local",
	"STORAGE_DIR":             OutputDir,
	"S3_BUCKET":               "",
	"S3_PREFIX":               "",
	"S3_REGION":               "",
	"S3_PROFILE":              "",
	"S3_USE_PATH_STYLE":       false,
	"MINIO_ENDPOINT":          "localhost:9000",
	"MINIO_ACCESS_KEY":        "minioadmin",
	"MINIO_SECRET_KEY":        "minioadmin",
	"MINIO_USE_SSL":           false,
	"MINIO_BUCKET":            "clipfarm",
	"KAFKA_BOOTSTRAP_SERVERS": "localhost:9093",
	"KAFKA_TOPIC":             "production-requests",
	"KAFKA_CONSUMER_GROUP_ID": "clipfarm-consumer-group",
	"FEED_URLS":               "",
	"FEED_CRON":               "*/30 * * * *",
	"FEED_MAX_ITEMS":          5,
	"FEED_DURATION_SECONDS":   30,
	"FEED_TONE":               "Hype",
	"YOUTUBE_SERVICE_ACCOUNT": "",
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	cfg := &Config{
		Port:         v.GetString("PORT"),
		LogLevel:     v.GetString("LOG_LEVEL"),
		GeminiAPIKey: firstNonEmpty(v.GetString("GEMINI_API_KEY"), v.GetString("API_KEY")),
		CohereAPIKey: v.GetString("COHERE_API_KEY"),
		OutputFormat: strings.ToLower(v.GetString("OUTPUT_FORMAT")),
		FFmpegPath:   v.GetString("FFMPEG_PATH"),
		MusicDir:     v.GetString("MUSIC_DIR"),
		MusicCatalog: v.GetString("MUSIC_CATALOG"),
		History: HistoryConfig{
			Backend:   strings.ToLower(v.GetString("HISTORY_BACKEND")),
			RedisAddr: v.GetString("REDIS_ADDR"),
			RedisPass: v.GetString("REDIS_PASS"),
			RedisDB:   v.GetInt("REDIS_DB"),
			MaxBytes:  v.GetInt("HISTORY_MAX_BYTES"),
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(v.GetString("STORAGE_BACKEND")),
			LocalDir:       v.GetString("STORAGE_DIR"),
			Bucket:         firstNonEmpty(v.GetString("S3_BUCKET"), v.GetString("MINIO_BUCKET")),
			Prefix:         strings.Trim(v.GetString("S3_PREFIX"), "/"),
			Region:         v.GetString("S3_REGION"),
			Profile:        v.GetString("S3_PROFILE"),
			PathStyle:      v.GetBool("S3_USE_PATH_STYLE"),
			MinIOEndpoint:  v.GetString("MINIO_ENDPOINT"),
			MinIOAccessKey: v.GetString("MINIO_ACCESS_KEY"),
			MinIOSecretKey: v.GetString("MINIO_SECRET_KEY"),
			MinIOUseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("KAFKA_BOOTSTRAP_SERVERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
			GroupID: v.GetString("KAFKA_CONSUMER_GROUP_ID"),
		},
		Feeds: FeedConfig{
			URLs:     splitList(v.GetString("FEED_URLS")),
			Schedule: v.GetString("FEED_CRON"),
			MaxItems: v.GetInt("FEED_MAX_ITEMS"),
			Duration: v.GetInt("FEED_DURATION_SECONDS"),
			Tone:     v.GetString("FEED_TONE"),
		},
		YouTubeServiceAccount: v.GetString("YOUTUBE_SERVICE_ACCOUNT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.OutputFormat {
	case "mp4", "webm":
	default:
		return fmt.Errorf("unsupported OUTPUT_FORMAT %q", c.OutputFormat)
	}
	switch c.History.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unsupported HISTORY_BACKEND %q", c.History.Backend)
	}
	switch c.Storage.Backend {
	case "local", "s3", "minio":
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Storage.Backend != "local" && c.Storage.Bucket == "" {
		return fmt.Errorf("STORAGE_BACKEND=%s requires a bucket", c.Storage.Backend)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
