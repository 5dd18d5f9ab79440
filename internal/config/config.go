package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the bovinoia server.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Model    ModelConfig
	Weight   WeightConfig
	Queue    QueueConfig
	Redis    RedisConfig
	Database DatabaseConfig
	MQTT     MQTTConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	AllowedOrigins []string
	MaxUploadBytes int64
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level  string
	Format string
}

type ModelConfig struct {
	Backend          string
	Path             string
	MetadataPath     string
	LabelsPath       string
	LibraryPath      string
	ImageSize        int
	BatchSize        int
	MaxImagePixels   int
	InferenceTimeout time.Duration
	CatalogPath      string
}

// WeightConfig bounds the heuristic weight estimate, in kilograms.
type WeightConfig struct {
	Min float64
	Max float64
}

type QueueConfig struct {
	MaxSize         int
	Workers         int
	Retention       time.Duration
	CleanupInterval time.Duration
}

type RedisConfig struct {
	URL                string
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Encoding string
}

var validBackends = map[string]bool{
	"onnx": true,
	"demo": true,
}

var validEncodings = map[string]bool{
	"json":    true,
	"msgpack": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any value is invalid.
func Load() (*Config, error) {
	// FRAME_RETENTION (duration string) wins over FRAME_TIMEOUT_HOURS.
	retention := envDuration("FRAME_RETENTION",
		time.Duration(envInt("FRAME_TIMEOUT_HOURS", 1))*time.Hour)

	cfg := &Config{
		Server: ServerConfig{
			Host:           envString("HOST", "0.0.0.0"),
			Port:           envInt("PORT", 8000),
			Env:            envString("APP_ENV", "development"),
			AllowedOrigins: envList("ALLOWED_ORIGINS", []string{"*"}),
			MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", 10<<20)),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "json")),
		},
		Model: ModelConfig{
			Backend:          strings.ToLower(envString("MODEL_BACKEND", "onnx")),
			Path:             envString("MODEL_PATH", "models/bovino_model.onnx"),
			MetadataPath:     envString("MODEL_METADATA_PATH", "models/model_metadata.json"),
			LabelsPath:       envString("LABELS_PATH", "models/class_labels.json"),
			LibraryPath:      os.Getenv("ONNX_LIBRARY_PATH"),
			ImageSize:        envInt("IMAGE_SIZE", 224),
			BatchSize:        envInt("BATCH_SIZE", 32),
			MaxImagePixels:   envInt("MAX_IMAGE_PIXELS", 40_000_000),
			InferenceTimeout: envDurationSecs("INFERENCE_TIMEOUT_SECS", 30*time.Second),
			CatalogPath:      os.Getenv("BREED_CATALOG_PATH"),
		},
		Weight: WeightConfig{
			Min: envFloat("MIN_WEIGHT", 200.0),
			Max: envFloat("MAX_WEIGHT", 1200.0),
		},
		Queue: QueueConfig{
			MaxSize:         envInt("MAX_QUEUE_SIZE", 100),
			Workers:         envInt("QUEUE_WORKERS", 4),
			Retention:       retention,
			CleanupInterval: envDuration("CLEANUP_INTERVAL", time.Minute),
		},
		Redis: RedisConfig{
			URL:                os.Getenv("REDIS_URL"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath:  envString("DATABASE_MIGRATIONS_PATH", "migrations"),
		},
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			Topic:    envString("MQTT_TOPIC", "bovinoia/analyses"),
			ClientID: envString("MQTT_CLIENT_ID", "bovinoia"),
			Encoding: strings.ToLower(envString("MQTT_ENCODING", "json")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadBytes)
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text; got %q", c.Log.Format)
	}
	if !validBackends[c.Model.Backend] {
		return fmt.Errorf("MODEL_BACKEND must be one of onnx, demo; got %q", c.Model.Backend)
	}
	if c.Model.Backend == "onnx" && c.Model.Path == "" {
		return fmt.Errorf("MODEL_PATH is required when MODEL_BACKEND is onnx")
	}
	if c.Model.ImageSize <= 0 {
		return fmt.Errorf("IMAGE_SIZE must be positive, got %d", c.Model.ImageSize)
	}
	if c.Model.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Model.BatchSize)
	}
	if c.Model.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be positive, got %d", c.Model.MaxImagePixels)
	}
	if c.Model.InferenceTimeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT_SECS must be positive")
	}
	if c.Weight.Min < 0 {
		return fmt.Errorf("MIN_WEIGHT must not be negative, got %v", c.Weight.Min)
	}
	if c.Weight.Min >= c.Weight.Max {
		return fmt.Errorf("MIN_WEIGHT (%v) must be lower than MAX_WEIGHT (%v)", c.Weight.Min, c.Weight.Max)
	}
	if c.Queue.MaxSize <= 0 {
		return fmt.Errorf("MAX_QUEUE_SIZE must be positive, got %d", c.Queue.MaxSize)
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("QUEUE_WORKERS must be positive, got %d", c.Queue.Workers)
	}
	if c.Queue.Retention <= 0 {
		return fmt.Errorf("frame retention window must be positive, got %s", c.Queue.Retention)
	}
	if c.Queue.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive, got %s", c.Queue.CleanupInterval)
	}
	if c.Redis.URL != "" {
		if err := requireScheme("REDIS_URL", c.Redis.URL, "redis", "rediss"); err != nil {
			return err
		}
	}
	if c.Database.URL != "" {
		if err := requireScheme("DATABASE_URL", c.Database.URL, "postgres", "postgresql"); err != nil {
			return err
		}
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return fmt.Errorf("MQTT_TOPIC is required when MQTT_BROKER is set")
	}
	if !validEncodings[c.MQTT.Encoding] {
		return fmt.Errorf("MQTT_ENCODING must be json or msgpack; got %q", c.MQTT.Encoding)
	}
	return nil
}

func requireScheme(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of %s schemes, got %q", key, strings.Join(schemes, ", "), u.Scheme)
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
