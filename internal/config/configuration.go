package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int `mapstructure:"WEBSERVER_PORT"`
	MetricsPort   int `mapstructure:"METRICS_PORT"`

	// Comma separated origins allowed to read the API cross-origin
	CorsAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// Database Configuration
	StoreDriver     string `mapstructure:"STORE_DRIVER" validate:"oneof=sqlite postgres"`
	DatabasePath    string `mapstructure:"DATABASE_PATH" validate:"required_if=StoreDriver sqlite"`
	DatabaseDSN     string `mapstructure:"DATABASE_DSN" validate:"required_if=StoreDriver postgres"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=text json"`

	Recordings Recordings `mapstructure:",squash"`
	Pipeline   Pipeline   `mapstructure:",squash"`
	Feed       Feed       `mapstructure:",squash"`
	Services   Services   `mapstructure:",squash"`
}

type Recordings struct {
	Root          string        `mapstructure:"RECORDINGS_ROOT" validate:"required"`
	Layout        string        `mapstructure:"RECORDINGS_LAYOUT" validate:"oneof=tree daily"`
	Extensions    []string      `mapstructure:"RECORDING_EXTENSIONS"`
	Timezone      string        `mapstructure:"TIMEZONE" validate:"required"`
	ScanInterval  time.Duration `mapstructure:"SCAN_INTERVAL" validate:"gt=0"`
	StableWindow  time.Duration `mapstructure:"STABLE_WINDOW" validate:"gt=0"`
	StablePoll    time.Duration `mapstructure:"STABLE_POLL" validate:"gt=0"`
	StableMaxWait time.Duration `mapstructure:"STABLE_MAX_WAIT" validate:"gtfield=StableWindow"`
	CheckWorkers  int           `mapstructure:"CHECK_WORKERS" validate:"min=1"`
}

type Pipeline struct {
	IngestWorkers    int    `mapstructure:"INGEST_WORKERS" validate:"min=1"`
	EnrichWorkers    int    `mapstructure:"ENRICH_WORKERS" validate:"min=1"`
	EnrichQueue      int    `mapstructure:"ENRICH_QUEUE" validate:"min=1"`
	RecoverySchedule string `mapstructure:"RECOVERY_SCHEDULE" validate:"required"`
}

type Feed struct {
	Interval          time.Duration `mapstructure:"FEED_INTERVAL" validate:"gt=0"`
	HeartbeatInterval time.Duration `mapstructure:"HEARTBEAT_INTERVAL" validate:"gt=0"`
	BatchLimit        int           `mapstructure:"FEED_BATCH_LIMIT" validate:"min=1"`
}

type Services struct {
	Transcriber    string `mapstructure:"TRANSCRIBER" validate:"oneof=whisper deepgram"`
	DeepgramAPIKey string `mapstructure:"DEEPGRAM_API_KEY" validate:"required_if=Transcriber deepgram"`
	DeepgramURL    string `mapstructure:"DEEPGRAM_URL" validate:"omitempty,url"`

	LLMAPIURL        string `mapstructure:"LLM_API_URL" validate:"required,url"`
	LLMAPIKey        string `mapstructure:"LLM_API_KEY"`
	LLMClassifyModel string `mapstructure:"LLM_CLASSIFY_MODEL" validate:"required"`
	LLMExtractModel  string `mapstructure:"LLM_EXTRACT_MODEL" validate:"required"`

	GoogleAPIKey  string  `mapstructure:"GOOGLE_API_KEY"`
	GeocodeURL    string  `mapstructure:"GEOCODE_URL" validate:"omitempty,url"`
	ServiceArea   string  `mapstructure:"SERVICE_AREA_LOCALITY"`
	ServiceState  string  `mapstructure:"SERVICE_AREA_STATE"`
	ServiceSouth  float64 `mapstructure:"SERVICE_AREA_SOUTH" validate:"latitude"`
	ServiceWest   float64 `mapstructure:"SERVICE_AREA_WEST" validate:"longitude"`
	ServiceNorth  float64 `mapstructure:"SERVICE_AREA_NORTH" validate:"latitude,gtfield=ServiceSouth"`
	ServiceEast   float64 `mapstructure:"SERVICE_AREA_EAST" validate:"longitude,gtfield=ServiceWest"`
	ParcelURL     string  `mapstructure:"PARCEL_URL" validate:"omitempty,url"`
	ParcelBufferM float64 `mapstructure:"PARCEL_BUFFER_METERS" validate:"gte=0"`
	ParcelLayers  []int   `mapstructure:"PARCEL_LAYERS"`

	HTTPTimeout    time.Duration `mapstructure:"HTTP_TIMEOUT" validate:"gt=0"`
	RequestsPerSec float64       `mapstructure:"HTTP_RATE_LIMIT" validate:"gt=0"`
}

// Location resolves the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Recordings.Timezone)
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)
		tag, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")

		if tag != "" {
			viper.BindEnv(tag)
		}

		// Handle nested (squashed) structs
		if field.Type.Kind() == reflect.Struct && tag == "" {
			nestedTyp := fieldVal.Type()
			for j := 0; j < fieldVal.NumField(); j++ {
				nestedField := nestedTyp.Field(j)
				nestedTag := nestedField.Tag.Get("mapstructure")
				if nestedTag != "" {
					viper.BindEnv(nestedTag)
				}
			}
		}
	}
}

func setDefaults() {
	viper.SetDefault("WEBSERVER_PORT", 8080)
	viper.SetDefault("METRICS_PORT", 9090)
	viper.SetDefault("STORE_DRIVER", "sqlite")
	viper.SetDefault("DATABASE_PATH", "data/incidents.db")
	viper.SetDefault("DATABASE_RETRIES", 10)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")

	viper.SetDefault("RECORDINGS_ROOT", "recordings")
	viper.SetDefault("RECORDINGS_LAYOUT", "tree")
	viper.SetDefault("RECORDING_EXTENSIONS", []string{".mp3"})
	viper.SetDefault("TIMEZONE", "America/New_York")
	viper.SetDefault("SCAN_INTERVAL", "1s")
	viper.SetDefault("STABLE_WINDOW", "3s")
	viper.SetDefault("STABLE_POLL", "1s")
	viper.SetDefault("STABLE_MAX_WAIT", "2m")
	viper.SetDefault("CHECK_WORKERS", 4)

	viper.SetDefault("INGEST_WORKERS", 2)
	viper.SetDefault("ENRICH_WORKERS", 2)
	viper.SetDefault("ENRICH_QUEUE", 256)
	viper.SetDefault("RECOVERY_SCHEDULE", "@every 2m")

	viper.SetDefault("FEED_INTERVAL", "1s")
	viper.SetDefault("HEARTBEAT_INTERVAL", "15s")
	viper.SetDefault("FEED_BATCH_LIMIT", 200)

	viper.SetDefault("TRANSCRIBER", "whisper")
	viper.SetDefault("DEEPGRAM_URL", "https://api.deepgram.com")
	viper.SetDefault("LLM_API_URL", "http://localhost:11434/v1")
	viper.SetDefault("LLM_CLASSIFY_MODEL", "qwen3:8b")
	viper.SetDefault("LLM_EXTRACT_MODEL", "qwen3:8b")
	viper.SetDefault("GEOCODE_URL", "https://maps.googleapis.com/maps/api/geocode/json")
	viper.SetDefault("SERVICE_AREA_LOCALITY", "Newton")
	viper.SetDefault("SERVICE_AREA_STATE", "MA")
	viper.SetDefault("SERVICE_AREA_SOUTH", 42.2869)
	viper.SetDefault("SERVICE_AREA_WEST", -71.2687)
	viper.SetDefault("SERVICE_AREA_NORTH", 42.3688)
	viper.SetDefault("SERVICE_AREA_EAST", -71.1575)
	viper.SetDefault("PARCEL_URL", "https://gisweb.newtonma.gov/server/rest/services/Browser/MapServer/identify")
	viper.SetDefault("PARCEL_BUFFER_METERS", 400.0)
	viper.SetDefault("PARCEL_LAYERS", []int{13, 20, 21})
	viper.SetDefault("HTTP_TIMEOUT", "15s")
	viper.SetDefault("HTTP_RATE_LIMIT", 5.0)
}

func LoadConfig(ctx context.Context) (*Config, error) {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()

	bindEnv(Config{})
	viper.AutomaticEnv()
	setDefaults()

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Debug("Loaded configuration",
		"store_driver", cfg.StoreDriver,
		"recordings_root", cfg.Recordings.Root,
		"layout", cfg.Recordings.Layout,
		"transcriber", cfg.Services.Transcriber,
	)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("validate config: TIMEZONE: %w", err)
	}

	return &cfg, nil
}
