package common

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	LLM      LLMConfig
	Paths    PathsConfig
	Geocoder GeocoderConfig
	Tracking TrackingConfig
	LogLevel slog.Level
}

// LLMConfig holds oracle-related configuration
type LLMConfig struct {
	BaseURL       string
	Model         string
	APIKey        string
	Temperature   float32
	Timeout       time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	ContextFile   string
	SchemaEnforce bool
}

// PathsConfig holds input/output locations
type PathsConfig struct {
	ImagesDir    string
	OutputDir    string
	ProgressFile string
}

// GeocoderConfig holds geocoding-related configuration
type GeocoderConfig struct {
	URL     string
	Delay   time.Duration
	Timeout time.Duration
}

// TrackingConfig holds the run-tracking store location; empty DSN disables tracking.
type TrackingConfig struct {
	DSN string
}

// Artifact file names inside Paths.OutputDir.
const (
	RestaurantsFile = "restaurants.json"
	GeocodedFile    = "restaurants_geolocalized.json"
	FailuresFile    = "failures.json"
	CallLogFile     = "llm_calls.json"
	XLSXFile        = "restaurants.xlsx"
)

// LoadConfig loads configuration from a .env file (if any) and environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // ignore error if .env doesn't exist

	outputDir := getEnv("OUTPUT_DIR", "output")
	return &Config{
		LLM: LLMConfig{
			BaseURL:       getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
			Model:         getEnv("LLM_MODEL", "google/gemini-2.5-flash"),
			APIKey:        getEnv("OPENROUTER_API_KEY", getEnv("OPENAI_API_KEY", "")),
			Temperature:   getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:       getEnvAsDuration("LLM_TIMEOUT", 120*time.Second),
			MaxAttempts:   getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
			RetryBackoff:  getEnvAsDuration("LLM_RETRY_BACKOFF", time.Second),
			ContextFile:   getEnv("LLM_CONTEXT_FILE", ""),
			SchemaEnforce: getEnvAsBool("LLM_SCHEMA_ENFORCE", true),
		},
		Paths: PathsConfig{
			ImagesDir:    getEnv("IMAGES_DIR", "images"),
			OutputDir:    outputDir,
			ProgressFile: getEnv("PROGRESS_FILE", filepath.Join(outputDir, "progress.json")),
		},
		Geocoder: GeocoderConfig{
			URL:     getEnv("GEOCODER_URL", "https://data.geopf.fr/geocodage/search"),
			Delay:   getEnvAsDuration("GEOCODER_DELAY", 100*time.Millisecond),
			Timeout: getEnvAsDuration("GEOCODER_TIMEOUT", 10*time.Second),
		},
		Tracking: TrackingConfig{
			DSN: getEnvAllowEmpty("TRACKING_DB", filepath.Join(outputDir, "tracking.db")),
		},
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// OutputPath joins name onto the configured output directory.
func (c *Config) OutputPath(name string) string {
	return filepath.Join(c.Paths.OutputDir, name)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty keeps a variable that is set to "", unlike getEnv.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
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

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(value)); err != nil {
		return defaultValue
	}
	return lvl
}

// ValidateExtract validates what the extraction run needs before any file is touched
func (c *Config) ValidateExtract() error {
	v := NewValidator().
		Field("OPENROUTER_API_KEY", c.LLM.APIKey, Required).
		Field("LLM_MODEL", c.LLM.Model, Required).
		Field("IMAGES_DIR", c.Paths.ImagesDir, Required, ExistingDir).
		Field("OUTPUT_DIR", c.Paths.OutputDir, Required).
		Field("LLM_TIMEOUT", c.LLM.Timeout, PositiveDuration).
		Field("LLM_MAX_ATTEMPTS", c.LLM.MaxAttempts, PositiveInt)
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrConfig)
	}
	return nil
}

// ValidateGeocode validates the enrichment pass configuration
func (c *Config) ValidateGeocode() error {
	v := NewValidator().
		Field("GEOCODER_URL", c.Geocoder.URL, Required).
		Field("GEOCODER_DELAY", c.Geocoder.Delay, PositiveDuration).
		Field("GEOCODER_TIMEOUT", c.Geocoder.Timeout, PositiveDuration)
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrConfig)
	}
	return nil
}
