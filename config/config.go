package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when no explicit path is given.
const DefaultConfigFile = "conf.json"

// Duration is a time.Duration that decodes from strings such as "24h" in both
// JSON and YAML config files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// APIKeys holds the API keys for the image vendors.
type APIKeys struct {
	Gemini string `json:"GEMINI_API_KEY" yaml:"GEMINI_API_KEY"`
	OpenAI string `json:"OPENAI_API_KEY" yaml:"OPENAI_API_KEY"`
}

// Vendors holds per-vendor model identifiers and optional endpoint overrides.
type Vendors struct {
	GeminiModel   string   `json:"GEMINI_MODEL" yaml:"GEMINI_MODEL"`
	GeminiBaseURL string   `json:"GEMINI_BASE_URL" yaml:"GEMINI_BASE_URL"`
	OpenAIModel   string   `json:"OPENAI_IMAGE_MODEL" yaml:"OPENAI_IMAGE_MODEL"`
	OpenAIBaseURL string   `json:"OPENAI_BASE_URL" yaml:"OPENAI_BASE_URL"`
	Timeout       Duration `json:"VENDOR_TIMEOUT" yaml:"VENDOR_TIMEOUT"`
}

// Storage describes where uploads and results live and what is accepted.
type Storage struct {
	UploadDir         string   `json:"UPLOAD_DIR" yaml:"UPLOAD_DIR"`
	ResultDir         string   `json:"RESULT_DIR" yaml:"RESULT_DIR"`
	AllowedExtensions []string `json:"ALLOWED_EXTENSIONS" yaml:"ALLOWED_EXTENSIONS"`
	MaxFileSize       int64    `json:"MAX_FILE_SIZE" yaml:"MAX_FILE_SIZE"`
	MaxInputDimension int      `json:"MAX_INPUT_DIMENSION" yaml:"MAX_INPUT_DIMENSION"`
}

// Settings holds optional application settings.
type Settings struct {
	ListenAddr             string   `json:"LISTEN_ADDR" yaml:"LISTEN_ADDR"`
	CORSAllowedOrigins     []string `json:"CORS_ALLOWED_ORIGINS" yaml:"CORS_ALLOWED_ORIGINS"`
	BackgroundRemovalModel string   `json:"BACKGROUND_REMOVAL_MODEL" yaml:"BACKGROUND_REMOVAL_MODEL"`
	LogLevel               string   `json:"LOG_LEVEL" yaml:"LOG_LEVEL"`
	LogFormat              string   `json:"LOG_FORMAT" yaml:"LOG_FORMAT"`
	RetentionMaxAge        Duration `json:"RETENTION_MAX_AGE" yaml:"RETENTION_MAX_AGE"`
	RetentionSchedule      string   `json:"RETENTION_SCHEDULE" yaml:"RETENTION_SCHEDULE"`
}

// Config holds the entire application configuration.
type Config struct {
	APIKeys  APIKeys  `json:"API_KEYS" yaml:"API_KEYS"`
	Vendors  Vendors  `json:"VENDORS" yaml:"VENDORS"`
	Storage  Storage  `json:"STORAGE" yaml:"STORAGE"`
	Settings Settings `json:"SETTINGS" yaml:"SETTINGS"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Vendors: Vendors{
			GeminiModel: "gemini-2.5-flash-image-preview",
			OpenAIModel: "gpt-image-1",
		},
		Storage: Storage{
			UploadDir:         "uploads",
			ResultDir:         "results",
			AllowedExtensions: []string{"png", "jpg", "jpeg", "webp"},
			MaxFileSize:       10 << 20, // 10 MB
			MaxInputDimension: 2048,
		},
		Settings: Settings{
			ListenAddr:             ":8000",
			CORSAllowedOrigins:     []string{"*"},
			BackgroundRemovalModel: "openai",
			LogLevel:               "info",
			LogFormat:              "json",
			RetentionSchedule:      "@hourly",
		},
	}
}

// LoadConfig loads the configuration from defaults, the config file, .env, and
// environment variables, each layer overriding the previous one. An empty path
// means DefaultConfigFile; a missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	// 1. Set default values
	cfg := Default()

	// 2. Load from the config file
	if path == "" {
		path = DefaultConfigFile
	}
	if err := loadFile(cfg, path); err != nil {
		return nil, err
	}

	// 3. Load from .env file (will override the config file)
	_ = godotenv.Load()

	// 4. Load from environment variables (will override everything)
	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: could not open %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("config: could not decode %s: %w", path, err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables, overriding existing values.
func loadFromEnv(cfg *Config) error {
	// API Keys
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.APIKeys.Gemini = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.APIKeys.OpenAI = key
	}

	// Vendors
	if val := os.Getenv("GEMINI_MODEL"); val != "" {
		cfg.Vendors.GeminiModel = val
	}
	if val := os.Getenv("GEMINI_BASE_URL"); val != "" {
		cfg.Vendors.GeminiBaseURL = val
	}
	if val := os.Getenv("OPENAI_IMAGE_MODEL"); val != "" {
		cfg.Vendors.OpenAIModel = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		cfg.Vendors.OpenAIBaseURL = val
	}
	if val := os.Getenv("VENDOR_TIMEOUT"); val != "" {
		if err := cfg.Vendors.Timeout.UnmarshalText([]byte(val)); err != nil {
			return fmt.Errorf("config: VENDOR_TIMEOUT: %w", err)
		}
	}

	// Storage
	if val := os.Getenv("UPLOAD_DIR"); val != "" {
		cfg.Storage.UploadDir = val
	}
	if val := os.Getenv("RESULT_DIR"); val != "" {
		cfg.Storage.ResultDir = val
	}
	if val := os.Getenv("ALLOWED_EXTENSIONS"); val != "" {
		cfg.Storage.AllowedExtensions = splitList(val)
	}
	if val := os.Getenv("MAX_FILE_SIZE"); val != "" {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("config: MAX_FILE_SIZE: %w", err)
		}
		cfg.Storage.MaxFileSize = n
	}
	if val := os.Getenv("MAX_INPUT_DIMENSION"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("config: MAX_INPUT_DIMENSION: %w", err)
		}
		cfg.Storage.MaxInputDimension = n
	}

	// Settings
	if val := os.Getenv("LISTEN_ADDR"); val != "" {
		cfg.Settings.ListenAddr = val
	}
	if val := os.Getenv("CORS_ALLOWED_ORIGINS"); val != "" {
		cfg.Settings.CORSAllowedOrigins = splitList(val)
	}
	if val := os.Getenv("BACKGROUND_REMOVAL_MODEL"); val != "" {
		cfg.Settings.BackgroundRemovalModel = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Settings.LogLevel = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Settings.LogFormat = val
	}
	if val := os.Getenv("RETENTION_MAX_AGE"); val != "" {
		if err := cfg.Settings.RetentionMaxAge.UnmarshalText([]byte(val)); err != nil {
			return fmt.Errorf("config: RETENTION_MAX_AGE: %w", err)
		}
	}
	if val := os.Getenv("RETENTION_SCHEDULE"); val != "" {
		cfg.Settings.RetentionSchedule = val
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Storage.UploadDir == "" || c.Storage.ResultDir == "" {
		return fmt.Errorf("config: UPLOAD_DIR and RESULT_DIR must be set")
	}
	if c.Storage.MaxFileSize <= 0 {
		return fmt.Errorf("config: MAX_FILE_SIZE must be positive, got %d", c.Storage.MaxFileSize)
	}
	if len(c.Storage.AllowedExtensions) == 0 {
		return fmt.Errorf("config: ALLOWED_EXTENSIONS must not be empty")
	}
	if c.Settings.RetentionMaxAge < 0 {
		return fmt.Errorf("config: RETENTION_MAX_AGE must not be negative")
	}
	return nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
