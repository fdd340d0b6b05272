// Package config provides configuration management for the utility-app
// service and CLI.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration settings.
// Configuration precedence: CLI flags > Environment variables > Config file > Defaults
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	History  HistoryConfig
	OCR      OCRConfig
	Document DocumentConfig
	Log      LogConfig
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	// Addr is the interface to listen on (empty = all interfaces)
	Addr string

	// Port is the TCP port to listen on
	Port int

	// MaxUploadMB caps the size of an uploaded file
	MaxUploadMB int

	// ClientOrigins lists the CORS origins allowed to call the API ("*" = any)
	ClientOrigins []string

	// PublicURL is the externally visible base URL used in download links.
	// Empty means links are built from the incoming request's host.
	PublicURL string

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration

	// PIDFile is written on start and removed on shutdown when set
	PIDFile string
}

// StorageConfig configures where produced artifacts are written
type StorageConfig struct {
	// Dir holds result files served under /files/
	Dir string
}

// HistoryConfig configures the operation ledger
type HistoryConfig struct {
	// Limit is the default and maximum number of entries returned by a listing
	Limit int

	// File is an optional JSON snapshot for the in-memory ledger
	File string

	// DatabaseURL selects the PostgreSQL ledger when set
	DatabaseURL string

	// DatabaseSSL enables TLS for the PostgreSQL connection
	DatabaseSSL bool
}

// OCRConfig configures the recognition provider chain
type OCRConfig struct {
	// Languages are the Tesseract language codes for the local provider
	Languages []string

	// RemoteEnabled puts a remote provider ahead of the local one
	RemoteEnabled bool

	// RemoteBackend is one of api4ai, ollama, openai, anthropic, google
	RemoteBackend string

	// Timeout bounds a whole recognition request, fallback included
	Timeout time.Duration

	// API4AI configures the RapidAPI OCR service
	API4AI API4AIConfig

	// LLM configures the vision model backends
	LLM LLMConfig
}

// API4AIConfig holds the RapidAPI OCR service settings
type API4AIConfig struct {
	Endpoint string
	Host     string
	Key      string
	Mode     string
}

// LLMConfig holds configuration for vision model backends
type LLMConfig struct {
	// Model is the specific model to use for OCR (empty = backend default)
	Model string

	// Endpoint is the API endpoint (Ollama URL, or a gateway for hosted APIs)
	Endpoint string

	// APIKey is the API key for hosted backends. It is populated from:
	// 1. macOS Keychain (if UseKeychain is true)
	// 2. Environment variables:
	//    - OPENAI_API_KEY for OpenAI
	//    - ANTHROPIC_API_KEY for Anthropic
	//    - GOOGLE_API_KEY for Google
	APIKey string

	// MaxRetries is the maximum number of retry attempts for API calls
	MaxRetries int

	// Temperature controls randomness (0.0 = deterministic, recommended for OCR)
	Temperature float64

	// UseKeychain enables macOS Keychain lookup for API keys (macOS only)
	UseKeychain bool

	// KeychainServicePrefix is the prefix for keychain service names
	// Service names will be: {prefix}-{backend} (e.g., "utility-app-openai")
	KeychainServicePrefix string
}

// DocumentConfig sets the page geometry of text-to-PDF conversion, in points
type DocumentConfig struct {
	PageWidth  float64
	PageHeight float64
	Margin     float64
	FontSize   float64
	LineGap    float64
}

// LogConfig configures the logger
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// legacyEnv maps keys to the unprefixed environment variables the service
// has always honoured. UTILITY_-prefixed names take precedence.
var legacyEnv = map[string]string{
	"port":             "PORT",
	"max-file-size-mb": "MAX_FILE_SIZE_MB",
	"client-origins":   "CLIENT_ORIGINS",
	"history-limit":    "HISTORY_LIMIT",
	"database-url":     "DATABASE_URL",
	"database-ssl":     "DATABASE_SSL",
	"ocr-languages":    "OCR_LANGUAGES",
	"api4ai-key":       "API4AI_OCR_KEY",
	"api4ai-host":      "API4AI_OCR_HOST",
	"api4ai-endpoint":  "API4AI_OCR_ENDPOINT",
	"api4ai-mode":      "API4AI_OCR_MODE",
}

var validBackends = map[string]bool{
	"api4ai":    true,
	"ollama":    true,
	"openai":    true,
	"anthropic": true,
	"google":    true,
}

// Load reads configuration from multiple sources and returns a Config instance.
// Sources are checked in this order: flags > env vars > config file > defaults.
// Flags whose names match configuration keys override everything else.
func Load(configFile string, flags ...*pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
			v.SetConfigName(".utility-app")
			v.SetConfigType("yaml")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("UTILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "UTILITY_"+envName(key), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	for _, fs := range flags {
		if fs == nil {
			continue
		}
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	config := &Config{
		Server: ServerConfig{
			Addr:            v.GetString("addr"),
			Port:            v.GetInt("port"),
			MaxUploadMB:     v.GetInt("max-file-size-mb"),
			ClientOrigins:   splitList(v.GetStringSlice("client-origins"), ","),
			PublicURL:       v.GetString("public-url"),
			ShutdownTimeout: v.GetDuration("shutdown-timeout"),
			PIDFile:         v.GetString("pid-file"),
		},
		Storage: StorageConfig{
			Dir: v.GetString("storage-dir"),
		},
		History: HistoryConfig{
			Limit:       v.GetInt("history-limit"),
			File:        v.GetString("history-file"),
			DatabaseURL: v.GetString("database-url"),
			DatabaseSSL: v.GetBool("database-ssl"),
		},
		OCR: OCRConfig{
			Languages:     splitList(v.GetStringSlice("ocr-languages"), "+,"),
			RemoteEnabled: v.GetBool("ocr-remote-enabled"),
			RemoteBackend: v.GetString("ocr-remote-backend"),
			Timeout:       v.GetDuration("ocr-timeout"),
			API4AI: API4AIConfig{
				Endpoint: v.GetString("api4ai-endpoint"),
				Host:     v.GetString("api4ai-host"),
				Key:      v.GetString("api4ai-key"),
				Mode:     v.GetString("api4ai-mode"),
			},
			LLM: LLMConfig{
				Model:                 v.GetString("llm-model"),
				Endpoint:              v.GetString("llm-endpoint"),
				MaxRetries:            v.GetInt("llm-max-retries"),
				Temperature:           v.GetFloat64("llm-temperature"),
				UseKeychain:           v.GetBool("llm-use-keychain"),
				KeychainServicePrefix: v.GetString("llm-keychain-service-prefix"),
			},
		},
		Document: DocumentConfig{
			PageWidth:  v.GetFloat64("page-width"),
			PageHeight: v.GetFloat64("page-height"),
			Margin:     v.GetFloat64("page-margin"),
			FontSize:   v.GetFloat64("font-size"),
			LineGap:    v.GetFloat64("line-gap"),
		},
		Log: LogConfig{
			Level:  v.GetString("log-level"),
			Format: v.GetString("log-format"),
			File:   v.GetString("log-file"),
		},
	}

	config.OCR.LLM.APIKey = loadAPIKeyForBackend(config.OCR.RemoteBackend, config.OCR.LLM.UseKeychain, config.OCR.LLM.KeychainServicePrefix)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("addr", "")
	v.SetDefault("port", 4000)
	v.SetDefault("max-file-size-mb", 25)
	v.SetDefault("client-origins", []string{"*"})
	v.SetDefault("public-url", "")
	v.SetDefault("shutdown-timeout", 10*time.Second)
	v.SetDefault("pid-file", "")

	v.SetDefault("storage-dir", filepath.Join(home, ".utility-app", "storage"))

	v.SetDefault("history-limit", 50)
	v.SetDefault("history-file", "")
	v.SetDefault("database-url", "")
	v.SetDefault("database-ssl", false)

	v.SetDefault("ocr-languages", "eng")
	v.SetDefault("ocr-remote-enabled", true)
	v.SetDefault("ocr-remote-backend", "api4ai")
	v.SetDefault("ocr-timeout", 2*time.Minute)
	v.SetDefault("api4ai-endpoint", "https://ocr43.p.rapidapi.com/v1/results")
	v.SetDefault("api4ai-host", "ocr43.p.rapidapi.com")
	v.SetDefault("api4ai-key", "")
	v.SetDefault("api4ai-mode", "simple-text")

	v.SetDefault("llm-model", "")
	v.SetDefault("llm-endpoint", "")
	v.SetDefault("llm-max-retries", 2)
	v.SetDefault("llm-temperature", 0.0)
	v.SetDefault("llm-use-keychain", false)
	v.SetDefault("llm-keychain-service-prefix", "utility-app")

	// A4 portrait, 12pt Helvetica, 14pt leading
	v.SetDefault("page-width", 595.28)
	v.SetDefault("page-height", 841.89)
	v.SetDefault("page-margin", 50.0)
	v.SetDefault("font-size", 12.0)
	v.SetDefault("line-gap", 2.0)

	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "console")
	v.SetDefault("log-file", "")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || !isKnownKey(v, f.Name) {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

func isKnownKey(v *viper.Viper, key string) bool {
	for _, k := range v.AllKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// splitList flattens values that may themselves hold separated lists, as
// happens when a slice setting arrives through a single environment variable.
func splitList(values []string, seps string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.FieldsFunc(v, func(r rune) bool { return strings.ContainsRune(seps, r) }) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks that the configuration is valid and internally consistent
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("max-file-size-mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if len(c.Server.ClientOrigins) == 0 {
		c.Server.ClientOrigins = []string{"*"}
	}
	c.Server.PublicURL = strings.TrimRight(c.Server.PublicURL, "/")
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown-timeout must be positive")
	}

	if c.Storage.Dir == "" {
		return fmt.Errorf("storage-dir cannot be empty")
	}
	dir, err := expandHome(c.Storage.Dir)
	if err != nil {
		return fmt.Errorf("failed to expand home directory in storage-dir: %w", err)
	}
	c.Storage.Dir = dir

	if c.History.Limit <= 0 {
		return fmt.Errorf("history-limit must be positive, got %d", c.History.Limit)
	}
	if c.History.File != "" {
		file, err := expandHome(c.History.File)
		if err != nil {
			return fmt.Errorf("failed to expand home directory in history-file: %w", err)
		}
		c.History.File = file
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log-level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}
	c.Log.Level = strings.ToLower(c.Log.Level)

	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log-format %q, must be console or json", c.Log.Format)
	}

	if c.Document.PageWidth <= 0 || c.Document.PageHeight <= 0 || c.Document.FontSize <= 0 {
		return fmt.Errorf("page-width, page-height and font-size must be positive")
	}
	if c.Document.Margin < 0 || c.Document.LineGap < 0 {
		return fmt.Errorf("page-margin and line-gap cannot be negative")
	}

	if err := c.validateOCRConfig(); err != nil {
		return fmt.Errorf("invalid OCR configuration: %w", err)
	}

	return nil
}

// validateOCRConfig validates the recognition settings
func (c *Config) validateOCRConfig() error {
	if len(c.OCR.Languages) == 0 {
		return fmt.Errorf("ocr-languages cannot be empty")
	}
	if c.OCR.Timeout <= 0 {
		return fmt.Errorf("ocr-timeout must be positive")
	}

	c.OCR.RemoteBackend = strings.ToLower(c.OCR.RemoteBackend)
	if !validBackends[c.OCR.RemoteBackend] {
		return fmt.Errorf("invalid ocr-remote-backend %q, must be one of: api4ai, ollama, openai, anthropic, google", c.OCR.RemoteBackend)
	}

	if c.OCR.LLM.Temperature < 0.0 || c.OCR.LLM.Temperature > 2.0 {
		return fmt.Errorf("llm-temperature must be between 0.0 and 2.0, got %f", c.OCR.LLM.Temperature)
	}
	if c.OCR.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm-max-retries must be non-negative, got %d", c.OCR.LLM.MaxRetries)
	}

	return nil
}

// RemoteConfigured reports whether the remote provider has what it needs to
// run. A remote backend without credentials is skipped, not an error.
func (o *OCRConfig) RemoteConfigured() bool {
	if !o.RemoteEnabled {
		return false
	}
	switch o.RemoteBackend {
	case "api4ai":
		return o.API4AI.Key != ""
	case "ollama":
		return true
	default:
		return o.LLM.APIKey != ""
	}
}

// ListenAddr returns the listen address in host:port form
func (s *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Addr, s.Port)
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}

// loadAPIKeyForBackend loads the hosted backend's API key from the keychain or
// environment variables
func loadAPIKeyForBackend(backend string, useKeychain bool, keychainPrefix string) string {
	if useKeychain {
		if key := loadFromKeychain(backend, keychainPrefix); key != "" {
			return key
		}
	}

	switch strings.ToLower(backend) {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "google":
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}

// loadFromKeychain attempts to retrieve an API key from macOS Keychain.
// Service name format: {prefix}-{backend} (e.g., "utility-app-openai").
// Returns empty string if not found or on non-macOS platforms.
func loadFromKeychain(backend, prefix string) string {
	if runtime.GOOS != "darwin" {
		return ""
	}

	serviceName := fmt.Sprintf("%s-%s", prefix, strings.ToLower(backend))

	cmd := exec.Command("security", "find-generic-password", "-s", serviceName, "-w")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(output))
}

func redact(secret string) string {
	switch {
	case secret == "":
		return "not set"
	case len(secret) > 8:
		return "***" + secret[len(secret)-4:]
	default:
		return "***"
	}
}

// String returns a string representation of the configuration (with sensitive data redacted)
func (c *Config) String() string {
	database := "not set"
	if c.History.DatabaseURL != "" {
		database = "set"
	}

	return fmt.Sprintf(`Configuration:
  Server:
    Listen: %s
    MaxUploadMB: %d
    ClientOrigins: %v
    PublicURL: %s
    ShutdownTimeout: %s
    PIDFile: %s
  Storage:
    Dir: %s
  History:
    Limit: %d
    File: %s
    DatabaseURL: %s
    DatabaseSSL: %t
  OCR:
    Languages: %v
    RemoteEnabled: %t
    RemoteBackend: %s
    Timeout: %s
    API4AI:
      Endpoint: %s
      Host: %s
      Key: %s
      Mode: %s
    LLM:
      Model: %s
      Endpoint: %s
      APIKey: %s
      MaxRetries: %d
      Temperature: %.2f
  Document:
    Page: %.2fx%.2f
    Margin: %.2f
    FontSize: %.2f
    LineGap: %.2f
  Log:
    Level: %s
    Format: %s
    File: %s`,
		c.Server.ListenAddr(),
		c.Server.MaxUploadMB,
		c.Server.ClientOrigins,
		c.Server.PublicURL,
		c.Server.ShutdownTimeout,
		c.Server.PIDFile,
		c.Storage.Dir,
		c.History.Limit,
		c.History.File,
		database,
		c.History.DatabaseSSL,
		c.OCR.Languages,
		c.OCR.RemoteEnabled,
		c.OCR.RemoteBackend,
		c.OCR.Timeout,
		c.OCR.API4AI.Endpoint,
		c.OCR.API4AI.Host,
		redact(c.OCR.API4AI.Key),
		c.OCR.API4AI.Mode,
		c.OCR.LLM.Model,
		c.OCR.LLM.Endpoint,
		redact(c.OCR.LLM.APIKey),
		c.OCR.LLM.MaxRetries,
		c.OCR.LLM.Temperature,
		c.Document.PageWidth,
		c.Document.PageHeight,
		c.Document.Margin,
		c.Document.FontSize,
		c.Document.LineGap,
		c.Log.Level,
		c.Log.Format,
		c.Log.File,
	)
}
