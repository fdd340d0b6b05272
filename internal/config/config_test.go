package config

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// isolate points HOME at a temp dir and blanks every environment variable
// Load consults, so the developer's shell does not leak into the test.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	for key, env := range legacyEnv {
		t.Setenv(env, "")
		t.Setenv("UTILITY_"+envName(key), "")
	}
	for _, env := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY"} {
		t.Setenv(env, "")
	}
	return tmpDir
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("expected Port = 4000, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadMB != 25 {
		t.Errorf("expected MaxUploadMB = 25, got %d", cfg.Server.MaxUploadMB)
	}
	if !reflect.DeepEqual(cfg.Server.ClientOrigins, []string{"*"}) {
		t.Errorf("expected ClientOrigins = [*], got %v", cfg.Server.ClientOrigins)
	}
	if want := filepath.Join(home, ".utility-app", "storage"); cfg.Storage.Dir != want {
		t.Errorf("expected Storage.Dir = %s, got %s", want, cfg.Storage.Dir)
	}
	if cfg.History.Limit != 50 {
		t.Errorf("expected History.Limit = 50, got %d", cfg.History.Limit)
	}
	if !reflect.DeepEqual(cfg.OCR.Languages, []string{"eng"}) {
		t.Errorf("expected OCR.Languages = [eng], got %v", cfg.OCR.Languages)
	}
	if cfg.OCR.RemoteBackend != "api4ai" || !cfg.OCR.RemoteEnabled {
		t.Errorf("expected api4ai remote enabled, got %s/%t", cfg.OCR.RemoteBackend, cfg.OCR.RemoteEnabled)
	}
	if cfg.OCR.API4AI.Mode != "simple-text" {
		t.Errorf("expected API4AI.Mode = simple-text, got %s", cfg.OCR.API4AI.Mode)
	}
	if cfg.OCR.RemoteConfigured() {
		t.Error("api4ai without a key should not count as configured")
	}
	if cfg.Document.PageWidth != 595.28 || cfg.Document.PageHeight != 841.89 {
		t.Errorf("expected A4 page, got %.2fx%.2f", cfg.Document.PageWidth, cfg.Document.PageHeight)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Errorf("expected info/console logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected ShutdownTimeout = 10s, got %s", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	isolate(t)

	t.Setenv("UTILITY_PORT", "8080")
	t.Setenv("UTILITY_OCR_LANGUAGES", "eng+fra")
	t.Setenv("UTILITY_LOG_LEVEL", "DEBUG")
	t.Setenv("UTILITY_CLIENT_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("UTILITY_OCR_REMOTE_ENABLED", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected Port = 8080, got %d", cfg.Server.Port)
	}
	if !reflect.DeepEqual(cfg.OCR.Languages, []string{"eng", "fra"}) {
		t.Errorf("expected Languages = [eng fra], got %v", cfg.OCR.Languages)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected Log.Level = debug, got %s", cfg.Log.Level)
	}
	if !reflect.DeepEqual(cfg.Server.ClientOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Errorf("unexpected ClientOrigins %v", cfg.Server.ClientOrigins)
	}
	if cfg.OCR.RemoteEnabled {
		t.Error("expected remote OCR disabled")
	}
}

func TestLoad_LegacyEnvironmentVariables(t *testing.T) {
	isolate(t)

	t.Setenv("PORT", "5000")
	t.Setenv("HISTORY_LIMIT", "10")
	t.Setenv("DATABASE_URL", "postgres://user:secret@db/app")
	t.Setenv("DATABASE_SSL", "true")
	t.Setenv("MAX_FILE_SIZE_MB", "5")
	t.Setenv("API4AI_OCR_KEY", "rapid-key-123456")
	t.Setenv("API4AI_OCR_MODE", "words")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("expected Port = 5000, got %d", cfg.Server.Port)
	}
	if cfg.History.Limit != 10 {
		t.Errorf("expected History.Limit = 10, got %d", cfg.History.Limit)
	}
	if cfg.History.DatabaseURL != "postgres://user:secret@db/app" || !cfg.History.DatabaseSSL {
		t.Errorf("unexpected database settings %q/%t", cfg.History.DatabaseURL, cfg.History.DatabaseSSL)
	}
	if cfg.Server.MaxUploadMB != 5 {
		t.Errorf("expected MaxUploadMB = 5, got %d", cfg.Server.MaxUploadMB)
	}
	if cfg.OCR.API4AI.Key != "rapid-key-123456" || cfg.OCR.API4AI.Mode != "words" {
		t.Errorf("unexpected api4ai settings %+v", cfg.OCR.API4AI)
	}
	if !cfg.OCR.RemoteConfigured() {
		t.Error("api4ai with a key should count as configured")
	}
}

func TestLoad_PrefixedEnvironmentWinsOverLegacy(t *testing.T) {
	isolate(t)

	t.Setenv("PORT", "5000")
	t.Setenv("UTILITY_PORT", "6000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("expected Port = 6000, got %d", cfg.Server.Port)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	tmpDir := isolate(t)
	configFile := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
port: 9000
storage-dir: ` + filepath.Join(tmpDir, "out") + `
ocr-languages:
  - deu
  - eng
ocr-remote-backend: Ollama
llm-model: llava
llm-endpoint: http://gpu-box:11434
page-margin: 36
log-level: warn
log-format: json
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected Port = 9000, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Dir != filepath.Join(tmpDir, "out") {
		t.Errorf("unexpected Storage.Dir %s", cfg.Storage.Dir)
	}
	if !reflect.DeepEqual(cfg.OCR.Languages, []string{"deu", "eng"}) {
		t.Errorf("expected Languages = [deu eng], got %v", cfg.OCR.Languages)
	}
	if cfg.OCR.RemoteBackend != "ollama" {
		t.Errorf("expected backend lowercased to ollama, got %s", cfg.OCR.RemoteBackend)
	}
	if !cfg.OCR.RemoteConfigured() {
		t.Error("ollama needs no key and should count as configured")
	}
	if cfg.Document.Margin != 36 {
		t.Errorf("expected Margin = 36, got %.2f", cfg.Document.Margin)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log settings %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("UTILITY_PORT", "8080")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 4000, "")
	fs.String("log-level", "info", "")
	fs.Bool("unrelated", false, "")
	if err := fs.Parse([]string{"--port", "7070"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected flag port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("unchanged flag should not override default, got %s", cfg.Log.Level)
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Server:   ServerConfig{Port: 4000, MaxUploadMB: 25, ShutdownTimeout: time.Second},
		Storage:  StorageConfig{Dir: t.TempDir()},
		History:  HistoryConfig{Limit: 50},
		OCR:      OCRConfig{Languages: []string{"eng"}, RemoteBackend: "api4ai", Timeout: time.Minute},
		Document: DocumentConfig{PageWidth: 595.28, PageHeight: 841.89, Margin: 50, FontSize: 12, LineGap: 2},
		Log:      LogConfig{Level: "info", Format: "console"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"invalid log level", func(c *Config) { c.Log.Level = "verbose" }, "log-level"},
		{"invalid log format", func(c *Config) { c.Log.Format = "xml" }, "log-format"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"zero upload size", func(c *Config) { c.Server.MaxUploadMB = 0 }, "max-file-size-mb"},
		{"empty storage dir", func(c *Config) { c.Storage.Dir = "" }, "storage-dir"},
		{"zero history limit", func(c *Config) { c.History.Limit = 0 }, "history-limit"},
		{"no languages", func(c *Config) { c.OCR.Languages = nil }, "ocr-languages"},
		{"unknown backend", func(c *Config) { c.OCR.RemoteBackend = "watson" }, "ocr-remote-backend"},
		{"temperature too high", func(c *Config) { c.OCR.LLM.Temperature = 3 }, "llm-temperature"},
		{"negative retries", func(c *Config) { c.OCR.LLM.MaxRetries = -1 }, "llm-max-retries"},
		{"zero font size", func(c *Config) { c.Document.FontSize = 0 }, "font-size"},
		{"negative margin", func(c *Config) { c.Document.Margin = -1 }, "page-margin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Normalizes(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.ClientOrigins = nil
	cfg.Server.PublicURL = "https://files.example/"
	cfg.OCR.RemoteBackend = "OpenAI"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.Server.ClientOrigins, []string{"*"}) {
		t.Errorf("expected origins to default to *, got %v", cfg.Server.ClientOrigins)
	}
	if cfg.Server.PublicURL != "https://files.example" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Server.PublicURL)
	}
	if cfg.OCR.RemoteBackend != "openai" {
		t.Errorf("expected lowercased backend, got %s", cfg.OCR.RemoteBackend)
	}
}

func TestValidate_HomeDirectoryExpansion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := validConfig(t)
	cfg.Storage.Dir = "~/results"
	cfg.History.File = "~/history.json"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Storage.Dir != filepath.Join(home, "results") {
		t.Errorf("expected expanded storage dir, got %s", cfg.Storage.Dir)
	}
	if cfg.History.File != filepath.Join(home, "history.json") {
		t.Errorf("expected expanded history file, got %s", cfg.History.File)
	}
}

func TestRemoteConfigured(t *testing.T) {
	tests := []struct {
		name string
		ocr  OCRConfig
		want bool
	}{
		{"disabled", OCRConfig{RemoteEnabled: false, RemoteBackend: "ollama"}, false},
		{"api4ai without key", OCRConfig{RemoteEnabled: true, RemoteBackend: "api4ai"}, false},
		{"api4ai with key", OCRConfig{RemoteEnabled: true, RemoteBackend: "api4ai", API4AI: API4AIConfig{Key: "k"}}, true},
		{"ollama", OCRConfig{RemoteEnabled: true, RemoteBackend: "ollama"}, true},
		{"openai without key", OCRConfig{RemoteEnabled: true, RemoteBackend: "openai"}, false},
		{"google with key", OCRConfig{RemoteEnabled: true, RemoteBackend: "google", LLM: LLMConfig{APIKey: "g"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ocr.RemoteConfigured(); got != tt.want {
				t.Errorf("RemoteConfigured() = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := validConfig(t)
	cfg.OCR.API4AI.Key = "rapid-secret-abcd"
	cfg.OCR.LLM.APIKey = "sk-test-1234567890"
	cfg.History.DatabaseURL = "postgres://user:hunter2@db/app"

	str := cfg.String()

	for _, secret := range []string{"rapid-secret", "sk-test-123456", "hunter2"} {
		if strings.Contains(str, secret) {
			t.Errorf("String() leaked %q", secret)
		}
	}
	if !strings.Contains(str, "***abcd") || !strings.Contains(str, "***7890") {
		t.Error("String() should show the last four characters of keys")
	}
}

func TestString_NoSecrets(t *testing.T) {
	str := validConfig(t).String()
	if !strings.Contains(str, "not set") {
		t.Error("String() should indicate keys are not set")
	}
}

func TestLoad_KeychainSettings(t *testing.T) {
	isolate(t)
	t.Setenv("UTILITY_LLM_USE_KEYCHAIN", "true")
	t.Setenv("UTILITY_LLM_KEYCHAIN_SERVICE_PREFIX", "customprefix")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.OCR.LLM.UseKeychain {
		t.Error("expected UseKeychain = true")
	}
	if cfg.OCR.LLM.KeychainServicePrefix != "customprefix" {
		t.Errorf("expected prefix customprefix, got %s", cfg.OCR.LLM.KeychainServicePrefix)
	}
}

func TestLoadAPIKeyForBackend_EnvironmentVariables(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		envKey   string
		envValue string
		expected string
	}{
		{"OpenAI from env", "openai", "OPENAI_API_KEY", "sk-test-key", "sk-test-key"},
		{"Anthropic from env", "anthropic", "ANTHROPIC_API_KEY", "sk-ant-test", "sk-ant-test"},
		{"Google from env", "google", "GOOGLE_API_KEY", "google-key", "google-key"},
		{"Ollama no key needed", "ollama", "", "", ""},
		{"api4ai key lives elsewhere", "api4ai", "OPENAI_API_KEY", "sk-unused", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			if tt.envKey != "" {
				t.Setenv(tt.envKey, tt.envValue)
			}

			if got := loadAPIKeyForBackend(tt.backend, false, "utility-app"); got != tt.expected {
				t.Errorf("expected key %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestLoad_HostedBackendReadsKey(t *testing.T) {
	isolate(t)
	t.Setenv("UTILITY_OCR_REMOTE_BACKEND", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-xyz")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OCR.LLM.APIKey != "sk-ant-xyz" {
		t.Errorf("expected anthropic key loaded, got %q", cfg.OCR.LLM.APIKey)
	}
	if !cfg.OCR.RemoteConfigured() {
		t.Error("expected remote configured")
	}
}

func TestLoadFromKeychain_NonMacOS(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("Skipping non-macOS test on macOS platform")
	}

	if result := loadFromKeychain("openai", "utility-app"); result != "" {
		t.Errorf("expected empty string on non-macOS platform, got %q", result)
	}
}
