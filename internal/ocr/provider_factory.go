package ocr

import (
	"context"
	"fmt"

	"github.com/Thangam2001/Utility-App/internal/config"
	"github.com/Thangam2001/Utility-App/internal/logger"
	"github.com/Thangam2001/Utility-App/internal/ollama"
)

// defaultModels holds the model used when none is configured
var defaultModels = map[ProviderType]string{
	ProviderOllama:    "llava",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-sonnet-20241022",
	ProviderGoogle:    "gemini-1.5-flash",
}

// keyEnv names the environment variable conventionally holding each hosted
// provider's API key.
var keyEnv = map[ProviderType]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderGoogle:    "GOOGLE_API_KEY",
}

// NewVisionClient creates the vision client for cfg.Provider
func NewVisionClient(ctx context.Context, cfg *VisionClientConfig, log *logger.Logger) (VisionClient, error) {
	if log == nil {
		log = logger.Get()
	}
	if env, hosted := keyEnv[cfg.Provider]; hosted && cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required (set %s)", cfg.Provider, env)
	}

	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaVisionClient(cfg.Endpoint, cfg.Temperature, cfg.MaxRetries, 0, log), nil
	case ProviderOpenAI:
		return NewOpenAIVisionClient(cfg.APIKey, cfg.Endpoint, cfg.Temperature, cfg.MaxRetries, log), nil
	case ProviderAnthropic:
		return NewAnthropicVisionClient(cfg.APIKey, cfg.Endpoint, cfg.Temperature, cfg.MaxRetries, log), nil
	case ProviderGoogle:
		client, err := NewGoogleVisionClient(ctx, cfg.APIKey, cfg.Endpoint, cfg.Temperature, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create google vision client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported vision provider %q", cfg.Provider)
	}
}

// ValidateProviderConfig checks cfg before any client is built
func ValidateProviderConfig(cfg *VisionClientConfig) error {
	if cfg == nil {
		return fmt.Errorf("vision client config is nil")
	}

	_, hosted := keyEnv[cfg.Provider]
	switch {
	case cfg.Provider == ProviderOllama:
		if cfg.Endpoint == "" {
			return fmt.Errorf("endpoint is required for the ollama provider")
		}
	case hosted:
		if cfg.APIKey == "" {
			return fmt.Errorf("API key is required for the %s provider", cfg.Provider)
		}
	default:
		return fmt.Errorf("invalid vision provider %q", cfg.Provider)
	}

	switch {
	case cfg.Model == "":
		return fmt.Errorf("model is required")
	case cfg.Temperature < 0 || cfg.Temperature > 2:
		return fmt.Errorf("temperature must be between 0 and 2, got %g", cfg.Temperature)
	case cfg.MaxRetries < 0:
		return fmt.Errorf("max retries must be non-negative, got %d", cfg.MaxRetries)
	}
	return nil
}

// GetDefaultModelForProvider returns the model used when none is configured,
// or "" for backends without models.
func GetDefaultModelForProvider(provider ProviderType) string {
	return defaultModels[provider]
}

// NewRemoteProvider builds the remote provider selected by cfg.RemoteBackend.
func NewRemoteProvider(ctx context.Context, cfg *config.OCRConfig, log *logger.Logger) (Provider, error) {
	backend := ProviderType(cfg.RemoteBackend)
	if backend == ProviderAPI4AI {
		return NewAPI4AIProvider(&API4AIConfig{
			Logger:   log,
			Endpoint: cfg.API4AI.Endpoint,
			Host:     cfg.API4AI.Host,
			Key:      cfg.API4AI.Key,
			Mode:     cfg.API4AI.Mode,
		}), nil
	}

	vcfg := &VisionClientConfig{
		Provider:    backend,
		Model:       cfg.LLM.Model,
		Endpoint:    cfg.LLM.Endpoint,
		APIKey:      cfg.LLM.APIKey,
		MaxRetries:  cfg.LLM.MaxRetries,
		Temperature: cfg.LLM.Temperature,
	}
	if vcfg.Model == "" {
		vcfg.Model = GetDefaultModelForProvider(backend)
	}
	if backend == ProviderOllama && vcfg.Endpoint == "" {
		vcfg.Endpoint = ollama.DefaultEndpoint
	}
	if err := ValidateProviderConfig(vcfg); err != nil {
		return nil, err
	}

	client, err := NewVisionClient(ctx, vcfg, log)
	if err != nil {
		return nil, err
	}
	return NewVisionProvider(client, vcfg.Model, log), nil
}

// NewChainFromConfig assembles the provider chain: the configured remote
// backend when it has what it needs, then Tesseract. A remote backend that
// cannot be built is logged and left out, so recognition still works locally.
func NewChainFromConfig(ctx context.Context, cfg *config.OCRConfig, log *logger.Logger) *Chain {
	if log == nil {
		log = logger.Get()
	}

	var providers []Provider
	if cfg.RemoteConfigured() {
		remote, err := NewRemoteProvider(ctx, cfg, log)
		if err != nil {
			log.WithError(err).WithFields("backend", cfg.RemoteBackend).Warn("Remote OCR backend unavailable, using local engine only")
		} else {
			providers = append(providers, remote)
		}
	} else if cfg.RemoteEnabled {
		log.WithFields("backend", cfg.RemoteBackend).Info("Remote OCR backend has no credentials, using local engine only")
	}

	providers = append(providers, NewTesseractProvider(&TesseractConfig{
		Logger:    log,
		Languages: cfg.Languages,
	}))

	chain := NewChain(&Config{Logger: log, Providers: providers})
	log.WithFields("providers", chain.Providers()).Debug("OCR chain ready")
	return chain
}
