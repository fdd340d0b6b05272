// Package ocr recognizes text in uploaded images through an ordered chain of
// providers: an optional remote service first, then the local Tesseract
// engine as the terminal fallback.
package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Thangam2001/Utility-App/internal/errors"
	"github.com/Thangam2001/Utility-App/internal/logger"
)

// Provider is one recognition strategy in the chain.
type Provider interface {
	// Name identifies the backend (api4ai, tesseract, openai, ...)
	Name() string

	// Kind reports whether the provider is remote or local
	Kind() ProviderKind

	// Recognize extracts text from raw image bytes. Text, Confidence and
	// WordCount are filled in; the chain stamps timing and provenance.
	Recognize(ctx context.Context, data []byte) (*Result, error)
}

// Chain tries its providers strictly in order. Remote failures are logged and
// swallowed; a local failure ends the chain with RecognitionFailed.
type Chain struct {
	providers []Provider
	logger    *logger.Logger
}

// Config holds configuration for the provider chain
type Config struct {
	Logger    *logger.Logger
	Providers []Provider
}

// NewChain creates a chain over the given providers
func NewChain(cfg *Config) *Chain {
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	return &Chain{
		providers: cfg.Providers,
		logger:    log,
	}
}

// Providers returns the engine names in attempt order
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Recognize runs the chain over data and returns the first successful result.
func (c *Chain) Recognize(ctx context.Context, data []byte) (*Result, error) {
	if len(c.providers) == 0 {
		return nil, apperrors.NewRecognitionFailed(fmt.Errorf("no recognition providers configured"))
	}

	var lastErr error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewRecognitionFailed(err)
		}

		log := c.logger.WithFields("engine", p.Name(), "provider", p.Kind(), "image_size", len(data))
		log.Debug("Starting recognition attempt")

		start := time.Now()
		res, err := p.Recognize(ctx, data)
		switch {
		case err != nil:
		case res == nil:
			err = fmt.Errorf("%s returned no result", p.Name())
		case p.Kind() == KindRemote && strings.TrimSpace(res.Text) == "":
			err = fmt.Errorf("%s returned no text", p.Name())
		}

		if err != nil {
			if p.Kind() == KindLocal {
				log.WithError(err).Error("Local recognition failed")
				return nil, apperrors.NewRecognitionFailed(err)
			}
			log.WithError(err).Warn("Remote recognition failed, falling back")
			lastErr = err
			continue
		}

		res.Text = strings.TrimSpace(res.Text)
		res.DurationMs = time.Since(start).Milliseconds()
		res.Provider = p.Kind()
		res.Engine = p.Name()

		log.WithFields("duration_ms", res.DurationMs, "chars", len(res.Text)).Info("Recognition completed")
		return res, nil
	}

	return nil, apperrors.NewRecognitionFailed(lastErr)
}
