package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Thangam2001/Utility-App/internal/logger"
)

// anthropicMaxTokens bounds the transcript length
const anthropicMaxTokens = 4096

// AnthropicVisionClient transcribes images with the Claude messages API
type AnthropicVisionClient struct {
	client      anthropic.Client
	logger      *logger.Logger
	temperature float64
}

// NewAnthropicVisionClient creates a new Anthropic vision client
func NewAnthropicVisionClient(apiKey, baseURL string, temperature float64, maxRetries int, log *logger.Logger) *AnthropicVisionClient {
	if log == nil {
		log = logger.Get()
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if maxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(maxRetries))
	}

	return &AnthropicVisionClient{
		client:      anthropic.NewClient(opts...),
		logger:      log,
		temperature: temperature,
	}
}

// Transcribe sends the image as a base64 image block followed by the prompt.
// Text blocks of the reply are concatenated.
func (a *AnthropicVisionClient) Transcribe(ctx context.Context, model string, img VisionImage) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(img.MimeType, base64.StdEncoding.EncodeToString(img.Data)),
				anthropic.NewTextBlock(transcriptPrompt),
			),
		},
		Temperature: anthropic.Float(a.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text content in Anthropic response")
	}

	a.logger.WithFields("model", model, "stop_reason", resp.StopReason).Debug("Anthropic transcript received")
	return sb.String(), nil
}

// Name returns the provider name
func (a *AnthropicVisionClient) Name() string {
	return string(ProviderAnthropic)
}
