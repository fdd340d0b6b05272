package ocr

import (
	"context"
	"time"

	"github.com/Thangam2001/Utility-App/internal/logger"
	"github.com/Thangam2001/Utility-App/internal/ollama"
)

// OllamaVisionClient transcribes images with a vision model served by Ollama
type OllamaVisionClient struct {
	client *ollama.Client
}

// NewOllamaVisionClient creates a new Ollama vision client. A negative
// maxRetries keeps the client default.
func NewOllamaVisionClient(endpoint string, temperature float64, maxRetries int, timeout time.Duration, log *logger.Logger) *OllamaVisionClient {
	return &OllamaVisionClient{client: ollama.New(ollama.Config{
		Endpoint:    endpoint,
		Timeout:     timeout,
		MaxRetries:  maxRetries,
		Temperature: temperature,
		Logger:      log,
	})}
}

// Transcribe runs one non-streaming generate call in JSON mode. Ollama takes
// raw base64 images, so the MIME type is not sent.
func (o *OllamaVisionClient) Transcribe(ctx context.Context, model string, img VisionImage) (string, error) {
	resp, err := o.client.GenerateWithImages(ctx, model, transcriptPrompt, img.Data)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// Name returns the provider name
func (o *OllamaVisionClient) Name() string {
	return string(ProviderOllama)
}
