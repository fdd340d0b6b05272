package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Thangam2001/Utility-App/internal/logger"
)

// GoogleVisionClient transcribes images with a Gemini model
type GoogleVisionClient struct {
	client      *genai.Client
	logger      *logger.Logger
	temperature float64
}

// NewGoogleVisionClient creates a new Gemini vision client. A non-empty
// endpoint overrides the API host.
func NewGoogleVisionClient(ctx context.Context, apiKey, endpoint string, temperature float64, log *logger.Logger) (*GoogleVisionClient, error) {
	if log == nil {
		log = logger.Get()
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GoogleVisionClient{
		client:      client,
		logger:      log,
		temperature: temperature,
	}, nil
}

// Transcribe asks for a JSON response so the reply needs no fence stripping
func (g *GoogleVisionClient) Transcribe(ctx context.Context, model string, img VisionImage) (string, error) {
	genModel := g.client.GenerativeModel(model)
	genModel.SetTemperature(float32(g.temperature))
	genModel.ResponseMIMEType = "application/json"

	resp, err := genModel.GenerateContent(ctx,
		genai.ImageData(strings.TrimPrefix(img.MimeType, "image/"), img.Data),
		genai.Text(transcriptPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from Gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text content in Gemini response")
	}

	g.logger.WithFields("model", model).Debug("Gemini transcript received")
	return sb.String(), nil
}

// Name returns the provider name
func (g *GoogleVisionClient) Name() string {
	return string(ProviderGoogle)
}

// Close closes the Gemini client
func (g *GoogleVisionClient) Close() error {
	return g.client.Close()
}
