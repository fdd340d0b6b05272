package ocr

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Thangam2001/Utility-App/internal/logger"
)

// OpenAIVisionClient transcribes images with the chat completions API
type OpenAIVisionClient struct {
	client      openai.Client
	logger      *logger.Logger
	temperature float64
}

// NewOpenAIVisionClient creates a new OpenAI vision client. A non-empty
// baseURL points the client at a compatible gateway.
func NewOpenAIVisionClient(apiKey, baseURL string, temperature float64, maxRetries int, log *logger.Logger) *OpenAIVisionClient {
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

	return &OpenAIVisionClient{
		client:      openai.NewClient(opts...),
		logger:      log,
		temperature: temperature,
	}
}

// Transcribe sends the image inline as a data URL
func (o *OpenAIVisionClient) Transcribe(ctx context.Context, model string, img VisionImage) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(transcriptPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	o.logger.WithFields("model", model, "finish_reason", resp.Choices[0].FinishReason).Debug("OpenAI transcript received")
	return resp.Choices[0].Message.Content, nil
}

// Name returns the provider name
func (o *OpenAIVisionClient) Name() string {
	return string(ProviderOpenAI)
}
