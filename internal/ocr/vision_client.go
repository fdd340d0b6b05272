package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Thangam2001/Utility-App/internal/logger"
	"github.com/Thangam2001/Utility-App/internal/media"
)

// transcriptPrompt is sent with every image to the LLM backends.
const transcriptPrompt = `Transcribe all text in this image, printed or handwritten, line by line in reading order.
Return ONLY valid JSON with no markdown formatting and no explanation:

{"lines": [{"text": "first line exactly as written", "confidence": 0.95}]}

Rules:
- one entry per visual line of text
- confidence is your certainty between 0.0 and 1.0
- return {"lines": []} when the image contains no text`

// VisionImage is the image sent to a vision model
type VisionImage struct {
	Data     []byte
	MimeType string
}

// VisionClient sends an image and the transcript prompt to a vision-capable
// model and returns the model's raw reply.
type VisionClient interface {
	Transcribe(ctx context.Context, model string, img VisionImage) (string, error)

	// Name returns the backend name (ollama, openai, anthropic, google)
	Name() string
}

// ProviderType represents the type of remote recognition backend
type ProviderType string

const (
	// ProviderAPI4AI represents the api4ai OCR service on RapidAPI
	ProviderAPI4AI ProviderType = "api4ai"

	// ProviderOllama represents a local Ollama instance
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI represents OpenAI's vision models
	ProviderOpenAI ProviderType = "openai"

	// ProviderAnthropic represents Anthropic's Claude API with vision
	ProviderAnthropic ProviderType = "anthropic"

	// ProviderGoogle represents Google's Gemini API
	ProviderGoogle ProviderType = "google"
)

// VisionClientConfig holds common configuration for all vision clients
type VisionClientConfig struct {
	Provider ProviderType

	// Model is the specific model to use (e.g., "llava", "gpt-4o", "gemini-1.5-pro")
	Model string

	// Endpoint is the API base URL. Required for Ollama; for hosted
	// backends it points the SDK at a compatible gateway.
	Endpoint string

	APIKey     string
	MaxRetries int

	// Temperature controls randomness (0.0 = deterministic, recommended for OCR)
	Temperature float64
}

// transcriptLine is one line of a model transcript
type transcriptLine struct {
	Text       string
	Confidence float64 // 0..1, negative when the model gave none
}

// VisionProvider adapts a VisionClient into a remote chain provider.
type VisionProvider struct {
	client VisionClient
	model  string
	logger *logger.Logger
}

// NewVisionProvider wraps client so it can sit in a Chain
func NewVisionProvider(client VisionClient, model string, log *logger.Logger) *VisionProvider {
	if log == nil {
		log = logger.Get()
	}
	return &VisionProvider{client: client, model: model, logger: log}
}

// Name returns the backend name
func (p *VisionProvider) Name() string {
	return p.client.Name()
}

// Kind reports the provider as remote
func (p *VisionProvider) Kind() ProviderKind {
	return KindRemote
}

// Recognize sends the image to the vision model and normalizes the
// transcript: one output line per transcript line, confidence averaged and
// scaled to 0-100, words counted over all lines.
func (p *VisionProvider) Recognize(ctx context.Context, data []byte) (*Result, error) {
	img, err := visionPayload(data)
	if err != nil {
		return nil, err
	}

	reply, err := p.client.Transcribe(ctx, p.model, img)
	if err != nil {
		return nil, err
	}

	lines, err := parseTranscript(reply)
	if err != nil {
		p.logger.WithFields("engine", p.client.Name(), "reply", reply).Debug("Unparseable transcript")
		return nil, err
	}

	res := summarizeTranscript(lines)
	if res.Text == "" {
		return nil, fmt.Errorf("%s returned no text", p.client.Name())
	}

	p.logger.WithFields("engine", p.client.Name(), "model", p.model, "lines", len(lines)).Debug("Vision model read image")
	return res, nil
}

// visionPayload returns the image sent to the model. The hosted APIs accept
// png, jpeg, gif and webp; anything else is transcoded to png.
func visionPayload(data []byte) (VisionImage, error) {
	switch f := media.Detect(data); f {
	case media.FormatPNG, media.FormatJPEG, media.FormatGIF, media.FormatWebP:
		return VisionImage{Data: data, MimeType: f.MimeType()}, nil
	}

	img, _, err := media.Decode(data)
	if err != nil {
		return VisionImage{}, err
	}
	out, err := media.Encode(img, media.FormatPNG, media.EncodeOptions{})
	if err != nil {
		return VisionImage{}, err
	}
	return VisionImage{Data: out, MimeType: media.FormatPNG.MimeType()}, nil
}

// parseTranscript reads a model reply that is either {"lines": [...]} or a
// bare array of lines. Markdown code fences around the JSON are tolerated,
// as are plain string entries.
func parseTranscript(reply string) ([]transcriptLine, error) {
	s := stripFence(reply)
	if !gjson.Valid(s) {
		return nil, fmt.Errorf("transcript is not JSON")
	}

	doc := gjson.Parse(s)
	list := doc
	if doc.IsObject() {
		list = doc.Get("lines")
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("transcript has no lines array")
	}

	var lines []transcriptLine
	list.ForEach(func(_, entry gjson.Result) bool {
		line := transcriptLine{Confidence: -1}
		if entry.Type == gjson.String {
			line.Text = entry.String()
		} else {
			line.Text = entry.Get("text").String()
			if c := entry.Get("confidence"); c.Exists() {
				line.Confidence = c.Float()
			}
		}
		lines = append(lines, line)
		return true
	})
	return lines, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func summarizeTranscript(lines []transcriptLine) *Result {
	texts := make([]string, 0, len(lines))
	count := 0
	var sum float64
	scored := 0

	for _, l := range lines {
		text := collapseSpace(l.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		count += countWords(text)
		if l.Confidence >= 0 {
			sum += l.Confidence
			scored++
		}
	}

	res := &Result{
		Text:       strings.Join(texts, "\n"),
		Confidence: scoreFromUnit(sum, scored),
	}
	if count > 0 {
		res.WordCount = &count
	}
	return res
}
