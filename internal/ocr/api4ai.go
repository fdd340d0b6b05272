package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Thangam2001/Utility-App/internal/logger"
)

const (
	// DefaultAPI4AIEndpoint is the RapidAPI results endpoint of the api4ai OCR service
	DefaultAPI4AIEndpoint = "https://ocr43.p.rapidapi.com/v1/results"

	// DefaultAPI4AIHost is the RapidAPI host header value
	DefaultAPI4AIHost = "ocr43.p.rapidapi.com"

	// DefaultAPI4AIMode is the recognition mode query parameter
	DefaultAPI4AIMode = "simple-text"

	// DefaultAPI4AITimeout bounds a single request to the service
	DefaultAPI4AITimeout = 30 * time.Second

	api4aiEngine = "api4ai"
)

// API4AIProvider calls the api4ai OCR service through RapidAPI.
type API4AIProvider struct {
	endpoint   string
	host       string
	key        string
	mode       string
	httpClient *http.Client
	logger     *logger.Logger
}

// API4AIConfig holds configuration for the api4ai provider
type API4AIConfig struct {
	Logger     *logger.Logger
	Endpoint   string
	Host       string
	Key        string
	Mode       string
	HTTPClient *http.Client
}

// NewAPI4AIProvider creates a new api4ai provider
func NewAPI4AIProvider(cfg *API4AIConfig) *API4AIProvider {
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultAPI4AIEndpoint
	}

	host := cfg.Host
	if host == "" {
		host = DefaultAPI4AIHost
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultAPI4AITimeout}
	}

	return &API4AIProvider{
		endpoint:   endpoint,
		host:       host,
		key:        cfg.Key,
		mode:       cfg.Mode,
		httpClient: client,
		logger:     log,
	}
}

// Name returns the engine name
func (p *API4AIProvider) Name() string {
	return api4aiEngine
}

// Kind reports the provider as remote
func (p *API4AIProvider) Kind() ProviderKind {
	return KindRemote
}

// Recognize uploads the image and flattens the response into a Result.
func (p *API4AIProvider) Recognize(ctx context.Context, data []byte) (*Result, error) {
	body, contentType, err := multipartImage(data)
	if err != nil {
		return nil, err
	}

	target, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid api4ai endpoint %q: %w", p.endpoint, err)
	}
	if p.mode != "" {
		q := target.Query()
		q.Set("mode", p.mode)
		target.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create api4ai request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-RapidAPI-Key", p.key)
	req.Header.Set("X-RapidAPI-Host", p.host)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api4ai request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read api4ai response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("api4ai request failed with status %d", resp.StatusCode)
	}

	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("api4ai returned invalid JSON")
	}

	res := flattenAPI4AI(gjson.ParseBytes(payload))
	if res.Text == "" {
		return nil, fmt.Errorf("api4ai returned no text")
	}

	p.logger.WithFields("lines", strings.Count(res.Text, "\n\n")+1).Debug("api4ai response flattened")
	return res, nil
}

func multipartImage(data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="upload-%d.bin"`, time.Now().UnixMilli()))
	header.Set("Content-Type", "application/octet-stream")

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write image part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// flattenAPI4AI walks results[].entities[].objects[].entities[] and collects
// one line per object. Only results whose status code is "ok" are read.
func flattenAPI4AI(payload gjson.Result) *Result {
	var lines []string
	words := 0
	var confSum float64
	confCount := 0

	for _, result := range payload.Get("results").Array() {
		if result.Get("status.code").String() != "ok" {
			continue
		}
		for _, entity := range result.Get("entities").Array() {
			for _, object := range entity.Get("objects").Array() {
				var fragments []string
				for _, inner := range object.Get("entities").Array() {
					if text := inner.Get("text"); text.Type == gjson.String && text.String() != "" {
						fragments = append(fragments, text.String())
						words += countWords(text.String())
					}
					if conf := inner.Get("confidence"); conf.Type == gjson.Number {
						confSum += conf.Float()
						confCount++
					}
				}
				if line := collapseSpace(strings.Join(fragments, " ")); line != "" {
					lines = append(lines, line)
				}
			}
		}
	}

	res := &Result{
		Text:       strings.TrimSpace(strings.Join(lines, "\n\n")),
		Confidence: scoreFromUnit(confSum, confCount),
	}
	if words > 0 {
		res.WordCount = &words
	}
	return res
}
