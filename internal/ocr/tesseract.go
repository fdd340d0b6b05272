package ocr

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/Thangam2001/Utility-App/internal/logger"
)

const tesseractEngine = "tesseract"

var (
	bboxPattern = regexp.MustCompile(`bbox\s+(\d+)\s+(\d+)\s+(\d+)\s+(\d+)`)
	confPattern = regexp.MustCompile(`x_wconf\s+(\d+(?:\.\d+)?)`)
)

// engineFunc runs an OCR engine over image bytes and returns its plain text
// and hOCR renditions.
type engineFunc func(data []byte, languages []string) (text string, hocr string, err error)

// TesseractProvider is the local terminal provider backed by libtesseract.
type TesseractProvider struct {
	logger    *logger.Logger
	languages []string
	run       engineFunc
}

// TesseractConfig holds configuration for the Tesseract provider
type TesseractConfig struct {
	Logger    *logger.Logger
	Languages []string // Tesseract language codes (default: ["eng"])
}

// NewTesseractProvider creates a new Tesseract provider
func NewTesseractProvider(cfg *TesseractConfig) *TesseractProvider {
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"eng"}
	}

	return &TesseractProvider{
		logger:    log,
		languages: languages,
		run:       runGosseract,
	}
}

// Name returns the engine name
func (p *TesseractProvider) Name() string {
	return tesseractEngine
}

// Kind reports the provider as local
func (p *TesseractProvider) Kind() ProviderKind {
	return KindLocal
}

// Languages returns the configured language codes
func (p *TesseractProvider) Languages() []string {
	return p.languages
}

// Recognize runs Tesseract over the image. An image without text yields an
// empty result rather than an error.
func (p *TesseractProvider) Recognize(ctx context.Context, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.WithFields("image_size", len(data), "languages", strings.Join(p.languages, "+")).Debug("Running tesseract")

	text, hocr, err := p.run(data, p.languages)
	if err != nil {
		return nil, err
	}

	words, err := parseHOCR(hocr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HOCR: %w", err)
	}

	res := summarizeWords(words)
	res.Text = strings.TrimSpace(text)
	return res, nil
}

func runGosseract(data []byte, languages []string) (string, string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(languages...); err != nil {
		return "", "", fmt.Errorf("failed to set OCR language: %w", err)
	}

	if err := client.SetImageFromBytes(data); err != nil {
		return "", "", fmt.Errorf("failed to set image data: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", "", fmt.Errorf("failed to get text: %w", err)
	}

	hocr, err := client.HOCRText()
	if err != nil {
		return "", "", fmt.Errorf("failed to get HOCR text: %w", err)
	}

	return text, hocr, nil
}

// parseHOCR extracts the words of an hOCR document in reading order.
func parseHOCR(hocr string) ([]Word, error) {
	if strings.TrimSpace(hocr) == "" {
		return nil, nil
	}

	dec := xml.NewDecoder(bytes.NewReader([]byte(hocr)))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var page hocrPage
	if err := dec.Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal HOCR XML: %w", err)
	}

	var words []Word
	for _, pageDiv := range page.Body.Pages {
		for _, area := range pageDiv.Areas {
			for _, par := range area.Pars {
				for _, line := range par.Lines {
					for _, word := range line.Words {
						text := strings.TrimSpace(word.text())
						if text == "" {
							continue
						}
						var rect Rectangle
						if bbox := extractBBox(word.Title); len(bbox) == 4 {
							rect = NewRectangle(bbox[0], bbox[1], bbox[2]-bbox[0], bbox[3]-bbox[1])
						}
						words = append(words, Word{
							Text:        text,
							BoundingBox: rect,
							Confidence:  extractConfidence(word.Title),
						})
					}
				}
			}
		}
	}

	return words, nil
}

// extractBBox extracts bounding box coordinates from an hOCR title attribute.
// Format: "bbox x0 y0 x1 y1; x_wconf 95"
func extractBBox(title string) []int {
	matches := bboxPattern.FindStringSubmatch(title)
	if len(matches) != 5 {
		return nil
	}

	bbox := make([]int, 4)
	for i := 0; i < 4; i++ {
		val, err := strconv.Atoi(matches[i+1])
		if err != nil {
			return nil
		}
		bbox[i] = val
	}

	return bbox
}

// extractConfidence extracts the x_wconf score, or -1 when absent.
func extractConfidence(title string) float64 {
	matches := confPattern.FindStringSubmatch(title)
	if len(matches) != 2 {
		return -1
	}

	conf, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return -1
	}

	return conf
}

type hocrPage struct {
	XMLName xml.Name `xml:"html"`
	Body    hocrBody `xml:"body"`
}

type hocrBody struct {
	Pages []hocrPageDiv `xml:"div"`
}

type hocrPageDiv struct {
	Title string     `xml:"title,attr"`
	Areas []hocrArea `xml:"div"`
}

type hocrArea struct {
	Pars []hocrPar `xml:"p"`
}

type hocrPar struct {
	Lines []hocrLine `xml:"span"`
}

type hocrLine struct {
	Words []hocrWord `xml:"span"`
}

// hocrWord is an ocrx_word span. Older Tesseract builds wrap styled words in
// <strong> or <em>, so nested elements contribute their text too.
type hocrWord struct {
	Title  string      `xml:"title,attr"`
	Text   string      `xml:",chardata"`
	Styled []hocrInner `xml:",any"`
}

type hocrInner struct {
	Text   string      `xml:",chardata"`
	Styled []hocrInner `xml:",any"`
}

func (w hocrWord) text() string {
	var b strings.Builder
	b.WriteString(w.Text)
	for _, s := range w.Styled {
		s.write(&b)
	}
	return b.String()
}

func (in hocrInner) write(b *strings.Builder) {
	b.WriteString(in.Text)
	for _, s := range in.Styled {
		s.write(b)
	}
}
