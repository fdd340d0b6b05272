// Package converter implements the document codec: plain text to paginated
// PDF and back.
package converter

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	apperrors "github.com/Thangam2001/Utility-App/internal/errors"
	"github.com/Thangam2001/Utility-App/internal/logger"
	"github.com/Thangam2001/Utility-App/internal/media"
)

var disableConfigDir sync.Once

// Converter converts between text and PDF documents
type Converter struct {
	logger *logger.Logger
	layout Layout
}

// Config holds configuration for the converter
type Config struct {
	Logger *logger.Logger

	// Layout overrides DefaultLayout when set
	Layout *Layout
}

// New creates a new converter instance
func New(cfg *Config) (*Converter, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	layout := DefaultLayout()
	if cfg.Layout != nil {
		layout = *cfg.Layout
	}
	if !layout.valid() {
		return nil, fmt.Errorf("invalid page layout %+v", layout)
	}

	// pdfcpu otherwise creates a config directory under the user's home
	disableConfigDir.Do(api.DisableConfigDir)

	return &Converter{
		logger: log,
		layout: layout,
	}, nil
}

// Layout returns the page layout used for text rendering
func (c *Converter) Layout() Layout {
	return c.layout
}

// IsDocument reports whether an upload should go through the document codec,
// judged by its declared mime type or file name.
func IsDocument(mimeType, fileName string) bool {
	mimeType = strings.ToLower(mimeType)
	name := strings.ToLower(fileName)
	return mimeType == "text/plain" || mimeType == "application/pdf" ||
		strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".pdf")
}

// Convert dispatches on the target: "pdf" renders buf as UTF-8 text, "txt"
// extracts the text of the PDF in buf. Other targets are UnsupportedFormat.
// It returns the output and the descriptors of input and output.
func (c *Converter) Convert(buf []byte, target string) ([]byte, media.Descriptor, media.Descriptor, error) {
	var (
		out      []byte
		original media.Descriptor
		err      error
	)

	switch media.NormalizeFormat(target) {
	case media.FormatPDF:
		original = media.Descriptor{Format: media.FormatText, Size: len(buf)}
		out, err = c.TextToDocument(string(buf))
	case media.FormatText:
		original, err = c.Describe(buf)
		if err != nil {
			return nil, media.Descriptor{}, media.Descriptor{}, err
		}
		var text string
		text, err = c.DocumentToText(buf)
		out = []byte(text)
	default:
		return nil, media.Descriptor{}, media.Descriptor{}, apperrors.NewUnsupportedFormat(target)
	}
	if err != nil {
		return nil, media.Descriptor{}, media.Descriptor{}, err
	}

	result, err := c.Describe(out)
	if err != nil {
		return nil, media.Descriptor{}, media.Descriptor{}, err
	}

	c.logger.WithFields(
		"from", original.Format,
		"to", result.Format,
		"input_size", original.Size,
		"output_size", result.Size,
		"pages", max(original.Pages, result.Pages),
	).Debug("Converted document")

	return out, original, result, nil
}

// Describe returns the descriptor of a document buffer. PDF descriptors carry
// the page count and the first page size in points; anything else is
// described as plain text.
func (c *Converter) Describe(buf []byte) (media.Descriptor, error) {
	if media.Detect(buf) != media.FormatPDF {
		return media.Descriptor{Format: media.FormatText, Size: len(buf)}, nil
	}

	ctx, err := readContext(buf)
	if err != nil {
		return media.Descriptor{}, err
	}

	desc := media.Descriptor{Format: media.FormatPDF, Size: len(buf), Pages: ctx.PageCount}
	if ctx.PageCount > 0 {
		_, _, inherited, err := ctx.PageDict(1, false)
		if err == nil && inherited != nil && inherited.MediaBox != nil {
			desc.Width = int(math.Round(inherited.MediaBox.Width()))
			desc.Height = int(math.Round(inherited.MediaBox.Height()))
		}
	}
	return desc, nil
}

// readContext parses and validates a PDF. Any failure is UnreadableDocument.
func readContext(buf []byte) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(buf), conf)
	if err != nil {
		return nil, apperrors.NewUnreadableDocument(err)
	}
	return ctx, nil
}
