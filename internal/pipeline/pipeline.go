// Package pipeline runs one operation over an uploaded buffer: decode,
// transform, re-encode, and describe the before/after pair.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Thangam2001/Utility-App/internal/compress"
	"github.com/Thangam2001/Utility-App/internal/converter"
	"github.com/Thangam2001/Utility-App/internal/logger"
	"github.com/Thangam2001/Utility-App/internal/media"
	"github.com/Thangam2001/Utility-App/internal/ocr"
	"github.com/Thangam2001/Utility-App/internal/record"
	"github.com/Thangam2001/Utility-App/internal/transform"
)

// Upload is a received file.
type Upload struct {
	Data     []byte
	MimeType string
	FileName string
}

// Output is the produced buffer together with its transformation record.
type Output struct {
	Data     []byte
	Record   record.Record
	Duration time.Duration
}

// Format is the format of the produced buffer
func (o *Output) Format() media.Format {
	return o.Record.Result.Format
}

// MimeType is the content type of the produced buffer
func (o *Output) MimeType() string {
	if mt := o.Format().MimeType(); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// Extension is the file extension for the produced buffer, without the dot
func (o *Output) Extension() string {
	if ext := o.Format().Extension(); ext != "" {
		return ext
	}
	return "bin"
}

// Recognizer extracts text from an image. *ocr.Chain satisfies it.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte) (*ocr.Result, error)
}

// Processor coordinates the codec, transform, compression and recognition
// components for a single request. It holds no per-request state.
type Processor struct {
	logger     *logger.Logger
	converter  *converter.Converter
	compressor *compress.Engine
	recognizer Recognizer
}

// Config holds configuration for the processor
type Config struct {
	Logger     *logger.Logger
	Converter  *converter.Converter
	Compressor *compress.Engine
	Recognizer Recognizer
}

// New creates a new processor. Converter and Compressor default to
// instances with default settings; Recognizer is required.
func New(cfg *Config) (*Processor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}

	conv := cfg.Converter
	if conv == nil {
		var err error
		conv, err = converter.New(&converter.Config{Logger: log})
		if err != nil {
			return nil, fmt.Errorf("failed to create converter: %w", err)
		}
	}

	comp := cfg.Compressor
	if comp == nil {
		comp = compress.New(&compress.Config{Logger: log})
	}

	return &Processor{
		logger:     log,
		converter:  conv,
		compressor: comp,
		recognizer: cfg.Recognizer,
	}, nil
}

// Resize scales the upload and re-encodes it in its source format.
func (p *Processor) Resize(ctx context.Context, up Upload, width, height float64, keepAspect bool) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	img, original, err := media.Decode(up.Data)
	if err != nil {
		return nil, err
	}

	resized, err := transform.Resize(img, width, height, keepAspect)
	if err != nil {
		return nil, err
	}

	out, result, err := media.EncodeAndDescribe(resized, original.Format, media.EncodeOptions{})
	if err != nil {
		return nil, err
	}

	return p.finish(record.KindResize, up, out, original, result, map[string]interface{}{
		"width":           width,
		"height":          height,
		"keepAspectRatio": keepAspect,
	}, start), nil
}

// Crop extracts region from the upload and re-encodes it in its source
// format. The record carries both the requested region and the clamped area.
func (p *Processor) Crop(ctx context.Context, up Upload, region transform.Region) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	img, original, err := media.Decode(up.Data)
	if err != nil {
		return nil, err
	}

	cropped, area, err := transform.Crop(img, region)
	if err != nil {
		return nil, err
	}

	out, result, err := media.EncodeAndDescribe(cropped, original.Format, media.EncodeOptions{})
	if err != nil {
		return nil, err
	}

	return p.finish(record.KindCrop, up, out, original, result, map[string]interface{}{
		"left":   region.Left,
		"top":    region.Top,
		"width":  region.Width,
		"height": region.Height,
		"area":   area,
	}, start), nil
}

// Convert re-encodes the upload into target. Text and PDF uploads go through
// the document codec, everything else through the image codec.
func (p *Processor) Convert(ctx context.Context, up Upload, target string) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	var (
		out              []byte
		original, result media.Descriptor
		err              error
	)
	if converter.IsDocument(up.MimeType, up.FileName) {
		out, original, result, err = p.converter.Convert(up.Data, target)
	} else {
		out, original, result, err = media.Convert(up.Data, target)
	}
	if err != nil {
		return nil, err
	}

	return p.finish(record.KindConvert, up, out, original, result, map[string]interface{}{
		"targetFormat": string(media.NormalizeFormat(target)),
	}, start), nil
}

// Compress applies the per-format compression policy at quality.
func (p *Processor) Compress(ctx context.Context, up Upload, quality int) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	res, err := p.compressor.Compress(up.Data, up.MimeType, quality)
	if err != nil {
		return nil, err
	}

	return p.finish(record.KindCompress, up, res.Data, res.Original, res.Result, map[string]interface{}{
		"quality": res.Quality,
	}, start), nil
}

// Recognize extracts text from the upload through the recognizer.
func (p *Processor) Recognize(ctx context.Context, up Upload) (*ocr.Result, error) {
	log := p.logger.WithOperation(string(record.KindOCR)).WithFile(up.FileName)
	log.WithFields("size", len(up.Data)).Debug("Starting recognition")

	res, err := p.recognizer.Recognize(ctx, up.Data)
	if err != nil {
		return nil, err
	}

	log.WithFields("engine", res.Engine, "provider", res.Provider, "duration_ms", res.DurationMs).Info("Recognition finished")
	return res, nil
}

func (p *Processor) finish(kind record.Kind, up Upload, out []byte, original, result media.Descriptor, params map[string]interface{}, start time.Time) *Output {
	o := &Output{
		Data:     out,
		Record:   record.Build(original, result, kind, params),
		Duration: time.Since(start),
	}

	p.logger.WithOperation(string(kind)).WithFile(up.FileName).WithDuration(o.Duration).WithFields(
		"from", original.Format,
		"to", result.Format,
		"original_size", original.Size,
		"result_size", result.Size,
	).Info("Operation completed")

	return o
}
