// Package compress reduces encoded image size under a quality budget.
package compress

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/png"
	"time"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"

	apperrors "github.com/Thangam2001/Utility-App/internal/errors"
	"github.com/Thangam2001/Utility-App/internal/logger"
	"github.com/Thangam2001/Utility-App/internal/media"
)

const (
	// DefaultQuality is used by callers when no quality is supplied.
	DefaultQuality = 75

	// highQuality is the threshold for the gentler png/gif settings.
	highQuality = 90

	maxSVGPasses = 10
)

// Result is the output of a compression run.
type Result struct {
	Data     []byte
	Original media.Descriptor
	Result   media.Descriptor
	Quality  int
}

type compressFunc func(e *Engine, buf []byte, quality int) ([]byte, error)

// policies maps each compressible format to its strategy.
var policies = map[media.Format]compressFunc{
	media.FormatJPEG: (*Engine).compressJPEG,
	media.FormatPNG:  (*Engine).compressPNG,
	media.FormatWebP: (*Engine).compressWebP,
	media.FormatGIF:  (*Engine).compressGIF,
	media.FormatSVG:  (*Engine).compressSVG,
}

// Engine applies the per-format compression policy.
type Engine struct {
	logger *logger.Logger
	minify *minify.M
}

// Config holds configuration for the Engine.
type Config struct {
	Logger *logger.Logger
}

// New creates an Engine.
func New(cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	m := minify.New()
	m.AddFunc("image/svg+xml", svg.Minify)

	return &Engine{logger: log, minify: m}
}

// ClampQuality forces q into [1,100].
func ClampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// Compress re-encodes buf at the given quality. The format is sniffed from
// the content; mimeHint is only consulted when sniffing finds no image format.
func (e *Engine) Compress(buf []byte, mimeHint string, quality int) (*Result, error) {
	quality = ClampQuality(quality)
	format := resolveFormat(buf, mimeHint)

	policy, ok := policies[format]
	if !ok {
		name := string(format)
		if name == "" {
			name = mimeHint
		}
		return nil, apperrors.NewUnsupportedCompressionFormat(name)
	}

	original, err := media.Describe(buf)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := policy(e, buf, quality)
	if err != nil {
		return nil, err
	}

	result, err := media.Describe(out)
	if err != nil {
		return nil, err
	}

	e.logger.WithDuration(time.Since(start)).WithFields(
		"format", format,
		"quality", quality,
		"original_size", original.Size,
		"compressed_size", result.Size,
	).Debug("Compressed image")

	return &Result{Data: out, Original: original, Result: result, Quality: quality}, nil
}

func resolveFormat(buf []byte, mimeHint string) media.Format {
	detected := media.Detect(buf)
	if detected != "" && !detected.IsDocument() {
		return detected
	}
	return media.NormalizeFormat(mimeHint)
}

// compressJPEG re-encodes progressively with 4:4:4 chroma at the given quality.
func (e *Engine) compressJPEG(buf []byte, quality int) ([]byte, error) {
	img, _, err := media.Decode(buf)
	if err != nil {
		return nil, err
	}
	return media.Encode(img, media.FormatJPEG, media.EncodeOptions{
		Quality:     quality,
		Progressive: true,
		FullChroma:  true,
	})
}

func (e *Engine) compressWebP(buf []byte, quality int) ([]byte, error) {
	img, _, err := media.Decode(buf)
	if err != nil {
		return nil, err
	}
	return media.Encode(img, media.FormatWebP, media.EncodeOptions{Quality: quality})
}

// compressPNG quantizes to a 256 color palette. Quality only selects the
// zlib effort; palette fidelity does not depend on it.
func (e *Engine) compressPNG(buf []byte, quality int) ([]byte, error) {
	img, _, err := media.Decode(buf)
	if err != nil {
		return nil, err
	}

	level := png.DefaultCompression
	if quality >= highQuality {
		level = png.BestCompression
	}

	pal := quantize(img, 256, draw.FloydSteinberg)

	var out bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(&out, pal); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// compressGIF requantizes every frame. High quality keeps 256 colors with
// dithering; otherwise frames drop to 128 colors without dithering and
// consecutive identical frames are merged.
func (e *Engine) compressGIF(buf []byte, quality int) ([]byte, error) {
	anim, err := gif.DecodeAll(bytes.NewReader(buf))
	if err != nil {
		return nil, apperrors.NewUnreadableImage(err)
	}

	colors := 128
	var drawer draw.Drawer = draw.Src
	if quality >= highQuality {
		colors = 256
		drawer = draw.FloydSteinberg
	}

	for i, frame := range anim.Image {
		if len(frame.Palette) > colors {
			anim.Image[i] = quantize(frame, colors, drawer)
		}
	}
	if quality < highQuality {
		mergeDuplicateFrames(anim)
	}

	var out bytes.Buffer
	if err := gif.EncodeAll(&out, anim); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// compressSVG minifies until a pass no longer shrinks the document.
func (e *Engine) compressSVG(buf []byte, _ int) ([]byte, error) {
	current := buf
	for pass := 0; pass < maxSVGPasses; pass++ {
		next, err := e.minify.Bytes("image/svg+xml", current)
		if err != nil {
			return nil, apperrors.NewUnreadableImage(err)
		}
		if len(next) >= len(current) {
			break
		}
		current = next
	}
	return current, nil
}

func quantize(img image.Image, colors int, drawer draw.Drawer) *image.Paletted {
	b := img.Bounds()
	pal := medianCut{}.Quantize(make(color.Palette, 0, colors), img)
	dst := image.NewPaletted(b, pal)
	drawer.Draw(dst, b, img, b.Min)
	return dst
}

// mergeDuplicateFrames folds frames identical to their predecessor into it,
// summing delays.
func mergeDuplicateFrames(anim *gif.GIF) {
	if len(anim.Image) < 2 {
		return
	}

	images := anim.Image[:1]
	delays := anim.Delay[:1]
	var disposal []byte
	if len(anim.Disposal) == len(anim.Image) {
		disposal = anim.Disposal[:1]
	}

	for i := 1; i < len(anim.Image); i++ {
		last := len(images) - 1
		if sameFrame(images[last], anim.Image[i]) {
			delays[last] += anim.Delay[i]
			continue
		}
		images = append(images, anim.Image[i])
		delays = append(delays, anim.Delay[i])
		if disposal != nil {
			disposal = append(disposal, anim.Disposal[i])
		}
	}

	anim.Image = images
	anim.Delay = delays
	if disposal != nil {
		anim.Disposal = disposal
	}
}

func sameFrame(a, b *image.Paletted) bool {
	if a.Rect != b.Rect || len(a.Palette) != len(b.Palette) || !bytes.Equal(a.Pix, b.Pix) {
		return false
	}
	for i := range a.Palette {
		if a.Palette[i] != b.Palette[i] {
			return false
		}
	}
	return true
}
