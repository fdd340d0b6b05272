package media

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	apperrors "github.com/Thangam2001/Utility-App/internal/errors"
)

// MaxPixels is the largest surface, in pixels, that is decoded or produced.
// It matches a 16383 x 16383 image.
const MaxPixels = 16383 * 16383

// Default intrinsic size of an SVG with neither width/height nor a viewBox.
const (
	defaultSVGWidth  = 300
	defaultSVGHeight = 150
)

// Decode parses buf into a raster surface and returns the descriptor of the
// input buffer. Headers declaring more than MaxPixels are rejected before the
// pixel data is read. SVG is recognized but has no raster surface; it yields
// UnsupportedFormat so only the compression engine handles it.
func Decode(buf []byte) (image.Image, Descriptor, error) {
	format := Detect(buf)
	if format == FormatSVG {
		return nil, Descriptor{}, apperrors.NewUnsupportedFormat(string(FormatSVG))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return nil, Descriptor{}, apperrors.NewUnreadableImage(err)
	}
	if float64(cfg.Width)*float64(cfg.Height) > MaxPixels {
		return nil, Descriptor{}, apperrors.NewUnreadableImage(
			fmt.Errorf("%dx%d exceeds the limit of %d pixels", cfg.Width, cfg.Height, MaxPixels))
	}

	img, name, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, Descriptor{}, apperrors.NewUnreadableImage(err)
	}

	b := img.Bounds()
	return img, Descriptor{
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: NormalizeFormat(name),
		Size:   len(buf),
	}, nil
}

// Describe computes the descriptor of an encoded image buffer, including SVG.
func Describe(buf []byte) (Descriptor, error) {
	if Detect(buf) == FormatSVG {
		w, h, err := svgSize(buf)
		if err != nil {
			return Descriptor{}, apperrors.NewUnreadableImage(err)
		}
		return Descriptor{Width: w, Height: h, Format: FormatSVG, Size: len(buf)}, nil
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return Descriptor{}, apperrors.NewUnreadableImage(err)
	}
	return Descriptor{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: NormalizeFormat(name),
		Size:   len(buf),
	}, nil
}

// svgSize reads the intrinsic size from the root element: width/height
// attributes first, then the viewBox.
func svgSize(buf []byte) (int, int, error) {
	dec := xml.NewDecoder(bytes.NewReader(buf))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return 0, 0, io.ErrUnexpectedEOF
		}
		if err != nil {
			return 0, 0, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "svg" {
			continue
		}

		var width, height, vbW, vbH float64
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "width":
				width = parseLength(a.Value)
			case "height":
				height = parseLength(a.Value)
			case "viewBox":
				f := strings.FieldsFunc(a.Value, func(r rune) bool { return r == ' ' || r == ',' })
				if len(f) == 4 {
					vbW, _ = strconv.ParseFloat(f[2], 64)
					vbH, _ = strconv.ParseFloat(f[3], 64)
				}
			}
		}

		switch {
		case width > 0 && height > 0:
		case vbW > 0 && vbH > 0 && width > 0:
			height = width * vbH / vbW
		case vbW > 0 && vbH > 0 && height > 0:
			width = height * vbW / vbH
		case vbW > 0 && vbH > 0:
			width, height = vbW, vbH
		default:
			width, height = defaultSVGWidth, defaultSVGHeight
		}
		return int(math.Round(width)), int(math.Round(height)), nil
	}
}

// parseLength parses an absolute SVG length such as "120", "120px" or
// "1.5in". Percentages and unknown units yield 0.
func parseLength(v string) float64 {
	v = strings.TrimSpace(v)
	units := map[string]float64{"px": 1, "pt": 4.0 / 3.0, "pc": 16, "mm": 96 / 25.4, "cm": 96 / 2.54, "in": 96}
	scale := 1.0
	for suffix, s := range units {
		if strings.HasSuffix(v, suffix) {
			v = strings.TrimSuffix(v, suffix)
			scale = s
			break
		}
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || n <= 0 {
		return 0
	}
	return n * scale
}
