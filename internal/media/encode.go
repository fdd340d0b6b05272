package media

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/jpegli"

	apperrors "github.com/Thangam2001/Utility-App/internal/errors"
)

// EncodeOptions tunes an encoder. Zero values select encoder defaults.
type EncodeOptions struct {
	// Quality is the lossy quality in [1,100] for jpeg and webp.
	Quality int

	// PNGCompression is the zlib effort for png.
	PNGCompression png.CompressionLevel

	// Lossless selects lossless webp.
	Lossless bool

	// GIFColors caps the gif palette size (default 256).
	GIFColors int

	// Progressive writes a progressive jpeg (SOF2) instead of baseline.
	Progressive bool

	// FullChroma keeps jpeg chroma at full resolution (4:4:4).
	FullChroma bool
}

// jpegliProgressiveLevel is jpegli's default progressive scan script.
const jpegliProgressiveLevel = 2

type encoderFunc func(w io.Writer, img image.Image, opts EncodeOptions) error

var encoders = map[Format]encoderFunc{
	FormatPNG: func(w io.Writer, img image.Image, opts EncodeOptions) error {
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(opts.PNGCompression))
	},
	FormatJPEG: func(w io.Writer, img image.Image, opts EncodeOptions) error {
		q := opts.Quality
		if q <= 0 {
			q = jpeg.DefaultQuality
		}
		if !opts.Progressive && !opts.FullChroma {
			return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(q))
		}
		return encodeJPEGli(w, img, q, opts)
	},
	FormatWebP: func(w io.Writer, img image.Image, opts EncodeOptions) error {
		q := opts.Quality
		if q <= 0 {
			q = 75
		}
		return webp.Encode(w, img, &webp.Options{Lossless: opts.Lossless, Quality: float32(q)})
	},
	FormatBMP: func(w io.Writer, img image.Image, _ EncodeOptions) error {
		return imaging.Encode(w, img, imaging.BMP)
	},
	FormatTIFF: func(w io.Writer, img image.Image, _ EncodeOptions) error {
		return imaging.Encode(w, img, imaging.TIFF)
	},
	FormatGIF: func(w io.Writer, img image.Image, opts EncodeOptions) error {
		n := opts.GIFColors
		if n <= 0 || n > 256 {
			n = 256
		}
		return imaging.Encode(w, img, imaging.GIF, imaging.GIFNumColors(n))
	},
}

// encodeJPEGli covers the jpeg settings image/jpeg cannot produce:
// progressive scans and unsubsampled chroma.
func encodeJPEGli(w io.Writer, img image.Image, quality int, opts EncodeOptions) error {
	ratio := image.YCbCrSubsampleRatio420
	if opts.FullChroma {
		ratio = image.YCbCrSubsampleRatio444
	}
	level := 0
	if opts.Progressive {
		level = jpegliProgressiveLevel
	}
	return jpegli.Encode(w, img, &jpegli.EncodingOptions{
		Quality:           quality,
		ChromaSubsampling: ratio,
		ProgressiveLevel:  level,
		OptimizeCoding:    true,
	})
}

// Encode writes img in the target format.
func Encode(img image.Image, target Format, opts EncodeOptions) ([]byte, error) {
	enc, ok := encoders[target]
	if !ok {
		return nil, apperrors.NewUnsupportedFormat(string(target))
	}
	var buf bytes.Buffer
	if err := enc(&buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeAndDescribe encodes img and returns the descriptor of the output
// buffer, computed by reading the buffer back.
func EncodeAndDescribe(img image.Image, target Format, opts EncodeOptions) ([]byte, Descriptor, error) {
	out, err := Encode(img, target, opts)
	if err != nil {
		return nil, Descriptor{}, err
	}
	desc, err := Describe(out)
	if err != nil {
		return nil, Descriptor{}, err
	}
	return out, desc, nil
}
