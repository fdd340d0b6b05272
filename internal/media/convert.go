package media

import (
	"image/png"

	apperrors "github.com/Thangam2001/Utility-App/internal/errors"
)

// conversionOptions holds the encoder settings used when converting.
// Conversions favour fidelity; size reduction is the compression engine's job.
var conversionOptions = map[Format]EncodeOptions{
	FormatJPEG: {Quality: 100},
	FormatPNG:  {PNGCompression: png.BestSpeed},
	FormatWebP: {Quality: 100},
}

// Convert re-encodes buf into the target format. Only ConversionTargets are
// accepted. It returns the output and the descriptors of input and output.
func Convert(buf []byte, target string) ([]byte, Descriptor, Descriptor, error) {
	format := NormalizeFormat(target)
	if !format.IsConversionTarget() {
		return nil, Descriptor{}, Descriptor{}, apperrors.NewUnsupportedFormat(target)
	}

	img, original, err := Decode(buf)
	if err != nil {
		return nil, Descriptor{}, Descriptor{}, err
	}

	out, result, err := EncodeAndDescribe(img, format, conversionOptions[format])
	if err != nil {
		return nil, Descriptor{}, Descriptor{}, err
	}
	return out, original, result, nil
}
