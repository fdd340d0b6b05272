// Package media implements the raster image codec: format detection,
// decoding, descriptors, and the encoder table used by every transform.
package media

import (
	"strings"
)

// Format is a closed set of media formats understood by the pipeline.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatGIF  Format = "gif"
	FormatSVG  Format = "svg"

	// Document formats are handled by the converter package.
	FormatText Format = "txt"
	FormatPDF  Format = "pdf"
)

// ConversionTargets lists the formats Convert may produce.
// gif and svg are compression targets only.
var ConversionTargets = []Format{FormatPNG, FormatJPEG, FormatWebP, FormatBMP, FormatTIFF}

var aliases = map[string]Format{
	"png":  FormatPNG,
	"jpeg": FormatJPEG,
	"jpg":  FormatJPEG,
	"webp": FormatWebP,
	"bmp":  FormatBMP,
	"tiff": FormatTIFF,
	"tif":  FormatTIFF,
	"gif":  FormatGIF,
	"svg":  FormatSVG,
	"txt":  FormatText,
	"text": FormatText,
	"pdf":  FormatPDF,
}

var mimeTypes = map[Format]string{
	FormatPNG:  "image/png",
	FormatJPEG: "image/jpeg",
	FormatWebP: "image/webp",
	FormatBMP:  "image/bmp",
	FormatTIFF: "image/tiff",
	FormatGIF:  "image/gif",
	FormatSVG:  "image/svg+xml",
	FormatText: "text/plain",
	FormatPDF:  "application/pdf",
}

// NormalizeFormat maps a user-supplied format name, extension, or mime type
// to a Format. It returns "" when the name is not recognized.
func NormalizeFormat(name string) Format {
	s := strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.TrimPrefix(s, ".")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, "+xml")
	s = strings.TrimPrefix(s, "x-")
	if s == "plain" {
		return FormatText
	}
	return aliases[s]
}

func (f Format) String() string {
	return string(f)
}

// MimeType returns the canonical mime type, or application/octet-stream.
func (f Format) MimeType() string {
	if m, ok := mimeTypes[f]; ok {
		return m
	}
	return "application/octet-stream"
}

// Extension returns the file extension without a leading dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// IsDocument reports whether f is a paginated document or plain text format.
func (f Format) IsDocument() bool {
	return f == FormatText || f == FormatPDF
}

// IsConversionTarget reports whether Convert can produce f.
func (f Format) IsConversionTarget() bool {
	for _, t := range ConversionTargets {
		if t == f {
			return true
		}
	}
	return false
}
