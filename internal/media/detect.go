package media

import (
	"github.com/gabriel-vasile/mimetype"
)

// Detect sniffs the content of buf and returns its format, or "" when the
// content matches none of the known formats.
func Detect(buf []byte) Format {
	if len(buf) == 0 {
		return ""
	}
	return NormalizeFormat(mimetype.Detect(buf).String())
}

// DetectMime returns the sniffed mime type of buf without parameters.
func DetectMime(buf []byte) string {
	m := mimetype.Detect(buf).String()
	for i := 0; i < len(m); i++ {
		if m[i] == ';' {
			return m[:i]
		}
	}
	return m
}
