// Package errors defines the error kinds raised by the media pipeline.
//
// Every failure surfaced by a core component is an *Error carrying a Code.
// Callers branch on the code with errors.Is against the exported sentinels
// or with CodeOf.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies the kind of pipeline failure.
type Code string

const (
	CodeUnreadableImage              Code = "UNREADABLE_IMAGE"
	CodeUnsupportedFormat            Code = "UNSUPPORTED_FORMAT"
	CodeUnreadableDocument           Code = "UNREADABLE_DOCUMENT"
	CodeInvalidDimensions            Code = "INVALID_DIMENSIONS"
	CodeOutOfBounds                  Code = "OUT_OF_BOUNDS"
	CodeDegenerateCrop               Code = "DEGENERATE_CROP"
	CodeUnsupportedCompressionFormat Code = "UNSUPPORTED_COMPRESSION_FORMAT"
	CodeRecognitionFailed            Code = "RECOGNITION_FAILED"
)

// Sentinels for errors.Is. Any *Error with the same Code matches.
var (
	ErrUnreadableImage              = &Error{Code: CodeUnreadableImage}
	ErrUnsupportedFormat            = &Error{Code: CodeUnsupportedFormat}
	ErrUnreadableDocument           = &Error{Code: CodeUnreadableDocument}
	ErrInvalidDimensions            = &Error{Code: CodeInvalidDimensions}
	ErrOutOfBounds                  = &Error{Code: CodeOutOfBounds}
	ErrDegenerateCrop               = &Error{Code: CodeDegenerateCrop}
	ErrUnsupportedCompressionFormat = &Error{Code: CodeUnsupportedCompressionFormat}
	ErrRecognitionFailed            = &Error{Code: CodeRecognitionFailed}
)

// Error is a structured pipeline error.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (caused by: %v)", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Factory functions

func NewUnreadableImage(cause error) *Error {
	return &Error{
		Code:    CodeUnreadableImage,
		Message: "buffer is not a decodable raster image",
		Cause:   cause,
	}
}

func NewUnsupportedFormat(format string) *Error {
	return &Error{
		Code:    CodeUnsupportedFormat,
		Message: fmt.Sprintf("unsupported format %q", format),
		Details: map[string]interface{}{"format": format},
	}
}

func NewUnreadableDocument(cause error) *Error {
	return &Error{
		Code:    CodeUnreadableDocument,
		Message: "buffer is not a well-formed paginated document",
		Cause:   cause,
	}
}

func NewInvalidDimensions(width, height float64) *Error {
	return &Error{
		Code:    CodeInvalidDimensions,
		Message: fmt.Sprintf("width and height must be positive finite numbers, got %v x %v", width, height),
		Details: map[string]interface{}{"width": width, "height": height},
	}
}

func NewOutOfBounds(left, top, width, height int) *Error {
	return &Error{
		Code:    CodeOutOfBounds,
		Message: fmt.Sprintf("crop origin (%d,%d) lies outside the %dx%d image", left, top, width, height),
		Details: map[string]interface{}{"left": left, "top": top, "imageWidth": width, "imageHeight": height},
	}
}

func NewDegenerateCrop(width, height int) *Error {
	return &Error{
		Code:    CodeDegenerateCrop,
		Message: fmt.Sprintf("crop area %dx%d has no pixels", width, height),
		Details: map[string]interface{}{"width": width, "height": height},
	}
}

func NewUnsupportedCompressionFormat(format string) *Error {
	return &Error{
		Code:    CodeUnsupportedCompressionFormat,
		Message: fmt.Sprintf("compression is not supported for %q", format),
		Details: map[string]interface{}{"format": format},
	}
}

func NewRecognitionFailed(cause error) *Error {
	return &Error{
		Code:    CodeRecognitionFailed,
		Message: "no recognition provider produced text",
		Cause:   cause,
	}
}

// ToMap converts the error to a map for API responses and history records.
func (e *Error) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"code":    string(e.Code),
		"message": e.Message,
	}
	for k, v := range e.Details {
		result[k] = v
	}
	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}
	return result
}
