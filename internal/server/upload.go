package server

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/Thangam2001/Utility-App/internal/media"
	"github.com/Thangam2001/Utility-App/internal/pipeline"
)

const (
	uploadField = "file"

	// multipart bookkeeping allowed on top of the file itself
	formOverhead = 1 << 20

	msgTooLarge    = "File is too large. Please upload a smaller file."
	msgUnsupported = "Unsupported file type. Please upload an image file."
)

var allowedMimeTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"image/bmp":       true,
	"image/tiff":      true,
	"image/gif":       true,
	"image/svg+xml":   true,
	"text/plain":      true,
	"application/pdf": true,
}

// readUpload parses the multipart body and returns the "file" part.
// missingMessage is reported when the part is absent.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, missingMessage string) (pipeline.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+formOverhead)

	if err := r.ParseMultipartForm(s.maxUpload + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pipeline.Upload{}, badRequest(msgTooLarge)
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return pipeline.Upload{}, badRequest(missingMessage)
		}
		return pipeline.Upload{}, &requestError{status: http.StatusBadRequest, message: "Malformed upload", cause: err}
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return pipeline.Upload{}, badRequest(missingMessage)
		}
		return pipeline.Upload{}, &requestError{status: http.StatusBadRequest, message: "Malformed upload", cause: err}
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		return pipeline.Upload{}, &requestError{status: http.StatusBadRequest, message: "Malformed upload", cause: err}
	}
	if int64(len(data)) > s.maxUpload {
		return pipeline.Upload{}, badRequest(msgTooLarge)
	}

	mimeType := uploadMimeType(header.Header.Get("Content-Type"), data)
	if !allowedMimeTypes[mimeType] {
		return pipeline.Upload{}, &requestError{status: http.StatusBadRequest, message: msgUnsupported}
	}

	return pipeline.Upload{
		Data:     data,
		MimeType: mimeType,
		FileName: header.Filename,
	}, nil
}

// uploadMimeType trusts the part's declared type and sniffs the content when
// the client sent none or a generic one.
func uploadMimeType(declared string, data []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	return media.DetectMime(data)
}
