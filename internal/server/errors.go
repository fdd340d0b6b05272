package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/Thangam2001/Utility-App/internal/errors"
)

// errorResponse is the JSON body of every failed request
type errorResponse struct {
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Path    string                 `json:"path,omitempty"`
}

// requestError is a client error detected before the pipeline runs
type requestError struct {
	status  int
	message string
	cause   error
}

func (e *requestError) Error() string {
	return e.message
}

func (e *requestError) Unwrap() error {
	return e.cause
}

func badRequest(message string) error {
	return &requestError{status: http.StatusBadRequest, message: message}
}

// statusFor maps an error to the HTTP status it is reported with
func statusFor(err error) int {
	var re *requestError
	if errors.As(err, &re) {
		return re.status
	}

	switch apperrors.CodeOf(err) {
	case apperrors.CodeUnreadableImage,
		apperrors.CodeUnreadableDocument,
		apperrors.CodeInvalidDimensions,
		apperrors.CodeOutOfBounds,
		apperrors.CodeDegenerateCrop:
		return http.StatusBadRequest
	case apperrors.CodeUnsupportedFormat,
		apperrors.CodeUnsupportedCompressionFormat:
		return http.StatusUnsupportedMediaType
	case apperrors.CodeRecognitionFailed:
		return http.StatusBadGateway
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"message","code","details"} and logs it
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Message: err.Error()}

	var ae *apperrors.Error
	var re *requestError
	switch {
	case errors.As(err, &re):
		body.Message = re.message
	case errors.As(err, &ae):
		body.Code = string(ae.Code)
		body.Details = ae.Details
		if ae.Message != "" {
			body.Message = ae.Message
		}
	case status == http.StatusGatewayTimeout:
		body.Message = "Request timed out"
	default:
		body.Message = "Internal server error"
	}

	log := s.logger.WithRequestID(RequestIDFrom(r.Context())).WithFields("path", r.URL.Path, "status", status).WithError(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed")
	} else {
		log.Info("Request rejected")
	}

	respondJSON(w, status, body)
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent
		return
	}
}
