package ollama

import "time"

// GenerateRequest is the body of POST /api/generate
type GenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Images  []string               `json:"images,omitempty"` // base64, no data URL prefix
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format,omitempty"` // "json" constrains the reply to valid JSON
	Options map[string]interface{} `json:"options,omitempty"`
}

// GenerateResponse is a non-streaming reply of /api/generate
type GenerateResponse struct {
	Model         string    `json:"model"`
	Response      string    `json:"response"`
	Done          bool      `json:"done"`
	DoneReason    string    `json:"done_reason,omitempty"`
	TotalDuration int64     `json:"total_duration,omitempty"` // nanoseconds
	CreatedAt     time.Time `json:"created_at"`
}

// ErrorResponse is the body Ollama sends with non-2xx statuses
type ErrorResponse struct {
	Error string `json:"error"`
}
