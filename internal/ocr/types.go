package ocr

import (
	"math"
	"strings"
)

// ProviderKind tells whether a result came from a network service or from
// the in-process engine.
type ProviderKind string

const (
	// KindRemote marks results produced by a network service
	KindRemote ProviderKind = "remote"

	// KindLocal marks results produced by the in-process engine
	KindLocal ProviderKind = "local"
)

// Result is the normalized output of a recognition attempt.
type Result struct {
	// Text is the recognized text, trimmed
	Text string `json:"text"`

	// Confidence is the mean recognition confidence on a 0-100 scale, when
	// the provider reports one
	Confidence *float64 `json:"confidence,omitempty"`

	// WordCount is the number of whitespace-separated words, when known
	WordCount *int `json:"words,omitempty"`

	// DurationMs is the wall time of the attempt that produced the result
	DurationMs int64 `json:"durationMs"`

	// Provider is the kind of provider that produced the result
	Provider ProviderKind `json:"provider"`

	// Engine names the concrete backend (api4ai, tesseract, openai, ...)
	Engine string `json:"engine"`
}

// Word is a single recognized word with an optional confidence score.
type Word struct {
	// Text is the recognized text content
	Text string

	// BoundingBox is the position and size of the word in the image
	BoundingBox Rectangle

	// Confidence is the recognition confidence score (0-100), negative when unknown
	Confidence float64
}

// Rectangle represents a rectangular bounding box in pixels
type Rectangle struct {
	X      int
	Y      int
	Width  int
	Height int
}

// NewRectangle creates a new rectangle
func NewRectangle(x, y, width, height int) Rectangle {
	return Rectangle{X: x, Y: y, Width: width, Height: height}
}

// countWords counts whitespace-separated words.
func countWords(s string) int {
	return len(strings.Fields(s))
}

// collapseSpace joins runs of whitespace into single spaces and trims.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// scoreFromUnit turns a mean of 0..1 scores into the 0-100 scale, capped at 100.
func scoreFromUnit(sum float64, n int) *float64 {
	if n == 0 {
		return nil
	}
	v := math.Min(100, sum/float64(n)*100)
	return &v
}

// summarizeWords builds a Result body from a word list. Words are joined with
// single spaces; confidences at or above zero are averaged on the 0-100 scale.
func summarizeWords(words []Word) *Result {
	texts := make([]string, 0, len(words))
	count := 0
	var sum float64
	scored := 0

	for _, w := range words {
		text := collapseSpace(w.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		count += countWords(text)
		if w.Confidence >= 0 {
			sum += w.Confidence
			scored++
		}
	}

	res := &Result{Text: strings.Join(texts, " ")}
	if scored > 0 {
		v := math.Min(100, sum/float64(scored))
		res.Confidence = &v
	}
	if count > 0 {
		res.WordCount = &count
	}
	return res
}
