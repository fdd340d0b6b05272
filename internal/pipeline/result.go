package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// BatchResult collects the outcome of running one operation over several files
type BatchResult struct {
	Operation    string
	SuccessCount int
	FailureCount int
	Duration     time.Duration
	Successes    []FileResult
	Failures     []FileFailure
}

// FileResult describes one successfully processed file
type FileResult struct {
	Input        string
	OutputPath   string
	OriginalSize int
	ResultSize   int
	Duration     time.Duration
}

// FileFailure describes a file that could not be processed
type FileFailure struct {
	Input string
	Error error
}

// NewBatchResult creates a new batch result
func NewBatchResult(operation string) *BatchResult {
	return &BatchResult{
		Operation: operation,
		Successes: make([]FileResult, 0),
		Failures:  make([]FileFailure, 0),
	}
}

// AddSuccess records a processed file
func (br *BatchResult) AddSuccess(result *FileResult) {
	br.Successes = append(br.Successes, *result)
	br.SuccessCount++
}

// AddError records a failed file
func (br *BatchResult) AddError(input string, err error) {
	br.Failures = append(br.Failures, FileFailure{Input: input, Error: err})
	br.FailureCount++
}

// HasFailures returns true if any file failed
func (br *BatchResult) HasFailures() bool {
	return br.FailureCount > 0
}

// BytesSaved is the total size reduction over all successes; negative when
// outputs grew.
func (br *BatchResult) BytesSaved() int {
	saved := 0
	for _, s := range br.Successes {
		saved += s.OriginalSize - s.ResultSize
	}
	return saved
}

// Summary returns a human-readable summary of the batch
func (br *BatchResult) Summary() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s summary:\n", br.Operation)
	fmt.Fprintf(&sb, "  Files: %d\n", br.SuccessCount+br.FailureCount)
	fmt.Fprintf(&sb, "  Successful: %d\n", br.SuccessCount)
	fmt.Fprintf(&sb, "  Failed: %d\n", br.FailureCount)
	fmt.Fprintf(&sb, "  Bytes saved: %d\n", br.BytesSaved())
	fmt.Fprintf(&sb, "  Duration: %v\n", br.Duration)

	if br.HasFailures() {
		sb.WriteString("\nFailures:\n")
		for _, failure := range br.Failures {
			fmt.Fprintf(&sb, "  - %s: %v\n", failure.Input, failure.Error)
		}
	}

	return sb.String()
}

// String returns a string representation of the batch result
func (br *BatchResult) String() string {
	return br.Summary()
}
