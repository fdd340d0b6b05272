package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thangam2001/Utility-App/internal/history"
	"github.com/Thangam2001/Utility-App/internal/ocr"
	"github.com/Thangam2001/Utility-App/internal/pipeline"
)

// ocrReport is printed for every recognized file with --output json|yaml
type ocrReport struct {
	Input      string           `json:"input" yaml:"input"`
	Output     string           `json:"output" yaml:"output"`
	Text       string           `json:"text" yaml:"text"`
	Confidence *float64         `json:"confidence" yaml:"confidence"`
	Words      *int             `json:"words" yaml:"words"`
	DurationMs int64            `json:"durationMs" yaml:"durationMs"`
	Provider   ocr.ProviderKind `json:"provider" yaml:"provider"`
	Engine     string           `json:"engine" yaml:"engine"`
}

var ocrCmd = &cobra.Command{
	Use:   "ocr <image>...",
	Short: "Extract text from images",
	Long: `Extract text from images.

The configured remote provider is tried first when it has credentials;
Tesseract runs locally when the remote provider fails or returns nothing.
The text is written to a .txt file and printed.

Examples:
  # Print the recognized text
  utility-app ocr receipt.png --output text

  # Full result as YAML, local recognition only
  UTILITY_OCR_REMOTE_ENABLED=false utility-app ocr scan.jpg --output yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOCR,
}

func init() {
	rootCmd.AddCommand(ocrCmd)
	ocrCmd.Flags().StringP("output", "o", "json", "report format (text, json, yaml)")
	ocrCmd.Flags().String("out-dir", "", "directory for text files (default is the storage directory)")
}

func runOCR(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if format != "text" {
		if err := validateOutputFormat(format); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	comps, err := buildComponents(ctx, appCfg, appLog, true)
	if err != nil {
		return err
	}
	defer comps.Close()

	store, err := outputStore(cmd, comps.store)
	if err != nil {
		return err
	}

	result := pipeline.NewBatchResult("ocr")
	start := time.Now()

	for _, input := range args {
		up, err := readInput(input)
		if err != nil {
			result.AddError(input, err)
			continue
		}

		res, err := recognize(ctx, comps.processor, up)
		if err != nil {
			appLog.WithOperation("ocr").WithFile(input).WithError(err).Error("Recognition failed")
			result.AddError(input, err)
			continue
		}

		file, err := store.SaveText(ctx, res.Text, up.FileName)
		if err != nil {
			result.AddError(input, err)
			continue
		}
		recordEntry(ctx, comps.ledger, history.FromRecognition(up.FileName, up.MimeType, len(up.Data), res, file.Path), appLog)

		result.AddSuccess(&pipeline.FileResult{
			Input:        input,
			OutputPath:   file.Path,
			OriginalSize: len(up.Data),
			ResultSize:   file.Size,
			Duration:     time.Duration(res.DurationMs) * time.Millisecond,
		})

		if format == "text" {
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			continue
		}
		if err := writeReport(cmd.OutOrStdout(), format, ocrReport{
			Input:      input,
			Output:     file.Path,
			Text:       res.Text,
			Confidence: res.Confidence,
			Words:      res.WordCount,
			DurationMs: res.DurationMs,
			Provider:   res.Provider,
			Engine:     res.Engine,
		}); err != nil {
			return fmt.Errorf("failed to print report: %w", err)
		}
	}

	result.Duration = time.Since(start)
	if len(args) > 1 {
		fmt.Fprint(cmd.ErrOrStderr(), result.Summary())
	}

	if result.HasFailures() {
		if len(args) == 1 {
			return result.Failures[0].Error
		}
		return fmt.Errorf("ocr completed with %d failures", result.FailureCount)
	}
	return nil
}

// recognize bounds a single recognition by the configured timeout
func recognize(ctx context.Context, proc *pipeline.Processor, up pipeline.Upload) (*ocr.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, appCfg.OCR.Timeout)
	defer cancel()
	return proc.Recognize(ctx, up)
}
