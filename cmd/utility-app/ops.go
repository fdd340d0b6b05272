package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thangam2001/Utility-App/internal/history"
	"github.com/Thangam2001/Utility-App/internal/logger"
	"github.com/Thangam2001/Utility-App/internal/media"
	"github.com/Thangam2001/Utility-App/internal/pipeline"
	"github.com/Thangam2001/Utility-App/internal/record"
	"github.com/Thangam2001/Utility-App/internal/storage"
	"github.com/Thangam2001/Utility-App/internal/transform"
)

// operation runs one pipeline operation over an upload
type operation func(ctx context.Context, p *pipeline.Processor, up pipeline.Upload) (*pipeline.Output, error)

// fileReport is printed for every processed file
type fileReport struct {
	Input  string        `json:"input" yaml:"input"`
	Output string        `json:"output" yaml:"output"`
	Record record.Record `json:"record" yaml:"record"`
}

var resizeCmd = &cobra.Command{
	Use:   "resize <file>...",
	Short: "Resize images",
	Long: `Resize images to a target width and height.

Without --keep-aspect the image is stretched to exactly width x height.
With it, the image is scaled to the largest size that fits inside the box.

Examples:
  utility-app resize photo.jpg --width 800 --height 800 --keep-aspect
  utility-app resize *.png --width 64 --height 64 --out-dir thumbs`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		width, _ := cmd.Flags().GetFloat64("width")
		height, _ := cmd.Flags().GetFloat64("height")
		keep, _ := cmd.Flags().GetBool("keep-aspect")
		return runOperation(cmd, record.KindResize, args, func(ctx context.Context, p *pipeline.Processor, up pipeline.Upload) (*pipeline.Output, error) {
			return p.Resize(ctx, up, width, height, keep)
		})
	},
}

var cropCmd = &cobra.Command{
	Use:   "crop <file>...",
	Short: "Crop images to a pixel region",
	Long: `Crop images to the region starting at (left, top).

A region reaching past the right or bottom edge is clamped to the image.
A region starting outside the image is an error.

Example:
  utility-app crop scan.png --left 10 --top 20 --width 300 --height 200`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var region transform.Region
		region.Left, _ = cmd.Flags().GetFloat64("left")
		region.Top, _ = cmd.Flags().GetFloat64("top")
		region.Width, _ = cmd.Flags().GetFloat64("width")
		region.Height, _ = cmd.Flags().GetFloat64("height")
		return runOperation(cmd, record.KindCrop, args, func(ctx context.Context, p *pipeline.Processor, up pipeline.Upload) (*pipeline.Output, error) {
			return p.Crop(ctx, up, region)
		})
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert <file>...",
	Short: "Convert images or documents to another format",
	Long: `Convert images between png, jpeg, webp, bmp and tiff, or documents
between plain text and PDF.

Examples:
  utility-app convert photo.png --to jpg
  utility-app convert notes.txt --to pdf
  utility-app convert report.pdf --to txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("to")
		return runOperation(cmd, record.KindConvert, args, func(ctx context.Context, p *pipeline.Processor, up pipeline.Upload) (*pipeline.Output, error) {
			return p.Convert(ctx, up, target)
		})
	},
}

var compressCmd = &cobra.Command{
	Use:   "compress <file>...",
	Short: "Compress images",
	Long: `Re-encode jpeg, png, webp, gif and svg images at a quality between 1 and 100.

Examples:
  utility-app compress photo.jpg --quality 60
  utility-app compress logo.svg`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quality, _ := cmd.Flags().GetInt("quality")
		return runOperation(cmd, record.KindCompress, args, func(ctx context.Context, p *pipeline.Processor, up pipeline.Upload) (*pipeline.Output, error) {
			return p.Compress(ctx, up, quality)
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{resizeCmd, cropCmd, convertCmd, compressCmd} {
		rootCmd.AddCommand(cmd)
		addOutputFlags(cmd)
	}

	resizeCmd.Flags().Float64("width", 0, "target width in pixels")
	resizeCmd.Flags().Float64("height", 0, "target height in pixels")
	resizeCmd.Flags().Bool("keep-aspect", false, "fit inside width x height keeping the aspect ratio")
	_ = resizeCmd.MarkFlagRequired("width")
	_ = resizeCmd.MarkFlagRequired("height")

	cropCmd.Flags().Float64("left", 0, "left edge of the region")
	cropCmd.Flags().Float64("top", 0, "top edge of the region")
	cropCmd.Flags().Float64("width", 0, "region width")
	cropCmd.Flags().Float64("height", 0, "region height")
	for _, name := range []string{"left", "top", "width", "height"} {
		_ = cropCmd.MarkFlagRequired(name)
	}

	convertCmd.Flags().String("to", "", "target format (png, jpg, webp, bmp, tiff, pdf, txt)")
	_ = convertCmd.MarkFlagRequired("to")

	compressCmd.Flags().Int("quality", 75, "quality from 1 to 100")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "json", "report format (json, yaml)")
	cmd.Flags().String("out-dir", "", "directory for produced files (default is the storage directory)")
}

// runOperation applies op to every input file, writes the outputs, appends
// one history entry per success and prints a report per file. A summary is
// printed to stderr for batches.
func runOperation(cmd *cobra.Command, kind record.Kind, inputs []string, op operation) error {
	format, _ := cmd.Flags().GetString("output")
	if err := validateOutputFormat(format); err != nil {
		return err
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

	result := pipeline.NewBatchResult(string(kind))
	start := time.Now()

	for _, input := range inputs {
		log := appLog.WithOperation(string(kind)).WithFile(input)

		report, fr, err := processFile(ctx, comps, store, input, op)
		if err != nil {
			log.WithError(err).Error("Operation failed")
			result.AddError(input, err)
			continue
		}
		result.AddSuccess(fr)

		if err := writeReport(cmd.OutOrStdout(), format, report); err != nil {
			return fmt.Errorf("failed to print report: %w", err)
		}
	}

	result.Duration = time.Since(start)
	if len(inputs) > 1 {
		fmt.Fprint(cmd.ErrOrStderr(), result.Summary())
	}

	if result.HasFailures() {
		if len(inputs) == 1 {
			return result.Failures[0].Error
		}
		return fmt.Errorf("%s completed with %d failures", kind, result.FailureCount)
	}
	return nil
}

func processFile(ctx context.Context, comps *components, store *storage.FileStore, input string, op operation) (*fileReport, *pipeline.FileResult, error) {
	up, err := readInput(input)
	if err != nil {
		return nil, nil, err
	}

	out, err := op(ctx, comps.processor, up)
	if err != nil {
		return nil, nil, err
	}

	file, err := store.Save(ctx, out.Data, up.FileName, out.Extension())
	if err != nil {
		return nil, nil, err
	}

	recordEntry(ctx, comps.ledger, history.FromRecord(up.FileName, out.Record, file.Path), appLog)

	return &fileReport{Input: input, Output: file.Path, Record: out.Record},
		&pipeline.FileResult{
			Input:        input,
			OutputPath:   file.Path,
			OriginalSize: len(up.Data),
			ResultSize:   len(out.Data),
			Duration:     out.Duration,
		}, nil
}

// readInput loads a file as an upload, sniffing its mime type from content
func readInput(path string) (pipeline.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Upload{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return pipeline.Upload{
		Data:     data,
		MimeType: media.DetectMime(data),
		FileName: filepath.Base(path),
	}, nil
}

// outputStore returns a store over --out-dir, or fallback when unset
func outputStore(cmd *cobra.Command, fallback *storage.FileStore) (*storage.FileStore, error) {
	dir, _ := cmd.Flags().GetString("out-dir")
	if dir == "" {
		return fallback, nil
	}
	return storage.NewFileStore(&storage.Config{Logger: appLog, Dir: dir})
}

// recordEntry appends to history; a failure is logged and does not fail the
// operation.
func recordEntry(ctx context.Context, ledger history.Ledger, entry history.Entry, log *logger.Logger) {
	if _, err := ledger.Append(ctx, entry); err != nil {
		log.WithOperation(entry.OperationType).WithFile(entry.FileName).WithError(err).Warn("Failed to record operation history")
	}
}
