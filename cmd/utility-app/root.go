package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Thangam2001/Utility-App/internal/config"
	"github.com/Thangam2001/Utility-App/internal/logger"
)

var (
	cfgFile string
	version = "dev" // Set via build flags

	appCfg *config.Config
	appLog *logger.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "utility-app",
	Short: "Convert, resize, crop, compress and OCR images and documents",
	Long: `utility-app transforms images and documents and extracts text from them.

Every operation takes a file and produces a new one alongside a record of
the before and after dimensions, format and size. The same operations are
available over HTTP with "utility-app serve".

Features:
  - Resize with or without keeping the aspect ratio
  - Crop to a pixel region
  - Convert between png, jpeg, webp, bmp and tiff, and between text and PDF
  - Compress jpeg, png, webp, gif and svg under a quality budget
  - OCR through a remote provider with a local Tesseract fallback
  - History of completed operations`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initApp,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.utility-app.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("storage-dir", "", "directory produced files are written to")
}

// initApp loads .env, the configuration and the logger before any command
// runs. Logs go to stderr so command output on stdout stays parseable.
func initApp(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(&logger.Config{
		Level:            cfg.Log.Level,
		Format:           cfg.Log.Format,
		OutputPath:       cfg.Log.File,
		Stderr:           true,
		EnableStacktrace: cfg.Log.Level == "debug",
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appCfg = cfg
	appLog = logger.Get()
	appLog.WithFields("command", cmd.Name()).Debug("Configuration loaded")
	return nil
}
