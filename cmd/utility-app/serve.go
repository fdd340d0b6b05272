package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thangam2001/Utility-App/internal/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the operations over HTTP.

Routes:
  POST /api/resize     multipart "file", width, height, keepAspectRatio
  POST /api/crop       multipart "file", left, top, width, height
  POST /api/convert    multipart "file", targetFormat
  POST /api/compress   multipart "file", quality
  POST /api/ocr        multipart "file"
  GET  /api/history    ?limit=
  GET  /files/{name}   download a produced file
  GET  /health

The server shuts down gracefully on SIGTERM/SIGINT.

Examples:
  # Serve on the default port 4000
  utility-app serve

  # Serve on another port and write a PID file
  utility-app serve --port 8080 --pid-file /var/run/utility-app.pid

  # Build download links for a public host behind a proxy
  utility-app serve --public-url https://media.example.com`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Flag names match configuration keys so they take precedence over them
	serveCmd.Flags().String("addr", "", "interface to listen on (default all)")
	serveCmd.Flags().Int("port", 4000, "port to listen on")
	serveCmd.Flags().Int("max-file-size-mb", 25, "maximum upload size in MB")
	serveCmd.Flags().StringSlice("client-origins", []string{"*"}, "allowed CORS origins")
	serveCmd.Flags().String("public-url", "", "external base URL for download links")
	serveCmd.Flags().String("pid-file", "", "PID file path")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	comps, err := buildComponents(ctx, appCfg, appLog, false)
	if err != nil {
		return err
	}
	defer comps.Close()

	srv, err := server.New(&server.Config{
		Logger:          appLog,
		Processor:       comps.processor,
		Store:           comps.store,
		Ledger:          comps.ledger,
		Addr:            appCfg.Server.ListenAddr(),
		MaxUploadBytes:  int64(appCfg.Server.MaxUploadMB) << 20,
		ClientOrigins:   appCfg.Server.ClientOrigins,
		PublicURL:       appCfg.Server.PublicURL,
		ShutdownTimeout: appCfg.Server.ShutdownTimeout,
		PIDFile:         appCfg.Server.PIDFile,
		OCRTimeout:      appCfg.OCR.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	appLog.WithFields(
		"addr", appCfg.Server.ListenAddr(),
		"storage", comps.store.Dir(),
		"ocr_providers", comps.chain.Providers(),
	).Info("Starting utility-app")

	return srv.Run(ctx)
}
