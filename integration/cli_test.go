package integration

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// buildCLI compiles the utility-app binary into a temp directory
func buildCLI(t *testing.T) string {
	t.Helper()

	binaryPath := filepath.Join(t.TempDir(), "utility-app-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "../cmd/utility-app")
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build CLI: %v\nOutput: %s", err, output)
	}
	return binaryPath
}

// runCLI runs the binary with an isolated HOME and no remote OCR
func runCLI(t *testing.T, binaryPath, home string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Dir = home
	cmd.Env = append(os.Environ(),
		"HOME="+home,
		"UTILITY_OCR_REMOTE_ENABLED=false",
		"DATABASE_URL=",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 2), G: uint8(y * 2), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
}

// TestCLIBuild tests that the CLI binary can be built
func TestCLIBuild(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping CLI build test in short mode")
	}

	binaryPath := buildCLI(t)

	info, err := os.Stat(binaryPath)
	if err != nil {
		t.Fatalf("Failed to stat binary: %v", err)
	}
	if info.Mode()&0111 == 0 {
		t.Error("Binary should be executable")
	}
}

// TestCLIVersion tests the version command
func TestCLIVersion(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping CLI test in short mode")
	}

	binaryPath := buildCLI(t)
	stdout, stderr, err := runCLI(t, binaryPath, t.TempDir(), "version")
	if err != nil {
		t.Fatalf("Version command failed: %v\nOutput: %s", err, stderr)
	}
	if !strings.Contains(stdout, "utility-app version") {
		t.Errorf("Version output should name the binary\nOutput: %s", stdout)
	}
}

// TestCLIHelp tests the help command and flag
func TestCLIHelp(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping CLI test in short mode")
	}

	binaryPath := buildCLI(t)
	home := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{"help command", []string{"help"}},
		{"help flag", []string{"--help"}},
		{"resize help", []string{"resize", "--help"}},
		{"crop help", []string{"crop", "--help"}},
		{"convert help", []string{"convert", "--help"}},
		{"compress help", []string{"compress", "--help"}},
		{"ocr help", []string{"ocr", "--help"}},
		{"history help", []string{"history", "--help"}},
		{"serve help", []string{"serve", "--help"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, _ := runCLI(t, binaryPath, home, tt.args...)
			output := stdout + stderr
			if !strings.Contains(output, "Usage:") {
				t.Errorf("Help output should contain usage information\nOutput: %s", output)
			}
		})
	}
}

// TestCLIResizeAndHistory runs a resize end to end and reads it back from history
func TestCLIResizeAndHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping CLI test in short mode")
	}

	binaryPath := buildCLI(t)
	home := t.TempDir()
	storageDir := filepath.Join(home, "out")
	input := filepath.Join(home, "wide.png")
	writeTestPNG(t, input, 120, 60)

	stdout, stderr, err := runCLI(t, binaryPath, home,
		"resize", input, "--width", "40", "--height", "40", "--keep-aspect",
		"--storage-dir", storageDir)
	if err != nil {
		t.Fatalf("resize failed: %v\nStderr: %s", err, stderr)
	}

	var report struct {
		Output string `json:"output"`
		Record struct {
			Operation string `json:"operation"`
			Result    struct {
				Width  int `json:"width"`
				Height int `json:"height"`
			} `json:"result"`
		} `json:"record"`
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("resize output is not JSON: %v\nOutput: %s", err, stdout)
	}
	if report.Record.Result.Width != 40 || report.Record.Result.Height != 20 {
		t.Errorf("Expected 40x20, got %dx%d", report.Record.Result.Width, report.Record.Result.Height)
	}
	if _, err := os.Stat(report.Output); err != nil {
		t.Errorf("Output file should exist: %v", err)
	}

	stdout, stderr, err = runCLI(t, binaryPath, home, "history", "--output", "json", "--storage-dir", storageDir)
	if err != nil {
		t.Fatalf("history failed: %v\nStderr: %s", err, stderr)
	}
	var hist struct {
		History []struct {
			OperationType string `json:"operation_type"`
			FileName      string `json:"file_name"`
		} `json:"history"`
	}
	if err := json.Unmarshal([]byte(stdout), &hist); err != nil {
		t.Fatalf("history output is not JSON: %v\nOutput: %s", err, stdout)
	}
	if len(hist.History) != 1 || hist.History[0].OperationType != "resize" || hist.History[0].FileName != "wide.png" {
		t.Errorf("Unexpected history: %+v", hist.History)
	}
}

// TestCLIConvertTextToPDF tests the document conversion path
func TestCLIConvertTextToPDF(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping CLI test in short mode")
	}

	binaryPath := buildCLI(t)
	home := t.TempDir()
	input := filepath.Join(home, "notes.txt")
	if err := os.WriteFile(input, []byte("first line\nsecond line\n"), 0644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	stdout, stderr, err := runCLI(t, binaryPath, home,
		"convert", input, "--to", "pdf", "--output", "yaml",
		"--storage-dir", filepath.Join(home, "out"))
	if err != nil {
		t.Fatalf("convert failed: %v\nStderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "format: pdf") {
		t.Errorf("Report should describe a pdf result\nOutput: %s", stdout)
	}

	matches, _ := filepath.Glob(filepath.Join(home, "out", "notes*.pdf"))
	if len(matches) != 1 {
		t.Fatalf("Expected one pdf output, found %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("Output should be a PDF")
	}
}

// TestCLIConfigFile tests config file usage
func TestCLIConfigFile(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping CLI test in short mode")
	}

	binaryPath := buildCLI(t)
	home := t.TempDir()
	storageDir := filepath.Join(home, "configured")
	configPath := filepath.Join(home, "config.yaml")

	configContent := `
storage-dir: ` + storageDir + `
log-level: debug
history-limit: 5
ocr-remote-enabled: false
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	input := filepath.Join(home, "square.png")
	writeTestPNG(t, input, 32, 32)

	_, stderr, err := runCLI(t, binaryPath, home, "--config", configPath, "compress", input, "--quality", "50")
	if err != nil {
		t.Fatalf("compress failed: %v\nStderr: %s", err, stderr)
	}

	matches, _ := filepath.Glob(filepath.Join(storageDir, "square*.png"))
	if len(matches) != 1 {
		t.Errorf("Expected output in configured storage dir, found %v", matches)
	}
}

// TestCLIErrors tests error reporting for bad input
func TestCLIErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping CLI test in short mode")
	}

	binaryPath := buildCLI(t)
	home := t.TempDir()
	notImage := filepath.Join(home, "notes.txt")
	if err := os.WriteFile(notImage, []byte("plain text"), 0644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"invalid command", []string{"invalid-command"}, "unknown command"},
		{"missing resize flags", []string{"resize", notImage}, "required flag"},
		{"unsupported compress", []string{"compress", notImage, "--storage-dir", home}, "Error"},
		{"bad output format", []string{"compress", notImage, "--output", "xml"}, "unknown output format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, err := runCLI(t, binaryPath, home, tt.args...)
			if err == nil {
				t.Errorf("Expected failure\nOutput: %s", stdout)
			}
			if !strings.Contains(stdout+stderr, tt.want) {
				t.Errorf("Output should contain %q\nOutput: %s%s", tt.want, stdout, stderr)
			}
		})
	}
}
