package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/Thangam2001/Utility-App/internal/errors"
	"github.com/Thangam2001/Utility-App/internal/history"
	"github.com/Thangam2001/Utility-App/internal/logger"
	"github.com/Thangam2001/Utility-App/internal/ocr"
	"github.com/Thangam2001/Utility-App/internal/pipeline"
	"github.com/Thangam2001/Utility-App/internal/record"
	"github.com/Thangam2001/Utility-App/internal/storage"
)

type fakeRecognizer struct {
	res *ocr.Result
	err error
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ []byte) (*ocr.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type testEnv struct {
	server *Server
	store  *storage.FileStore
	ledger *history.MemoryLedger
}

func newTestEnv(t *testing.T, rec pipeline.Recognizer, mutate func(*Config)) *testEnv {
	t.Helper()
	log := logger.NewNop()

	if rec == nil {
		rec = &fakeRecognizer{}
	}
	proc, err := pipeline.New(&pipeline.Config{Logger: log, Recognizer: rec})
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}

	store, err := storage.NewFileStore(&storage.Config{Logger: log, Dir: filepath.Join(t.TempDir(), "storage")})
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	ledger, err := history.NewMemoryLedger(&history.MemoryConfig{Logger: log, Limit: 10})
	if err != nil {
		t.Fatalf("NewMemoryLedger() error = %v", err)
	}

	cfg := &Config{
		Logger:    log,
		Processor: proc,
		Store:     store,
		Ledger:    ledger,
		Addr:      "127.0.0.1:0",
	}
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{server: srv, store: store, ledger: ledger}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// uploadRequest builds a multipart POST. A nil file omits the file part; an
// empty contentType leaves the part untyped so the server sniffs it.
func uploadRequest(t *testing.T, path string, file []byte, fileName, contentType string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}

	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart() error = %v", err)
		}
		part.Write(file)
	}

	if err := mw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rec.Body.String(), err)
	}
}

func decodeRecord(t *testing.T, rec *httptest.ResponseRecorder) record.Record {
	t.Helper()
	var r record.Record
	if err := json.Unmarshal([]byte(rec.Header().Get("X-Image-Metadata")), &r); err != nil {
		t.Fatalf("invalid X-Image-Metadata %q: %v", rec.Header().Get("X-Image-Metadata"), err)
	}
	return r
}

func TestNew_Validation(t *testing.T) {
	proc, _ := pipeline.New(&pipeline.Config{Logger: logger.NewNop(), Recognizer: &fakeRecognizer{}})
	store, _ := storage.NewFileStore(&storage.Config{Dir: t.TempDir()})
	ledger, _ := history.NewMemoryLedger(nil)

	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"missing processor", &Config{Store: store, Ledger: ledger}},
		{"missing store", &Config{Processor: proc, Ledger: ledger}},
		{"missing ledger", &Config{Processor: proc, Store: store}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() should error")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	s := env.server

	if s.maxUpload != defaultMaxUpload {
		t.Errorf("maxUpload = %d, want %d", s.maxUpload, defaultMaxUpload)
	}
	if s.shutdownTimeout != defaultShutdownTimeout {
		t.Errorf("shutdownTimeout = %v", s.shutdownTimeout)
	}
	if s.ocrTimeout != defaultOCRTimeout {
		t.Errorf("ocrTimeout = %v", s.ocrTimeout)
	}
	if len(s.origins) != 1 || s.origins[0] != "*" {
		t.Errorf("origins = %v, want [*]", s.origins)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body HealthResponse
	decodeJSON(t, rec, &body)
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
	ts, err := time.Parse(time.RFC3339Nano, body.Timestamp)
	if err != nil {
		t.Fatalf("timestamp %q: %v", body.Timestamp, err)
	}
	if !strings.HasSuffix(body.Timestamp, "Z") || len(body.Timestamp) != len("2006-01-02T15:04:05.000Z") {
		t.Errorf("timestamp = %q, want millisecond UTC form", body.Timestamp)
	}
	if time.Since(ts) > time.Minute {
		t.Errorf("timestamp %v is stale", ts)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/nope?x=1", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body errorResponse
	decodeJSON(t, rec, &body)
	if body.Message != "Resource not found" || body.Path != "/nope?x=1" {
		t.Errorf("body = %+v", body)
	}
}

func TestResize(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	req := uploadRequest(t, "/api/resize", pngBytes(t, 200, 100), "Holiday Photo.png", "image/png", map[string]string{
		"width":           "80",
		"height":          "80",
		"keepAspectRatio": "yes",
	})
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := decodeRecord(t, rec)
	if r.Operation != record.KindResize || r.Result.Width != 80 || r.Result.Height != 40 {
		t.Errorf("record = %+v", r)
	}
	if r.Result.Size != rec.Body.Len() {
		t.Errorf("record size %d, body %d bytes", r.Result.Size, rec.Body.Len())
	}

	url := rec.Header().Get("X-Download-Url")
	if !strings.HasPrefix(url, "http://example.com/files/holiday-photo-") || !strings.HasSuffix(url, ".png") {
		t.Errorf("X-Download-Url = %q", url)
	}
	name := strings.TrimPrefix(url, "http://example.com/files/")
	if cd := rec.Header().Get("Content-Disposition"); cd != fmt.Sprintf(`attachment; filename="%s"`, name) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	download := env.do(httptest.NewRequest(http.MethodGet, "/files/"+name, nil))
	if download.Code != http.StatusOK || !bytes.Equal(download.Body.Bytes(), rec.Body.Bytes()) {
		t.Errorf("download status %d, %d bytes", download.Code, download.Body.Len())
	}

	entries, _ := env.ledger.List(context.Background(), 0)
	if len(entries) != 1 {
		t.Fatalf("history has %d entries", len(entries))
	}
	e := entries[0]
	if e.OperationType != "resize" || e.FileName != "Holiday Photo.png" || e.ResultURL != url || e.FileSize != rec.Body.Len() {
		t.Errorf("history entry = %+v", e)
	}
	if e.OriginalFormat != "png" || e.OutputFormat != "png" {
		t.Errorf("formats = %s -> %s", e.OriginalFormat, e.OutputFormat)
	}
}

func TestResize_Errors(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	img := pngBytes(t, 20, 20)

	tests := []struct {
		name       string
		fields     map[string]string
		wantStatus int
		wantMsg    string
		wantCode   string
	}{
		{"missing height", map[string]string{"width": "10"}, http.StatusBadRequest, "Width and height are required", ""},
		{"not a number", map[string]string{"width": "abc", "height": "10"}, http.StatusBadRequest, "", "INVALID_DIMENSIONS"},
		{"negative", map[string]string{"width": "-5", "height": "10"}, http.StatusBadRequest, "", "INVALID_DIMENSIONS"},
		{"over pixel limit", map[string]string{"width": "100000000", "height": "100000000", "keepAspectRatio": "false"}, http.StatusBadRequest, "", "INVALID_DIMENSIONS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(uploadRequest(t, "/api/resize", img, "a.png", "image/png", tt.fields))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body errorResponse
			decodeJSON(t, rec, &body)
			if tt.wantMsg != "" && body.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", body.Message, tt.wantMsg)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestCrop(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	img := pngBytes(t, 500, 500)

	rec := env.do(uploadRequest(t, "/api/crop", img, "a.png", "", map[string]string{
		"left": "400", "top": "400", "width": "300", "height": "300",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	r := decodeRecord(t, rec)
	if r.Result.Width != 100 || r.Result.Height != 100 {
		t.Errorf("result = %dx%d, want 100x100", r.Result.Width, r.Result.Height)
	}
	area, _ := r.Params["area"].(map[string]interface{})
	if area["left"] != float64(400) || area["width"] != float64(100) {
		t.Errorf("area = %v", r.Params["area"])
	}

	tests := []struct {
		name       string
		fields     map[string]string
		wantStatus int
		wantCode   string
	}{
		{"missing coordinate", map[string]string{"left": "0", "top": "0", "width": "10"}, http.StatusBadRequest, ""},
		{"out of bounds", map[string]string{"left": "600", "top": "0", "width": "10", "height": "10"}, http.StatusBadRequest, "OUT_OF_BOUNDS"},
		{"degenerate", map[string]string{"left": "0", "top": "0", "width": "0", "height": "10"}, http.StatusBadRequest, "DEGENERATE_CROP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(uploadRequest(t, "/api/crop", img, "a.png", "image/png", tt.fields))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body errorResponse
			decodeJSON(t, rec, &body)
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if tt.wantCode == "" && body.Message != "Crop coordinates are required" {
				t.Errorf("message = %q", body.Message)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	tests := []struct {
		name        string
		file        []byte
		fileName    string
		contentType string
		target      string
		wantStatus  int
		wantType    string
		wantCode    string
	}{
		{"png to jpg", pngBytes(t, 30, 20), "a.png", "image/png", "jpg", http.StatusOK, "image/jpeg", ""},
		{"png to webp", pngBytes(t, 30, 20), "a.png", "image/png", "WEBP", http.StatusOK, "image/webp", ""},
		{"text to pdf", []byte("hello\nworld"), "notes.txt", "text/plain", "pdf", http.StatusOK, "application/pdf", ""},
		{"gif target rejected", pngBytes(t, 30, 20), "a.png", "image/png", "gif", http.StatusUnsupportedMediaType, "", "UNSUPPORTED_FORMAT"},
		{"missing target", pngBytes(t, 30, 20), "a.png", "image/png", "", http.StatusBadRequest, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := map[string]string{}
			if tt.target != "" {
				fields["targetFormat"] = tt.target
			}
			rec := env.do(uploadRequest(t, "/api/convert", tt.file, tt.fileName, tt.contentType, fields))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantType != "" && rec.Header().Get("Content-Type") != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", rec.Header().Get("Content-Type"), tt.wantType)
			}
			if rec.Code != http.StatusOK {
				var body errorResponse
				decodeJSON(t, rec, &body)
				if body.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
				}
				if tt.target == "" && body.Message != "Target format is required" {
					t.Errorf("message = %q", body.Message)
				}
			}
		})
	}
}

func TestCompress_QualityDefaults(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	tests := []struct {
		quality string
		want    float64
	}{
		{"", 75},
		{"0", 75},
		{"abc", 75},
		{"40", 40},
		{"250", 100},
	}

	for _, tt := range tests {
		t.Run("quality="+tt.quality, func(t *testing.T) {
			fields := map[string]string{}
			if tt.quality != "" {
				fields["quality"] = tt.quality
			}
			rec := env.do(uploadRequest(t, "/api/compress", pngBytes(t, 40, 40), "a.png", "image/png", fields))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			r := decodeRecord(t, rec)
			if r.Params["quality"] != tt.want {
				t.Errorf("quality = %v, want %v", r.Params["quality"], tt.want)
			}
		})
	}
}

func TestCompress_TextRejected(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(uploadRequest(t, "/api/compress", []byte("plain text"), "a.txt", "text/plain", nil))

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d", rec.Code)
	}
	var body errorResponse
	decodeJSON(t, rec, &body)
	if body.Code != string(apperrors.CodeUnsupportedCompressionFormat) {
		t.Errorf("code = %q", body.Code)
	}
}

func TestOCR(t *testing.T) {
	confidence := 87.5
	words := 2
	rec := &fakeRecognizer{res: &ocr.Result{
		Text:       "Hello World",
		Confidence: &confidence,
		WordCount:  &words,
		DurationMs: 12,
		Provider:   ocr.KindRemote,
		Engine:     "api4ai",
	}}
	env := newTestEnv(t, rec, func(c *Config) { c.PublicURL = "https://cdn.example.org" })

	img := pngBytes(t, 10, 10)
	resp := env.do(uploadRequest(t, "/api/ocr", img, "Scan.png", "image/png", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}

	var body OCRResponse
	decodeJSON(t, resp, &body)
	if body.Text != "Hello World" || body.Provider != ocr.KindRemote || body.Engine != "api4ai" {
		t.Errorf("body = %+v", body)
	}
	if body.Confidence == nil || *body.Confidence != 87.5 || body.Words == nil || *body.Words != 2 {
		t.Errorf("confidence/words = %v/%v", body.Confidence, body.Words)
	}
	if !strings.HasPrefix(body.DownloadURL, "https://cdn.example.org/files/scan-") || !strings.HasSuffix(body.DownloadURL, ".txt") {
		t.Errorf("downloadUrl = %q", body.DownloadURL)
	}

	entries, _ := env.ledger.List(context.Background(), 0)
	if len(entries) != 1 {
		t.Fatalf("history has %d entries", len(entries))
	}
	e := entries[0]
	if e.ID != body.HistoryID {
		t.Errorf("historyId = %q, entry id = %q", body.HistoryID, e.ID)
	}
	if e.OperationType != "ocr" || e.OriginalFormat != "image/png" || e.OutputFormat != "text/plain" || e.FileSize != len(img) {
		t.Errorf("entry = %+v", e)
	}
	if e.Metadata["provider"] != ocr.KindRemote {
		t.Errorf("metadata = %v", e.Metadata)
	}

	name := strings.TrimPrefix(body.DownloadURL, "https://cdn.example.org/files/")
	path, err := env.store.Open(name)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	stored, _ := os.ReadFile(path)
	if string(stored) != "Hello World" {
		t.Errorf("stored text = %q", stored)
	}
}

func TestOCR_RecognitionFailed(t *testing.T) {
	env := newTestEnv(t, &fakeRecognizer{err: apperrors.NewRecognitionFailed(errors.New("engine down"))}, nil)
	rec := env.do(uploadRequest(t, "/api/ocr", pngBytes(t, 10, 10), "a.png", "image/png", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	var body errorResponse
	decodeJSON(t, rec, &body)
	if body.Code != "RECOGNITION_FAILED" {
		t.Errorf("code = %q", body.Code)
	}
	if env.ledger.Len() != 0 {
		t.Error("failed recognition should not be recorded")
	}
}

func TestUpload_Rejections(t *testing.T) {
	env := newTestEnv(t, nil, func(c *Config) { c.MaxUploadBytes = 1024 })

	tests := []struct {
		name    string
		path    string
		file    []byte
		ctype   string
		wantMsg string
	}{
		{"no file", "/api/resize", nil, "", msgNoFile},
		{"no file ocr", "/api/ocr", nil, "", msgNoOCRFile},
		{"unsupported type", "/api/compress", []byte("PK\x03\x04zipdata"), "application/zip", msgUnsupported},
		{"sniffed unsupported", "/api/compress", []byte("PK\x03\x04zipdata"), "", msgUnsupported},
		{"too large", "/api/compress", bytes.Repeat([]byte("a"), 2048), "text/plain", msgTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(uploadRequest(t, tt.path, tt.file, "f.bin", tt.ctype, map[string]string{"width": "1", "height": "1"}))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var body errorResponse
			decodeJSON(t, rec, &body)
			if body.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", body.Message, tt.wantMsg)
			}
		})
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/resize", strings.NewReader(`{"width": 10}`))
	req.Header.Set("Content-Type", "application/json")

	rec := env.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		env.ledger.Append(ctx, history.Entry{FileName: fmt.Sprintf("f%d.png", i), OperationType: "resize"})
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 4},
		{"?limit=2", 2},
		{"?limit=abc", 4},
	}

	for _, tt := range tests {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/history"+tt.query, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var body HistoryResponse
		decodeJSON(t, rec, &body)
		if len(body.History) != tt.want {
			t.Errorf("%q returned %d entries, want %d", tt.query, len(body.History), tt.want)
		}
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/history?limit=1", nil))
	var body HistoryResponse
	decodeJSON(t, rec, &body)
	if body.History[0].FileName != "f3.png" {
		t.Errorf("newest entry = %q, want f3.png", body.History[0].FileName)
	}
}

func TestHistory_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))

	if !strings.Contains(rec.Body.String(), `"history":[]`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestFiles_Rejections(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, path := range []string{"/files/missing.png", "/files/.hidden"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"wildcard", []string{"*"}, "http://any.example", "*"},
		{"listed origin echoed", []string{"http://app.example"}, "http://app.example", "http://app.example"},
		{"unlisted origin", []string{"http://app.example"}, "http://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, func(c *Config) { c.ClientOrigins = tt.origins })
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", tt.origin)

			rec := env.do(req)
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
			if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "X-Download-Url") {
				t.Error("download URL header should be exposed")
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/resize", nil)
	req.Header.Set("Origin", "http://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec := env.do(req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Errorf("Allow-Methods = %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request ID should be assigned")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = env.do(req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestPublicBase(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"request host", nil, "http://example.com"},
		{"forwarded proto", map[string]string{"X-Forwarded-Proto": "https, http"}, "https://example.com"},
		{"forwarded host", map[string]string{"X-Forwarded-Host": "api.example.org"}, "http://api.example.org"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := env.server.publicBase(req); got != tt.want {
				t.Errorf("publicBase() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"request error", badRequest("x"), http.StatusBadRequest},
		{"unreadable image", apperrors.NewUnreadableImage(nil), http.StatusBadRequest},
		{"out of bounds", apperrors.NewOutOfBounds(1, 1, 0, 0), http.StatusBadRequest},
		{"unsupported format", apperrors.NewUnsupportedFormat("heic"), http.StatusUnsupportedMediaType},
		{"unsupported compression", apperrors.NewUnsupportedCompressionFormat("bmp"), http.StatusUnsupportedMediaType},
		{"recognition failed", apperrors.NewRecognitionFailed(nil), http.StatusBadGateway},
		{"wrapped code", fmt.Errorf("op: %w", apperrors.NewDegenerateCrop(0, 0)), http.StatusBadRequest},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unknown", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseHelpers(t *testing.T) {
	for _, v := range []string{"true", "1", "YES", " on "} {
		if !parseBool(v) {
			t.Errorf("parseBool(%q) = false", v)
		}
	}
	for _, v := range []string{"", "false", "0", "no", "maybe"} {
		if parseBool(v) {
			t.Errorf("parseBool(%q) = true", v)
		}
	}

	quality := []struct {
		in   string
		want int
	}{
		{"", 75}, {"0", 75}, {"x", 75}, {"55", 55}, {"55.6", 56}, {"-3", -3}, {"1e9", 1000},
	}
	for _, tt := range quality {
		if got := parseQuality(tt.in); got != tt.want {
			t.Errorf("parseQuality(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "utility-app.pid")
	env := newTestEnv(t, nil, func(c *Config) { c.PIDFile = pidFile })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(pidFile); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("PID file was not written")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("PID file should be removed on shutdown")
	}
}

func TestRun_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	env := newTestEnv(t, nil, func(c *Config) { c.Addr = ln.Addr().String() })
	if err := env.server.Run(context.Background()); err == nil {
		t.Error("Run() should fail when the address is in use")
	}
}

func TestRun_ServesRequests(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	env := newTestEnv(t, nil, func(c *Config) { c.Addr = addr })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.server.Run(ctx)

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://" + addr + "/health")
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("GET /health = %d %s", resp.StatusCode, body)
	}
}
