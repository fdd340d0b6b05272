package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Thangam2001/Utility-App/internal/compress"
	"github.com/Thangam2001/Utility-App/internal/history"
	"github.com/Thangam2001/Utility-App/internal/ocr"
	"github.com/Thangam2001/Utility-App/internal/pipeline"
	"github.com/Thangam2001/Utility-App/internal/storage"
	"github.com/Thangam2001/Utility-App/internal/transform"
)

const (
	msgNoFile    = "No file provided"
	msgNoOCRFile = "No file uploaded"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// OCRResponse is the body of POST /api/ocr
type OCRResponse struct {
	Text        string           `json:"text"`
	Confidence  *float64         `json:"confidence"`
	DurationMs  int64            `json:"durationMs"`
	Words       *int             `json:"words"`
	Provider    ocr.ProviderKind `json:"provider"`
	Engine      string           `json:"engine"`
	DownloadURL string           `json:"downloadUrl"`
	HistoryID   string           `json:"historyId,omitempty"`
}

// HistoryResponse is the body of GET /api/history
type HistoryResponse struct {
	History []history.Entry `json:"history"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET "+storage.FilesRoute+"{name}", s.handleFile)

	mux.HandleFunc("POST /api/ocr", s.handleOCR)
	mux.HandleFunc("POST /api/resize", s.handleResize)
	mux.HandleFunc("POST /api/convert", s.handleConvert)
	mux.HandleFunc("POST /api/crop", s.handleCrop)
	mux.HandleFunc("POST /api/compress", s.handleCompress)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	mux.HandleFunc("/", s.handleNotFound)

	return Chain(
		requestIDMiddleware(),
		loggingMiddleware(s.logger),
		recoveryMiddleware(s.logger),
		corsMiddleware(s.origins),
		securityHeadersMiddleware(),
	)(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusNotFound, errorResponse{
		Message: "Resource not found",
		Path:    r.URL.RequestURI(),
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	path, err := s.store.Open(r.PathValue("name"))
	if err != nil {
		s.handleNotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r, msgNoFile)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	width, height := r.FormValue("width"), r.FormValue("height")
	if width == "" || height == "" {
		s.respondError(w, r, badRequest("Width and height are required"))
		return
	}

	out, err := s.processor.Resize(r.Context(), up, number(width), number(height), parseBool(r.FormValue("keepAspectRatio")))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondArtifact(w, r, up, out)
}

func (s *Server) handleCrop(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r, msgNoFile)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	for _, key := range []string{"left", "top", "width", "height"} {
		if _, ok := r.MultipartForm.Value[key]; !ok {
			s.respondError(w, r, badRequest("Crop coordinates are required"))
			return
		}
	}

	region := transform.Region{
		Left:   number(r.FormValue("left")),
		Top:    number(r.FormValue("top")),
		Width:  number(r.FormValue("width")),
		Height: number(r.FormValue("height")),
	}

	out, err := s.processor.Crop(r.Context(), up, region)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondArtifact(w, r, up, out)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r, msgNoFile)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	target := strings.TrimSpace(r.FormValue("targetFormat"))
	if target == "" {
		s.respondError(w, r, badRequest("Target format is required"))
		return
	}

	out, err := s.processor.Convert(r.Context(), up, target)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondArtifact(w, r, up, out)
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r, msgNoFile)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out, err := s.processor.Compress(r.Context(), up, parseQuality(r.FormValue("quality")))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondArtifact(w, r, up, out)
}

func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r, msgNoOCRFile)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.ocrTimeout)
	defer cancel()

	res, err := s.processor.Recognize(ctx, up)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	file, err := s.store.SaveText(r.Context(), res.Text, up.FileName)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("failed to store recognized text: %w", err))
		return
	}
	downloadURL := storage.URL(s.publicBase(r), file.Name)

	entry := s.recordHistory(r, history.FromRecognition(up.FileName, up.MimeType, len(up.Data), res, downloadURL))

	resp := OCRResponse{
		Text:        res.Text,
		Confidence:  res.Confidence,
		DurationMs:  res.DurationMs,
		Words:       res.WordCount,
		Provider:    res.Provider,
		Engine:      res.Engine,
		DownloadURL: downloadURL,
	}
	if entry != nil {
		resp.HistoryID = entry.ID
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := s.ledger.List(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("failed to list history: %w", err))
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	respondJSON(w, http.StatusOK, HistoryResponse{History: entries})
}

// respondArtifact stores the produced buffer, records the operation and
// streams the bytes back with the download URL and record in headers.
func (s *Server) respondArtifact(w http.ResponseWriter, r *http.Request, up pipeline.Upload, out *pipeline.Output) {
	file, err := s.store.Save(r.Context(), out.Data, up.FileName, out.Extension())
	if err != nil {
		s.respondError(w, r, fmt.Errorf("failed to store result: %w", err))
		return
	}
	downloadURL := storage.URL(s.publicBase(r), file.Name)

	meta, err := json.Marshal(out.Record)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("failed to encode record: %w", err))
		return
	}

	s.recordHistory(r, history.FromRecord(up.FileName, out.Record, downloadURL))

	h := w.Header()
	h.Set("Content-Type", out.MimeType())
	h.Set("Content-Length", strconv.Itoa(len(out.Data)))
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	h.Set("X-Download-Url", downloadURL)
	h.Set("X-Image-Metadata", string(meta))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Data); err != nil {
		s.logger.WithRequestID(RequestIDFrom(r.Context())).WithError(err).Debug("Client went away during response")
	}
}

// recordHistory appends entry to the ledger. A ledger failure does not fail
// the request; the result has already been produced and stored.
func (s *Server) recordHistory(r *http.Request, entry history.Entry) *history.Entry {
	saved, err := s.ledger.Append(r.Context(), entry)
	if err != nil {
		s.logger.WithRequestID(RequestIDFrom(r.Context())).
			WithOperation(entry.OperationType).
			WithFile(entry.FileName).
			WithError(err).
			Warn("Failed to record operation history")
		return nil
	}
	return saved
}

// publicBase is the externally visible scheme and host, taken from the
// configured public URL or from the request and its proxy headers.
func (s *Server) publicBase(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL
	}

	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		proto = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}

	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return proto + "://" + host
}

// number parses a form value. Unparsable values become NaN, which the
// transforms reject with their own error kinds.
func number(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// parseQuality falls back to the default quality for empty, zero or
// non-numeric values.
func parseQuality(v string) int {
	q := number(v)
	if math.IsNaN(q) || math.IsInf(q, 0) || q == 0 {
		return compress.DefaultQuality
	}
	// the engine clamps to [1,100]; this only keeps the conversion in range
	return int(math.Round(math.Max(-1000, math.Min(1000, q))))
}
