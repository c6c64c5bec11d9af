package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/fuel-price-ocr/internal/scanning"
)

// maxUploadSize fits high-resolution phone photos
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes {"error": message} with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// handleIndex reports that the API is up
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Fuel Price OCR API",
		"status":  "running",
	})
}

// handleHealth is unauthenticated so load balancers can probe it
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// formImage returns the uploaded photo from the "image" field, or "file" as used by older clients
func formImage(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	f, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return r.FormFile("file")
	}
	return f, header, err
}

func optionalFloat(r *http.Request, field string) (*float64, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", field, raw)
	}
	return &v, nil
}

// parseScanRequest reads the optional form fields sent with an upload
func parseScanRequest(r *http.Request) (ScanRequest, error) {
	var (
		req ScanRequest
		err error
	)
	if req.Latitude, err = optionalFloat(r, "latitude"); err != nil {
		return req, err
	}
	if req.Longitude, err = optionalFloat(r, "longitude"); err != nil {
		return req, err
	}
	if req.Accuracy, err = optionalFloat(r, "accuracy"); err != nil {
		return req, err
	}
	if raw := strings.TrimSpace(r.FormValue("auto_submit")); raw != "" {
		if req.AutoSubmit, err = strconv.ParseBool(raw); err != nil {
			return req, fmt.Errorf("invalid auto_submit: %q", raw)
		}
	}
	req.Layout = strings.TrimSpace(r.FormValue("layout"))
	return req, nil
}

// contentTypeFor prefers the part header and falls back to the file extension
func contentTypeFor(header *multipart.FileHeader) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType != "" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// handleProcess extracts prices from an uploaded photo
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "File is too large. Maximum size is 50MB."
		}
		jsonError(w, msg, http.StatusBadRequest)
		return
	}

	f, header, err := formImage(r)
	if err != nil {
		slog.Error("Error getting image from form", "error", err)
		jsonError(w, "No image provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	req, err := parseScanRequest(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading image data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading image. Please try again.", http.StatusInternalServerError)
		return
	}

	scan, err := s.service.ProcessImage(r.Context(), header.Filename, data, contentTypeFor(header), req)
	if err != nil {
		if errors.Is(err, scanning.ErrInvalidImage) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Error processing image", "filename", header.Filename, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, scan)
}

// handleListScans returns all traced scans
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	scans, err := s.service.ListScans()
	if err != nil {
		slog.Error("Error listing scans", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

// handleGetScan returns a single traced scan
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.service.GetScan(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrScanNotFound) {
			jsonError(w, "Scan not found", http.StatusNotFound)
			return
		}
		slog.Error("Error getting scan", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

// handleGetScanImage returns the photo behind a traced scan
func (s *Server) handleGetScanImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetScanImage(r.PathValue("id"))
	if err != nil {
		jsonError(w, "Image not found", http.StatusNotFound)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
