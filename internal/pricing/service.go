package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zombor/fuel-price-ocr/internal/scanning"
)

// ErrTraceDisabled is returned by trace lookups when no trace store is configured
var ErrTraceDisabled = errors.New("scan trace is disabled")

// Extractor reads fuel prices from an image
type Extractor interface {
	Extract(ctx context.Context, imageData []byte, contentType string, opts ...scanning.ExtractOption) (*scanning.ExtractionResult, error)
}

// IDGenerator generates unique IDs for scans
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Service runs scans and, when configured, traces and submits them.
// db, storage and submitter may be nil.
type Service struct {
	extractor   Extractor
	db          DB
	storage     Storage
	submitter   Submitter
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID scan IDs and the wall clock
func NewService(extractor Extractor, db DB, storage Storage, submitter Submitter) *Service {
	return NewServiceWithDeps(extractor, db, storage, submitter, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(extractor Extractor, db DB, storage Storage, submitter Submitter, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		extractor:   extractor,
		db:          db,
		storage:     storage,
		submitter:   submitter,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// TraceEnabled reports whether scans are recorded
func (s *Service) TraceEnabled() bool {
	return s.db != nil
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// phone cameras produce long names
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "scan"
	}
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	return base + ext
}

// ProcessImage extracts prices from a photo. Only an undecodable image is an error;
// trace and submission failures are logged and never fail the scan.
func (s *Service) ProcessImage(ctx context.Context, filename string, data []byte, contentType string, req ScanRequest) (*Scan, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	result, err := s.extractor.Extract(ctx, data, contentType, scanning.WithLayout(req.Layout))
	if err != nil {
		slog.Error("Failed to extract prices",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("extracting prices: %w", err)
	}

	layout := result.Layout
	if layout == "" {
		layout = scanning.DefaultLayoutName
	}

	scan := &Scan{
		ID:          id,
		Success:     len(result.Readings) > 0,
		Prices:      Prices(result.Prices()),
		Readings:    result.Readings,
		RawText:     result.RawText,
		Strategy:    result.Strategy,
		Timestamp:   now,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Accuracy:    req.Accuracy,
		Layout:      layout,
		ContentType: contentType,
		Attempts:    result.Attempts,
	}

	if s.shouldSubmit(req, scan) {
		s.submit(ctx, scan)
	}
	s.trace(scan, filename, data)

	slog.Info("Scan processed",
		"id", scan.ID,
		"success", scan.Success,
		"strategy", scan.Strategy,
		"readings", len(scan.Readings),
		"submitted", scan.Submitted,
	)
	return scan, nil
}

func (s *Service) shouldSubmit(req ScanRequest, scan *Scan) bool {
	if !req.AutoSubmit {
		return false
	}
	switch {
	case s.submitter == nil:
		slog.Warn("Auto submit requested but no submitter is configured", "id", scan.ID)
		return false
	case !req.HasLocation():
		slog.Warn("Auto submit requested without coordinates", "id", scan.ID)
		return false
	case !scan.Success:
		return false
	}
	return true
}

func (s *Service) submit(ctx context.Context, scan *Scan) {
	sub := Submission{
		ScanID:    scan.ID,
		Latitude:  *scan.Latitude,
		Longitude: *scan.Longitude,
		Accuracy:  scan.Accuracy,
		Prices:    scan.Prices,
		Timestamp: scan.Timestamp,
	}
	if err := s.submitter.Submit(ctx, sub); err != nil {
		slog.Warn("Failed to submit prices", "id", scan.ID, "error", err)
		scan.SubmitError = err.Error()
		return
	}
	scan.Submitted = true
}

// trace records the scan and its photo when a trace store is configured
func (s *Service) trace(scan *Scan, filename string, data []byte) {
	if s.db == nil {
		return
	}

	if s.storage != nil {
		savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", scan.ID, sanitizeFilename(filename)), data)
		if err != nil {
			slog.Warn("Failed to store scan image", "id", scan.ID, "error", err)
		} else {
			scan.ImagePath = savedPath
		}
	}

	if err := s.db.SaveScan(scan); err != nil {
		slog.Warn("Failed to save scan trace", "id", scan.ID, "error", err)
		if scan.ImagePath != "" {
			s.storage.Delete(scan.ImagePath)
			scan.ImagePath = ""
		}
	}
}

// GetScan retrieves a traced scan by ID
func (s *Service) GetScan(id string) (*Scan, error) {
	if s.db == nil {
		return nil, ErrTraceDisabled
	}
	scan, err := s.db.GetScan(id)
	if err != nil {
		return nil, fmt.Errorf("getting scan: %w", err)
	}
	return scan, nil
}

// ListScans returns all traced scans
func (s *Service) ListScans() ([]*Scan, error) {
	if s.db == nil {
		return nil, ErrTraceDisabled
	}
	scans, err := s.db.ListScans()
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	return scans, nil
}

// GetScanImage retrieves the stored photo for a scan
func (s *Service) GetScanImage(id string) ([]byte, string, error) {
	scan, err := s.GetScan(id)
	if err != nil {
		return nil, "", err
	}
	if s.storage == nil || scan.ImagePath == "" {
		return nil, "", fmt.Errorf("%w: no image for %s", ErrScanNotFound, id)
	}

	data, err := s.storage.Get(scan.ImagePath)
	if err != nil {
		return nil, "", fmt.Errorf("getting scan image: %w", err)
	}
	return data, scan.ContentType, nil
}
