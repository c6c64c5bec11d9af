package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidImage is returned when the uploaded bytes cannot be decoded as an image.
	// It is the only error Pipeline.Extract surfaces to callers.
	ErrInvalidImage = errors.New("invalid image")

	// ErrStrategyUnavailable means a strategy cannot run in this deployment (missing key, binary, language data, quota).
	ErrStrategyUnavailable = errors.New("strategy unavailable")

	// ErrStrategyFailed means a strategy ran but produced nothing usable.
	ErrStrategyFailed = errors.New("strategy failed")

	// ErrUnmappedCount means the number of valid prices has no fuel order in the layout.
	ErrUnmappedCount = errors.New("price count has no fuel order")
)

// FuelType names a fuel grade shown on a station display
type FuelType string

const (
	Benzin95 FuelType = "Benzin 95"
	Benzin98 FuelType = "Benzin 98"
	Diesel   FuelType = "Diesel"
)

// FuelTypes lists the known fuel types in display order
var FuelTypes = []FuelType{Benzin95, Benzin98, Diesel}

// Key returns the identifier used when submitting prices
func (f FuelType) Key() string {
	switch f {
	case Benzin95:
		return "benzin_95"
	case Benzin98:
		return "benzin_98"
	case Diesel:
		return "diesel"
	}
	return strings.ToLower(strings.ReplaceAll(string(f), " ", "_"))
}

// ParseFuelType accepts "Benzin 95", "Benzin95", "benzin_95" and similar spellings
func ParseFuelType(s string) (FuelType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(norm)
	for _, f := range FuelTypes {
		if norm == strings.ReplaceAll(strings.ToLower(string(f)), " ", "") {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown fuel type %q", s)
}

// PriceReading is a validated price labeled with its fuel type
type PriceReading struct {
	Type  FuelType        `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// MarshalJSON writes the value as a JSON number instead of decimal's default quoted string
func (r PriceReading) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  FuelType    `json:"type"`
		Value json.Number `json:"value"`
	}{
		Type:  r.Type,
		Value: json.Number(r.Value.String()),
	})
}

// RawDetection is one text fragment reported by a positional strategy
type RawDetection struct {
	Text             string  `json:"text"`
	VerticalPosition float64 `json:"vertical_position"`
	Confidence       float64 `json:"confidence"`
}

// Recognition is what a strategy hands back to the pipeline
type Recognition struct {
	// RawText is the unparsed strategy output, kept for diagnostics
	RawText string
	// Detections is set by strategies that know where each fragment sits on the display
	Detections []RawDetection
	// Readings is set by strategies that label prices themselves
	Readings []PriceReading
}

// Attempt records one strategy run
type Attempt struct {
	Strategy string        `json:"strategy"`
	RawText  string        `json:"raw_text,omitempty"`
	Error    string        `json:"error,omitempty"`
	Readings int           `json:"readings"`
	Duration time.Duration `json:"duration"`
}

// ExtractionResult is the pipeline output
type ExtractionResult struct {
	Readings []PriceReading `json:"readings"`
	RawText  string         `json:"raw_text"`
	Strategy string         `json:"strategy,omitempty"`
	Layout   string         `json:"layout"` // layout actually applied, after fallback
	Attempts []Attempt      `json:"attempts,omitempty"`
}

// Prices returns the readings keyed by submission key
func (r *ExtractionResult) Prices() map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(r.Readings))
	for _, reading := range r.Readings {
		prices[reading.Type.Key()] = reading.Value
	}
	return prices
}

// Strategy turns an image into text or price candidates
type Strategy interface {
	// Name identifies the strategy in logs and traces
	Name() string
	// Recognize runs the strategy against a decoded image
	Recognize(ctx context.Context, img *Image) (*Recognition, error)
}
