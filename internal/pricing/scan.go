package pricing

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zombor/fuel-price-ocr/internal/scanning"
)

// Prices maps submission keys (benzin_95, benzin_98, diesel) to values
type Prices map[string]decimal.Decimal

// MarshalJSON writes values as JSON numbers
func (p Prices) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.Number, len(p))
	for k, v := range p {
		out[k] = json.Number(v.String())
	}
	return json.Marshal(out)
}

// ScanRequest carries the optional form fields sent with an upload
type ScanRequest struct {
	Latitude   *float64
	Longitude  *float64
	Accuracy   *float64
	AutoSubmit bool
	Layout     string
}

// HasLocation reports whether both coordinates were provided
func (r ScanRequest) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Scan is the outcome of processing one photo
type Scan struct {
	ID          string                  `json:"id"`
	Success     bool                    `json:"success"`
	Prices      Prices                  `json:"prices"`
	Readings    []scanning.PriceReading `json:"readings"`
	RawText     string                  `json:"raw_text"`
	Strategy    string                  `json:"strategy,omitempty"`
	Timestamp   time.Time               `json:"timestamp"`
	Latitude    *float64                `json:"latitude,omitempty"`
	Longitude   *float64                `json:"longitude,omitempty"`
	Accuracy    *float64                `json:"accuracy,omitempty"`
	Layout      string                  `json:"layout"`
	Submitted   bool                    `json:"submitted"`
	SubmitError string                  `json:"submit_error,omitempty"`
	ImagePath   string                  `json:"image_path,omitempty"`
	ContentType string                  `json:"content_type,omitempty"`
	Attempts    []scanning.Attempt      `json:"attempts,omitempty"`
}
