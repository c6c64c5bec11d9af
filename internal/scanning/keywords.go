package scanning

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

type labelPattern struct {
	re   *regexp.Regexp
	fuel FuelType
}

// Checked in order; the first match for a fuel type wins.
// A bare 95 or 98 only counts as a label when it stands alone, not as the tail of a price like 1.95.
var labelPatterns = []labelPattern{
	{regexp.MustCompile(`benzin\s*95\D*?(\d+\.\d+)`), Benzin95},
	{regexp.MustCompile(`(?:^|[^\d.])95\b\D*?(\d+\.\d+)`), Benzin95},
	{regexp.MustCompile(`benzin\s*98\D*?(\d+\.\d+)`), Benzin98},
	{regexp.MustCompile(`(?:^|[^\d.])98\b\D*?(\d+\.\d+)`), Benzin98},
	{regexp.MustCompile(`diesel\D*?(\d+\.\d+)`), Diesel},
	{regexp.MustCompile(`super\s*95\D*?(\d+\.\d+)`), Benzin95},
	{regexp.MustCompile(`super\s*98\D*?(\d+\.\d+)`), Benzin98},
}

// ParseLabeled looks for prices next to fuel labels such as "Benzin 95: 1.75" or "Diesel 1,80".
// Readings come back in display order (Benzin 95, Benzin 98, Diesel).
func ParseLabeled(text string) []PriceReading {
	text = strings.ToLower(normalizeSeparators(text))

	found := make(map[FuelType]decimal.Decimal)
	for _, p := range labelPatterns {
		if _, ok := found[p.fuel]; ok {
			continue
		}
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := decimal.NewFromString(m[1])
		if err != nil || !validPrice(v) {
			continue
		}
		found[p.fuel] = v
	}

	var readings []PriceReading
	for _, f := range FuelTypes {
		if v, ok := found[f]; ok {
			readings = append(readings, PriceReading{Type: f, Value: v})
		}
	}
	return readings
}

// labeled wraps a text strategy so labeled prices take precedence over positional mapping
type labeled struct {
	inner Strategy
}

// WithLabels parses the inner strategy's text for fuel labels first.
// When no labels are found the text is left for positional mapping.
func WithLabels(inner Strategy) Strategy {
	return &labeled{inner: inner}
}

func (l *labeled) Name() string {
	return l.inner.Name()
}

func (l *labeled) Recognize(ctx context.Context, img *Image) (*Recognition, error) {
	rec, err := l.inner.Recognize(ctx, img)
	if err != nil {
		return nil, err
	}
	if len(rec.Readings) == 0 {
		rec.Readings = ParseLabeled(rec.RawText)
	}
	return rec, nil
}
