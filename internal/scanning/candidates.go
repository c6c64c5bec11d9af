package scanning

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// numberToken takes whole decimal numbers so "1.7234" is not cut down to 1.723
	numberToken = regexp.MustCompile(`\d+\.\d+`)
	priceShape  = regexp.MustCompile(`^\d{1,2}\.\d{1,3}$`)

	MinPrice = decimal.NewFromInt(1)
	MaxPrice = decimal.NewFromInt(3)
)

// normalizeSeparators treats ',' as a decimal separator
func normalizeSeparators(text string) string {
	return strings.ReplaceAll(text, ",", ".")
}

// validPrice reports whether v is a plausible CHF/liter price
func validPrice(v decimal.Decimal) bool {
	return v.GreaterThanOrEqual(MinPrice) && v.LessThanOrEqual(MaxPrice)
}

// scanCandidates returns every in-range price token in text, in order of appearance
func scanCandidates(text string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, tok := range numberToken.FindAllString(normalizeSeparators(text), -1) {
		if !priceShape.MatchString(tok) {
			continue
		}
		v, err := decimal.NewFromString(tok)
		if err != nil {
			continue
		}
		// out-of-range values are usually stray digits from other signage
		if !validPrice(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// dedupe drops repeated values, keeping the first occurrence
func dedupe(values []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		seen := false
		for _, o := range out {
			if o.Equal(v) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, v)
		}
	}
	return out
}

// ExtractCandidates finds validated, deduplicated price values in OCR text
func ExtractCandidates(text string) []decimal.Decimal {
	return dedupe(scanCandidates(text))
}

// CandidatesFromDetections collects prices fragment by fragment in the given order
func CandidatesFromDetections(detections []RawDetection) []decimal.Decimal {
	var all []decimal.Decimal
	for _, d := range detections {
		all = append(all, scanCandidates(d.Text)...)
	}
	return dedupe(all)
}
