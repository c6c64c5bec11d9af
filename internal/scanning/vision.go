package scanning

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// MinDetectionConfidence is the confidence a fragment must exceed to be kept
const MinDetectionConfidence = 0.5

// pricesPrompt is shared by the remote vision strategies
const pricesPrompt = `You are reading a photo of a gas station LED price display.

Read every fuel price shown on the display and return them ordered from the top of the display to the bottom.

Return ONLY a JSON array of numbers, for example:
[1.72, 1.86, 1.65]

Important:
- Use a dot as the decimal separator
- Include only prices per liter, no labels, currency or other numbers
- If no price is readable, return []
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// cleanNumeric keeps digits and decimal points, treating ',' as a decimal point
func cleanNumeric(s string) string {
	s = normalizeSeparators(s)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

// FilterDetections drops low-confidence and non-numeric fragments, cleans the rest
// and orders them top of the display first.
func FilterDetections(detections []RawDetection) []RawDetection {
	kept := make([]RawDetection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence <= MinDetectionConfidence || !hasDigit(d.Text) {
			continue
		}
		d.Text = cleanNumeric(d.Text)
		kept = append(kept, d)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].VerticalPosition < kept[j].VerticalPosition
	})
	return kept
}

// stripCodeFence removes markdown fences a model may wrap around its answer
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseVisionPrices parses a model's JSON array answer into ordered detections.
// Remote models report order rather than geometry, so the array index is the position.
func parseVisionPrices(text string) ([]RawDetection, error) {
	text = stripCodeFence(text)

	start := strings.Index(text, "[")
	if start == -1 {
		return nil, fmt.Errorf("%w: no JSON array found in response", ErrStrategyFailed)
	}
	end := strings.LastIndex(text, "]")
	if end < start {
		return nil, fmt.Errorf("%w: invalid JSON array in response", ErrStrategyFailed)
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling json: %v", ErrStrategyFailed, err)
	}

	detections := make([]RawDetection, 0, len(items))
	for i, item := range items {
		var value string
		var num json.Number
		if err := json.Unmarshal(item, &num); err == nil {
			value = num.String()
		} else if err := json.Unmarshal(item, &value); err != nil {
			return nil, fmt.Errorf("%w: price %d is neither number nor string", ErrStrategyFailed, i)
		}
		detections = append(detections, RawDetection{
			Text:             value,
			VerticalPosition: float64(i),
			Confidence:       1,
		})
	}
	return detections, nil
}
