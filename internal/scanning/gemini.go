package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// Gemini reads price displays with Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	limiter *rate.Limiter
}

// NewGemini creates a new Gemini strategy. A nil limiter means no client-side quota.
func NewGemini(apiKey string, modelName string, limiter *rate.Limiter) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &Gemini{
		client:  client,
		model:   model,
		limiter: limiter,
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Recognize asks Gemini for the display's prices, top to bottom
func (g *Gemini) Recognize(ctx context.Context, img *Image) (*Recognition, error) {
	if g.limiter != nil && !g.limiter.Allow() {
		return nil, fmt.Errorf("%w: gemini rate limit reached", ErrStrategyUnavailable)
	}

	pngData, err := img.PNG()
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	parts := []genai.Part{
		genai.ImageData("png", pngData),
		genai.Text(pricesPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("%w: generating content: %v", ErrStrategyFailed, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no response from gemini", ErrStrategyFailed)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	text := responseText.String()
	detections, err := parseVisionPrices(text)
	if err != nil {
		return &Recognition{RawText: text}, fmt.Errorf("parsing gemini response: %w", err)
	}
	return &Recognition{RawText: text, Detections: detections}, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
