package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultStrategyTimeout bounds a single strategy attempt
const DefaultStrategyTimeout = 30 * time.Second

// Pipeline tries strategies in order until one yields valid readings
type Pipeline struct {
	strategies []Strategy
	layouts    *Layouts
	timeout    time.Duration
	logger     *slog.Logger
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithLayouts sets the named layouts used for positional mapping
func WithLayouts(layouts *Layouts) PipelineOption {
	return func(p *Pipeline) { p.layouts = layouts }
}

// WithStrategyTimeout bounds each attempt
func WithStrategyTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the logger used for attempt tracing
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline creates a pipeline that tries strategies in the given order
func NewPipeline(strategies []Strategy, opts ...PipelineOption) *Pipeline {
	layouts, _ := NewLayouts()
	p := &Pipeline{
		strategies: strategies,
		layouts:    layouts,
		timeout:    DefaultStrategyTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Strategies returns the strategy names in fallback order
func (p *Pipeline) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name()
	}
	return names
}

// ExtractOptions holds per-extraction settings
type ExtractOptions struct {
	Layout string
}

// ExtractOption tunes a single extraction
type ExtractOption func(*ExtractOptions)

// WithLayout selects a named layout for positional mapping
func WithLayout(name string) ExtractOption {
	return func(o *ExtractOptions) { o.Layout = name }
}

// Extract reads fuel prices from an image.
// Only undecodable images return an error; when nothing is readable the result has no readings.
func (p *Pipeline) Extract(ctx context.Context, imageData []byte, contentType string, opts ...ExtractOption) (*ExtractionResult, error) {
	var o ExtractOptions
	for _, opt := range opts {
		opt(&o)
	}

	img, err := DecodeImage(imageData, contentType)
	if err != nil {
		return nil, err
	}
	layout := p.layouts.Get(o.Layout)

	result := &ExtractionResult{Readings: []PriceReading{}, Layout: layout.Name}
	for _, strategy := range p.strategies {
		attempt, readings := p.attempt(ctx, strategy, img, layout)
		result.Attempts = append(result.Attempts, attempt)
		if len(readings) > 0 {
			result.Readings = readings
			result.RawText = attempt.RawText
			result.Strategy = strategy.Name()
			return result, nil
		}
		// keep the last readable text for diagnostics
		if attempt.RawText != "" {
			result.RawText = attempt.RawText
		}
		if ctx.Err() != nil {
			p.logger.Warn("Extraction cancelled", "error", ctx.Err())
			break
		}
	}

	p.logger.Info("No fuel prices found", "attempts", len(result.Attempts))
	return result, nil
}

func (p *Pipeline) attempt(ctx context.Context, strategy Strategy, img *Image, layout *Layout) (Attempt, []PriceReading) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	rec, err := strategy.Recognize(ctx, img)

	attempt := Attempt{Strategy: strategy.Name(), Duration: time.Since(start)}
	if rec != nil {
		attempt.RawText = rec.RawText
	}

	var readings []PriceReading
	if err == nil {
		readings, err = resolve(rec, layout)
	}
	if err == nil && len(readings) == 0 {
		err = fmt.Errorf("%w: no valid prices", ErrStrategyFailed)
	}
	attempt.Readings = len(readings)

	if err != nil {
		attempt.Error = err.Error()
		level := slog.LevelWarn
		if errors.Is(err, ErrStrategyUnavailable) {
			level = slog.LevelInfo
		}
		p.logger.Log(ctx, level, "Strategy attempt failed",
			"strategy", attempt.Strategy,
			"duration_ms", attempt.Duration.Milliseconds(),
			"raw_text", truncate(attempt.RawText, 1<<10),
			"error", err,
		)
		return attempt, nil
	}

	p.logger.Info("Strategy found prices",
		"strategy", attempt.Strategy,
		"duration_ms", attempt.Duration.Milliseconds(),
		"readings", len(readings),
		"raw_text", truncate(attempt.RawText, 1<<10),
	)
	return attempt, readings
}

// resolve turns a recognition into readings: labeled readings win, then
// detections in vertical order, then price tokens in the raw text.
func resolve(rec *Recognition, layout *Layout) ([]PriceReading, error) {
	if rec == nil {
		return nil, nil
	}
	if len(rec.Readings) > 0 {
		return rec.Readings, nil
	}
	if len(rec.Detections) > 0 {
		return layout.Map(CandidatesFromDetections(FilterDetections(rec.Detections)))
	}
	return layout.Map(ExtractCandidates(rec.RawText))
}
