package scanning

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"
)

const tesseractInitTimeout = 10 * time.Second

// TesseractConfig configures the local tesseract engine
type TesseractConfig struct {
	Binary      string   // binary name or absolute path; default "tesseract"
	TessdataDir string   // optional --tessdata-dir
	Languages   []string // dictionary languages for generic OCR; default deu, fra, ita
	TempDir     string   // where preprocessed images are written; default os.TempDir()
}

// Tesseract is the process-wide handle to the local OCR engine.
// Probing the binary and its language data happens once, on first use or via Ready.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner

	once      sync.Once
	installed map[string]bool
	initErr   error
}

// NewTesseract creates an engine that shells out to the tesseract binary
func NewTesseract(cfg TesseractConfig) *Tesseract {
	return NewTesseractWithRunner(cfg, execRunner{})
}

// NewTesseractWithRunner creates an engine with a custom Runner for testing
func NewTesseractWithRunner(cfg TesseractConfig, runner Runner) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"deu", "fra", "ita"}
	}
	return &Tesseract{cfg: cfg, runner: runner}
}

// Ready initializes the engine if needed and reports whether it can run
func (t *Tesseract) Ready(ctx context.Context) error {
	t.once.Do(func() {
		// a cancelled first request must not poison the cached result
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tesseractInitTimeout)
		defer cancel()
		t.installed, t.initErr = t.listLanguages(ctx)
		if t.initErr == nil {
			slog.Info("Tesseract ready", "binary", t.cfg.Binary, "languages", len(t.installed))
		}
	})
	return t.initErr
}

func (t *Tesseract) listLanguages(ctx context.Context) (map[string]bool, error) {
	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, t.withTessdata("--list-langs")...)
	if err != nil {
		return nil, fmt.Errorf("%w: tesseract not usable: %v", ErrStrategyUnavailable, err)
	}
	// older releases print the list to stderr
	langs := make(map[string]bool)
	for _, ln := range strings.Split(string(out)+"\n"+string(errb), "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "List of available languages") || strings.ContainsAny(ln, " :") {
			continue
		}
		langs[ln] = true
	}
	if len(langs) == 0 {
		return nil, fmt.Errorf("%w: tesseract has no language data", ErrStrategyUnavailable)
	}
	return langs, nil
}

func (t *Tesseract) withTessdata(args ...string) []string {
	if t.cfg.TessdataDir == "" {
		return args
	}
	return append([]string{"--tessdata-dir", t.cfg.TessdataDir}, args...)
}

// digitLanguage picks the model used for whitelisted digit recognition
func (t *Tesseract) digitLanguage() (string, error) {
	if t.installed["eng"] {
		return "eng", nil
	}
	for _, l := range t.cfg.Languages {
		if t.installed[l] {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: no language data for digit recognition", ErrStrategyUnavailable)
}

// textLanguages joins the configured dictionary languages that are installed
func (t *Tesseract) textLanguages() (string, error) {
	var langs []string
	for _, l := range t.cfg.Languages {
		if t.installed[l] {
			langs = append(langs, l)
		}
	}
	if len(langs) == 0 {
		return "", fmt.Errorf("%w: none of %v installed", ErrStrategyUnavailable, t.cfg.Languages)
	}
	return strings.Join(langs, "+"), nil
}

// recognize writes img to a temp PNG and runs tesseract on it
func (t *Tesseract) recognize(ctx context.Context, img image.Image, args ...string) (string, error) {
	f, err := os.CreateTemp(t.cfg.TempDir, "fuel-price-*.png")
	if err != nil {
		return "", fmt.Errorf("creating temp image: %w", err)
	}
	defer os.Remove(f.Name())

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("writing temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing temp image: %w", err)
	}

	// tesseract <file> stdout [options] [configfile]
	full := append([]string{f.Name(), "stdout"}, t.withTessdata(args...)...)
	out, _, err := t.runner.Run(ctx, t.cfg.Binary, full...)
	if err != nil {
		return "", fmt.Errorf("%w: tesseract: %v", ErrStrategyFailed, err)
	}
	return string(out), nil
}

func (t *Tesseract) recognizeDigits(ctx context.Context, img *Image) (string, error) {
	if err := t.Ready(ctx); err != nil {
		return "", err
	}
	lang, err := t.digitLanguage()
	if err != nil {
		return "", err
	}
	return t.recognize(ctx, PrepareDigits(img.Decoded),
		"-l", lang, "--psm", "6", "-c", "tessedit_char_whitelist=0123456789.")
}

func (t *Tesseract) recognizeText(ctx context.Context, img *Image) (string, error) {
	if err := t.Ready(ctx); err != nil {
		return "", err
	}
	langs, err := t.textLanguages()
	if err != nil {
		return "", err
	}
	return t.recognize(ctx, PrepareText(img.Decoded), "-l", langs)
}

// Digits is the digit-whitelisted strategy for LED segment displays
func (t *Tesseract) Digits() Strategy {
	return &digitsStrategy{t: t}
}

// Generic is dictionary OCR in German, French and Italian, parsed for fuel labels first
func (t *Tesseract) Generic() Strategy {
	return WithLabels(&genericStrategy{t: t})
}

// Detector reports word boxes so prices can be ordered top to bottom
func (t *Tesseract) Detector() Strategy {
	return &detectStrategy{t: t}
}

// DualPass runs digit and generic recognition together and keeps the richer output
func (t *Tesseract) DualPass() Strategy {
	return WithLabels(&dualStrategy{t: t})
}

type digitsStrategy struct{ t *Tesseract }

func (s *digitsStrategy) Name() string { return "digits" }

func (s *digitsStrategy) Recognize(ctx context.Context, img *Image) (*Recognition, error) {
	text, err := s.t.recognizeDigits(ctx, img)
	if err != nil {
		return nil, err
	}
	return &Recognition{RawText: text}, nil
}

type genericStrategy struct{ t *Tesseract }

func (s *genericStrategy) Name() string { return "generic" }

func (s *genericStrategy) Recognize(ctx context.Context, img *Image) (*Recognition, error) {
	text, err := s.t.recognizeText(ctx, img)
	if err != nil {
		return nil, err
	}
	return &Recognition{RawText: text}, nil
}

type detectStrategy struct{ t *Tesseract }

func (s *detectStrategy) Name() string { return "detect" }

func (s *detectStrategy) Recognize(ctx context.Context, img *Image) (*Recognition, error) {
	if err := s.t.Ready(ctx); err != nil {
		return nil, err
	}
	lang, err := s.t.digitLanguage()
	if err != nil {
		return nil, err
	}
	out, err := s.t.recognize(ctx, PrepareDigits(img.Decoded),
		"-l", lang, "--psm", "11", "-c", "tessedit_char_whitelist=0123456789.,", "tsv")
	if err != nil {
		return nil, err
	}
	detections := parseTSV(out)
	words := make([]string, len(detections))
	for i, d := range detections {
		words[i] = d.Text
	}
	return &Recognition{RawText: strings.Join(words, " "), Detections: detections}, nil
}

// parseTSV turns tesseract word rows into detections.
// Columns: level page block par line word left top width height conf text.
func parseTSV(out string) []RawDetection {
	var detections []RawDetection
	for i, ln := range strings.Split(out, "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		top, err1 := strconv.Atoi(cols[7])
		height, err2 := strconv.Atoi(cols[9])
		conf, err3 := strconv.ParseFloat(cols[10], 64)
		if err1 != nil || err2 != nil || err3 != nil || conf < 0 {
			continue
		}
		detections = append(detections, RawDetection{
			Text:             text,
			VerticalPosition: float64(top) + float64(height)/2,
			Confidence:       conf / 100,
		})
	}
	return detections
}

type dualStrategy struct{ t *Tesseract }

func (s *dualStrategy) Name() string { return "dual" }

func (s *dualStrategy) Recognize(ctx context.Context, img *Image) (*Recognition, error) {
	var (
		g                  errgroup.Group // no shared context: one failed pass must not cancel the other
		digits, text       string
		digitsErr, textErr error
	)
	g.Go(func() error {
		digits, digitsErr = s.t.recognizeDigits(ctx, img)
		if digitsErr != nil {
			return fmt.Errorf("digits: %w", digitsErr)
		}
		return nil
	})
	g.Go(func() error {
		text, textErr = s.t.recognizeText(ctx, img)
		if textErr != nil {
			return fmt.Errorf("generic: %w", textErr)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		switch {
		case digitsErr != nil && textErr != nil:
			return nil, fmt.Errorf("%w: digits: %v; generic: %v", ErrStrategyFailed, digitsErr, textErr)
		case digitsErr != nil:
			slog.Warn("Dual pass continuing without digit pass", "error", err)
			return &Recognition{RawText: text}, nil
		default:
			slog.Warn("Dual pass continuing without generic pass", "error", err)
			return &Recognition{RawText: digits}, nil
		}
	}

	// more recognized characters usually means more recognized digits
	if nonSpaceLen(text) > nonSpaceLen(digits) {
		return &Recognition{RawText: text}, nil
	}
	return &Recognition{RawText: digits}, nil
}

func nonSpaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
