package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Image is a decoded upload shared by all strategies of one extraction
type Image struct {
	Decoded image.Image
	Format  string

	original []byte
	pngOnce  sync.Once
	pngData  []byte
	pngErr   error
}

// PNG returns the image encoded as PNG, reusing the upload when it already was one
func (i *Image) PNG() ([]byte, error) {
	i.pngOnce.Do(func() {
		if i.Format == "png" && len(i.original) > 0 {
			i.pngData = i.original
			return
		}
		i.pngData, i.pngErr = encodePNG(i.Decoded)
	})
	return i.pngData, i.pngErr
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeImage decodes JPEG, PNG, GIF, WebP, HEIC/HEIF, or the first page of a PDF
func DecodeImage(data []byte, contentType string) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}
	mimeType := normalizeMimeType(contentType)

	switch {
	case isPDF(data, mimeType):
		img, err := pdfToImage(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
		}
		return &Image{Decoded: img, Format: "pdf"}, nil
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		// Go's standard image package doesn't support HEIC (common on iPhones)
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding HEIC/HEIF image: %w", ErrInvalidImage, err)
		}
		return &Image{Decoded: img, Format: "heic"}, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("%w: unsupported image format (supported: JPEG, PNG, GIF, WebP, HEIC, HEIF, PDF): %w", ErrInvalidImage, err)
		}
		return nil, fmt.Errorf("%w: decoding image: %w", ErrInvalidImage, err)
	}
	return &Image{Decoded: img, Format: format, original: data}, nil
}

// pdfToImage renders the first page of a PDF
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}

func isPDF(data []byte, mimeType string) bool {
	return mimeType == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF"))
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
