package scanning

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	digitContrast   = 3.0
	digitBrightness = 1.2
	textContrast    = 2.0
)

// sharpenKernel matches the classic 3x3 SHARPEN filter; Convolve3x3 normalizes by its sum (16)
var sharpenKernel = [9]float64{
	-2, -2, -2,
	-2, 32, -2,
	-2, -2, -2,
}

// PrepareDigits readies LED segment displays, which are usually low-contrast in ambient photos
func PrepareDigits(img image.Image) *image.NRGBA {
	gray := imaging.Grayscale(img)
	sharp := imaging.Convolve3x3(gray, sharpenKernel, &imaging.ConvolveOptions{Normalize: true})
	return adjustBrightness(adjustContrast(sharp, digitContrast), digitBrightness)
}

// PrepareText is the milder preparation used for dictionary OCR
func PrepareText(img image.Image) *image.NRGBA {
	return adjustContrast(imaging.Grayscale(img), textContrast)
}

// meanLuminance is the rounded average gray level of a grayscale image
func meanLuminance(img *image.NRGBA) float64 {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			sum += 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
		}
	}
	return float64(int(sum/float64(n) + 0.5))
}

// adjustContrast scales each channel's distance from the mean luminance by factor
func adjustContrast(img *image.NRGBA, factor float64) *image.NRGBA {
	mean := meanLuminance(img)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clampChannel(mean + factor*(float64(c.R)-mean)),
			G: clampChannel(mean + factor*(float64(c.G)-mean)),
			B: clampChannel(mean + factor*(float64(c.B)-mean)),
			A: c.A,
		}
	})
}

// adjustBrightness multiplies each channel by factor
func adjustBrightness(img *image.NRGBA, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clampChannel(factor * float64(c.R)),
			G: clampChannel(factor * float64(c.G)),
			B: clampChannel(factor * float64(c.B)),
			A: c.A,
		}
	})
}

func clampChannel(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
