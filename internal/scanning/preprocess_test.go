package scanning

import (
	"image"
	"image/color"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// flat builds a uniform image of one color
func flat(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func isGray(img *image.NRGBA) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			if c.R != c.G || c.G != c.B {
				return false
			}
		}
	}
	return true
}

var _ = Describe("Preprocessing", func() {
	var src image.Image

	BeforeEach(func() {
		decoded, err := DecodeImage(testPNG(24, 16), "image/png")
		Expect(err).NotTo(HaveOccurred())
		src = decoded.Decoded
	})

	Describe("PrepareDigits", func() {
		It("keeps the dimensions and produces grayscale", func() {
			out := PrepareDigits(src)
			Expect(out.Bounds().Dx()).To(Equal(24))
			Expect(out.Bounds().Dy()).To(Equal(16))
			Expect(isGray(out)).To(BeTrue())
		})
	})

	Describe("PrepareText", func() {
		It("keeps the dimensions and produces grayscale", func() {
			out := PrepareText(src)
			Expect(out.Bounds().Dx()).To(Equal(24))
			Expect(isGray(out)).To(BeTrue())
		})
	})

	Describe("adjustContrast", func() {
		It("spreads values away from the mean", func() {
			img := flat(2, 1, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
			img.SetNRGBA(1, 0, color.NRGBA{R: 140, G: 140, B: 140, A: 255})

			out := adjustContrast(img, 2.0)
			Expect(out.NRGBAAt(0, 0).R).To(Equal(uint8(80)))
			Expect(out.NRGBAAt(1, 0).R).To(Equal(uint8(160)))
		})

		It("leaves a uniform image unchanged", func() {
			out := adjustContrast(flat(3, 3, color.NRGBA{R: 90, G: 90, B: 90, A: 255}), 3.0)
			Expect(out.NRGBAAt(1, 1).R).To(Equal(uint8(90)))
		})
	})

	Describe("adjustBrightness", func() {
		It("scales and clamps channels", func() {
			img := flat(2, 1, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
			img.SetNRGBA(1, 0, color.NRGBA{R: 250, G: 250, B: 250, A: 255})

			out := adjustBrightness(img, 1.2)
			Expect(out.NRGBAAt(0, 0).R).To(Equal(uint8(120)))
			Expect(out.NRGBAAt(1, 0).R).To(Equal(uint8(255)))
		})
	})
})
