package scanning

import (
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Layout", func() {
	var (
		layout   *Layout
		prices   []decimal.Decimal
		readings []PriceReading
		err      error
	)

	BeforeEach(func() {
		layout = DefaultLayout()
	})

	JustBeforeEach(func() {
		readings, err = layout.Map(prices)
	})

	When("three prices are found", func() {
		BeforeEach(func() {
			prices = []decimal.Decimal{dec("1.72"), dec("1.86"), dec("1.65")}
		})

		It("assigns Benzin 95, Benzin 98, Diesel", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(views(readings)).To(Equal([]readingView{
				{Benzin95, "1.72"}, {Benzin98, "1.86"}, {Diesel, "1.65"},
			}))
		})
	})

	When("two prices are found", func() {
		BeforeEach(func() {
			prices = []decimal.Decimal{dec("1.72"), dec("1.65")}
		})

		It("assigns Benzin 95, Diesel", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(views(readings)).To(Equal([]readingView{{Benzin95, "1.72"}, {Diesel, "1.65"}}))
		})
	})

	When("one price is found", func() {
		BeforeEach(func() {
			prices = []decimal.Decimal{dec("1.79")}
		})

		It("assumes Benzin 95", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(views(readings)).To(Equal([]readingView{{Benzin95, "1.79"}}))
		})
	})

	When("no prices are found", func() {
		BeforeEach(func() {
			prices = nil
		})

		It("returns an empty result without error", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(readings).To(BeEmpty())
		})
	})

	When("more than three prices are found", func() {
		BeforeEach(func() {
			prices = []decimal.Decimal{dec("1.72"), dec("1.86"), dec("1.65"), dec("1.99")}
		})

		It("refuses to guess", func() {
			Expect(err).To(MatchError(ErrUnmappedCount))
			Expect(readings).To(BeNil())
		})
	})

	Describe("Validate", func() {
		It("accepts the default layout", func() {
			Expect(DefaultLayout().Validate()).To(Succeed())
		})

		It("rejects an order whose length differs from its count", func() {
			l := &Layout{Name: "bad", Orders: map[int][]FuelType{2: {Diesel}}}
			Expect(l.Validate()).To(MatchError(ContainSubstring("lists 1 fuel types")))
		})

		It("rejects repeated fuel types", func() {
			l := &Layout{Name: "bad", Orders: map[int][]FuelType{2: {Diesel, Diesel}}}
			Expect(l.Validate()).To(MatchError(ContainSubstring("repeated")))
		})

		It("rejects an empty layout", func() {
			Expect((&Layout{Name: "empty"}).Validate()).To(HaveOccurred())
		})
	})
})

var _ = Describe("Layouts", func() {
	const layoutYAML = `
layouts:
  diesel-first:
    2: [Diesel, Benzin 95]
    3: [diesel, benzin_95, Benzin98]
`

	var (
		layouts *Layouts
		err     error
	)

	BeforeEach(func() {
		layouts, err = ParseLayouts([]byte(layoutYAML))
		Expect(err).NotTo(HaveOccurred())
	})

	It("keeps a default layout", func() {
		Expect(layouts.Names()).To(Equal([]string{"default", "diesel-first"}))
		Expect(layouts.Get("").Orders[3]).To(Equal([]FuelType{Benzin95, Benzin98, Diesel}))
	})

	It("parses loosely spelled fuel types", func() {
		Expect(layouts.Get("diesel-first").Orders[3]).To(Equal([]FuelType{Diesel, Benzin95, Benzin98}))
	})

	It("maps with the named layout", func() {
		readings, mapErr := layouts.Get("diesel-first").Map([]decimal.Decimal{dec("1.89"), dec("1.74")})
		Expect(mapErr).NotTo(HaveOccurred())
		Expect(views(readings)).To(Equal([]readingView{{Diesel, "1.89"}, {Benzin95, "1.74"}}))
	})

	It("treats a count missing from the named layout as unmapped", func() {
		_, mapErr := layouts.Get("diesel-first").Map([]decimal.Decimal{dec("1.89")})
		Expect(mapErr).To(MatchError(ErrUnmappedCount))
	})

	It("falls back to the default for unknown names", func() {
		Expect(layouts.Get("unknown").Name).To(Equal(DefaultLayoutName))
	})

	When("the file names an unknown fuel type", func() {
		It("returns the error", func() {
			_, err = ParseLayouts([]byte("layouts:\n  x:\n    1: [Kerosene]\n"))
			Expect(err).To(MatchError(ContainSubstring("unknown fuel type")))
		})
	})

	When("the file is not valid", func() {
		It("returns the error", func() {
			_, err = ParseLayouts([]byte("layouts:\n  x:\n    2: [Diesel]\n"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("LoadLayouts", func() {
		It("reads layouts from disk", func() {
			path := filepath.Join(GinkgoT().TempDir(), "layouts.yaml")
			Expect(os.WriteFile(path, []byte(layoutYAML), 0o644)).To(Succeed())
			loaded, loadErr := LoadLayouts(path)
			Expect(loadErr).NotTo(HaveOccurred())
			Expect(loaded.Names()).To(ContainElement("diesel-first"))
		})

		It("returns an error for a missing file", func() {
			_, loadErr := LoadLayouts(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
			Expect(loadErr).To(HaveOccurred())
		})
	})
})
