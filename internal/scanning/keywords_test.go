package scanning

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseLabeled", func() {
	var (
		text     string
		readings []PriceReading
	)

	JustBeforeEach(func() {
		readings = ParseLabeled(text)
	})

	When("the display labels every fuel", func() {
		BeforeEach(func() {
			text = "BLEIFREI\nBenzin 95: 1.75\nBenzin 98 1,89\nDiesel 1.82"
		})

		It("labels each price", func() {
			Expect(views(readings)).To(Equal([]readingView{
				{Benzin95, "1.75"}, {Benzin98, "1.89"}, {Diesel, "1.82"},
			}))
		})
	})

	When("the display uses Super labels", func() {
		BeforeEach(func() {
			text = "SUPER 98 ... 1.91\nDIESEL 1.84"
		})

		It("recognizes them", func() {
			Expect(views(readings)).To(Equal([]readingView{{Benzin98, "1.91"}, {Diesel, "1.84"}}))
		})
	})

	When("a labeled price is out of range", func() {
		BeforeEach(func() {
			text = "Diesel 9.99\nBenzin 95 1.70"
		})

		It("drops it", func() {
			Expect(views(readings)).To(Equal([]readingView{{Benzin95, "1.70"}}))
		})
	})

	When("there are no labels", func() {
		BeforeEach(func() {
			text = "1.72 1.86 1.65"
		})

		It("returns nothing", func() {
			Expect(readings).To(BeEmpty())
		})
	})

	When("a bare octane number labels a price", func() {
		BeforeEach(func() {
			text = "95 1.75\n98: 1.89"
		})

		It("labels it", func() {
			Expect(views(readings)).To(Equal([]readingView{{Benzin95, "1.75"}, {Benzin98, "1.89"}}))
		})
	})

	DescribeTable("unlabeled prices ending in 95 or 98",
		func(text string) {
			Expect(ParseLabeled(text)).To(BeEmpty())
		},
		Entry("ending in 95", "1.95\n2.05\n1.89"),
		Entry("ending in 98", "1.98\n1.89"),
		Entry("comma separated", "1,95 1,98 1,79"),
	)
})

var _ = Describe("WithLabels", func() {
	var (
		inner    *fakeStrategy
		strategy Strategy
		rec      *Recognition
		err      error
	)

	BeforeEach(func() {
		inner = &fakeStrategy{name: "generic"}
		strategy = WithLabels(inner)
	})

	JustBeforeEach(func() {
		rec, err = strategy.Recognize(context.Background(), &Image{})
	})

	It("keeps the inner name", func() {
		Expect(strategy.Name()).To(Equal("generic"))
	})

	When("the text has labels", func() {
		BeforeEach(func() {
			inner.rec = &Recognition{RawText: "Diesel 1.84"}
		})

		It("sets labeled readings", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(views(rec.Readings)).To(Equal([]readingView{{Diesel, "1.84"}}))
		})
	})

	When("the text has no labels", func() {
		BeforeEach(func() {
			inner.rec = &Recognition{RawText: "1.72 1.65"}
		})

		It("leaves the text for positional mapping", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Readings).To(BeEmpty())
			Expect(rec.RawText).To(Equal("1.72 1.65"))
		})
	})

	When("the inner strategy fails", func() {
		BeforeEach(func() {
			inner.err = errors.New("ocr failed")
		})

		It("returns the error", func() {
			Expect(err).To(MatchError("ocr failed"))
		})
	})
})
