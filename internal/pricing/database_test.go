package pricing

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/fuel-price-ocr/internal/scanning"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	newScan := func(id string, at time.Time) *Scan {
		return &Scan{
			ID:      id,
			Success: true,
			Prices:  Prices{"benzin_95": decimal.RequireFromString("1.72")},
			Readings: []scanning.PriceReading{
				{Type: scanning.Benzin95, Value: decimal.RequireFromString("1.72")},
			},
			RawText:   "1.72",
			Strategy:  "digits",
			Timestamp: at,
			Latitude:  float(47.37),
			Layout:    scanning.DefaultLayoutName,
			Attempts:  []scanning.Attempt{{Strategy: "gemini", Error: "strategy unavailable"}, {Strategy: "digits", Readings: 1}},
		}
	}

	Describe("SaveScan", func() {
		var (
			scan *Scan
			err  error
		)

		BeforeEach(func() {
			scan = newScan("scan-1", time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
		})

		JustBeforeEach(func() {
			err = db.SaveScan(scan)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should be retrievable with its readings and attempts", func() {
			saved, getErr := db.GetScan("scan-1")
			Expect(getErr).NotTo(HaveOccurred())
			Expect(saved.Strategy).To(Equal("digits"))
			Expect(saved.Prices["benzin_95"].Equal(decimal.RequireFromString("1.72"))).To(BeTrue())
			Expect(saved.Readings).To(HaveLen(1))
			Expect(saved.Readings[0].Type).To(Equal(scanning.Benzin95))
			Expect(saved.Attempts).To(HaveLen(2))
			Expect(*saved.Latitude).To(Equal(47.37))
			Expect(saved.Longitude).To(BeNil())
		})

		When("a scan with the same ID is saved again", func() {
			It("should replace it", func() {
				scan.Submitted = true
				Expect(db.SaveScan(scan)).To(Succeed())
				saved, getErr := db.GetScan("scan-1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Submitted).To(BeTrue())
			})
		})
	})

	Describe("GetScan", func() {
		When("the scan does not exist", func() {
			It("should return ErrScanNotFound", func() {
				_, err := db.GetScan("missing")
				Expect(err).To(MatchError(ErrScanNotFound))
			})
		})
	})

	Describe("ListScans", func() {
		When("there are no scans", func() {
			It("should return an empty slice", func() {
				scans, err := db.ListScans()
				Expect(err).NotTo(HaveOccurred())
				Expect(scans).NotTo(BeNil())
				Expect(scans).To(BeEmpty())
			})
		})

		When("there are scans", func() {
			BeforeEach(func() {
				base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
				Expect(db.SaveScan(newScan("b-older", base))).To(Succeed())
				Expect(db.SaveScan(newScan("a-newest", base.Add(2*time.Hour)))).To(Succeed())
				Expect(db.SaveScan(newScan("c-middle", base.Add(time.Hour)))).To(Succeed())
			})

			It("should return them newest first", func() {
				scans, err := db.ListScans()
				Expect(err).NotTo(HaveOccurred())
				ids := make([]string, len(scans))
				for i, s := range scans {
					ids[i] = s.ID
				}
				Expect(ids).To(Equal([]string{"a-newest", "c-middle", "b-older"}))
			})
		})
	})

	Describe("NewBoltDB", func() {
		When("the path is not writable", func() {
			It("should return an error", func() {
				_, err := NewBoltDB(filepath.Join(tmpDir, "missing", "dir", "test.db"))
				Expect(err).To(MatchError(ContainSubstring("opening boltdb")))
			})
		})

		When("the database is reopened", func() {
			It("should keep saved scans", func() {
				Expect(db.SaveScan(newScan("scan-1", time.Now()))).To(Succeed())
				Expect(db.Close()).To(Succeed())

				var err error
				db, err = NewBoltDB(dbPath)
				Expect(err).NotTo(HaveOccurred())
				_, err = db.GetScan("scan-1")
				Expect(err).NotTo(HaveOccurred())
			})
		})
	})
})
