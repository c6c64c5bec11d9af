package pricing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"
)

var _ = Describe("WebhookSubmitter", func() {
	var (
		server    *ghttp.Server
		submitter *WebhookSubmitter
		token     string
		sub       Submission
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		token = ""
		sub = Submission{
			ScanID:    "scan-1",
			Latitude:  47.37,
			Longitude: 8.54,
			Prices:    Prices{"benzin_95": decimal.RequireFromString("1.72"), "diesel": decimal.RequireFromString("1.65")},
			Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		submitter = NewWebhookSubmitter(server.URL()+"/prices", token, time.Second)
		err = submitter.Submit(context.Background(), sub)
	})

	When("the webhook accepts the submission", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/prices"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					defer GinkgoRecover()
					Expect(r.Header.Get("Authorization")).To(BeEmpty())
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					var payload map[string]any
					Expect(json.Unmarshal(body, &payload)).To(Succeed())
					Expect(payload["scan_id"]).To(Equal("scan-1"))
					Expect(payload["prices"]).To(Equal(map[string]any{"benzin_95": 1.72, "diesel": 1.65}))
					Expect(payload).NotTo(HaveKey("accuracy"))
				},
				ghttp.RespondWith(http.StatusAccepted, nil),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("a token is configured", func() {
		BeforeEach(func() {
			token = "secret"
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyHeaderKV("Authorization", "Bearer secret"),
				ghttp.RespondWith(http.StatusOK, nil),
			))
		})

		It("should send it as a bearer token", func() {
			Expect(err).NotTo(HaveOccurred())
		})
	})

	When("the webhook rejects the submission", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnprocessableEntity, "unknown station"))
		})

		It("should return the status and body", func() {
			Expect(err).To(MatchError(ContainSubstring("status 422")))
			Expect(err).To(MatchError(ContainSubstring("unknown station")))
		})
	})
})
