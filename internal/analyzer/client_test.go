package analyzer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ocrai/ocrai/internal/analyzer"
	"github.com/ocrai/ocrai/pkg/logger"
	"github.com/ocrai/ocrai/pkg/models"
)

func analyzerTestLogger() *logger.Logger {
	log := logger.New(
		logger.WithOutput(GinkgoWriter),
		logger.WithPrefix("[analyzer-test] "),
		logger.WithFlags(0),
	)
	log.SetVerbose(true)
	return log
}

// chatReply wraps an inner JSON payload the way the chat-completions
// API returns model output.
func chatReply(inner string) string {
	outer := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": inner}},
		},
	}
	data, err := json.Marshal(outer)
	Expect(err).NotTo(HaveOccurred())
	return string(data)
}

const validInner = `{
	"unit_name": "الوحدة الأولى",
	"lesson_number": "2",
	"lesson_title": "الكسور",
	"markdown_text": "# الكسور\n\nنص الدرس",
	"images": [{"index": 0, "important": true, "description": "رسم بياني يوضح..."}]
}`

var _ = Describe("Client", func() {
	var (
		savedDelay time.Duration
		req        models.PageRequest
	)

	BeforeEach(func() {
		savedDelay = analyzer.RetryBaseDelay
		analyzer.RetryBaseDelay = time.Millisecond

		req = models.PageRequest{
			DocumentName: "math",
			PageNumber:   1,
			PageImage:    []byte("fake-png"),
			SubImages: []models.SubImage{
				{Index: 0, Data: []byte("fake-sub"), Format: "png", Width: 60, Height: 60},
			},
		}
	})

	AfterEach(func() {
		analyzer.RetryBaseDelay = savedDelay
	})

	newClient := func(url string) *analyzer.Client {
		return analyzer.NewClient("test-key", "", analyzerTestLogger(), analyzer.WithAPIURL(url))
	}

	Context("with a well-formed response", func() {
		It("parses the analysis result", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer test-key"))
				Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))

				var body map[string]interface{}
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				Expect(body["model"]).To(Equal(analyzer.DefaultModel))

				messages := body["messages"].([]interface{})
				content := messages[0].(map[string]interface{})["content"].([]interface{})
				// prompt text + page image + one sub-image
				Expect(content).To(HaveLen(3))

				w.Write([]byte(chatReply(validInner)))
			}))
			defer server.Close()

			result, err := newClient(server.URL).Analyze(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.UnitName).To(Equal("الوحدة الأولى"))
			Expect(result.LessonNumber).To(Equal("2"))
			Expect(result.Markdown).To(ContainSubstring("الكسور"))
			Expect(result.Images).To(HaveLen(1))
			Expect(result.Images[0].Important).To(BeTrue())
		})

		It("tolerates a fenced JSON payload", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(chatReply("```json\n" + validInner + "\n```")))
			}))
			defer server.Close()

			result, err := newClient(server.URL).Analyze(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.LessonTitle).To(Equal("الكسور"))
		})
	})

	Context("with malformed responses", func() {
		It("classifies unparsable model output as an analysis failure", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(chatReply("this is not json")))
			}))
			defer server.Close()

			_, err := newClient(server.URL).Analyze(context.Background(), req)
			Expect(err).To(HaveOccurred())
			Expect(models.KindOf(err)).To(Equal(models.ErrAnalysisFailed))
		})

		It("rejects a response without choices", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices": []}`))
			}))
			defer server.Close()

			_, err := newClient(server.URL).Analyze(context.Background(), req)
			Expect(models.KindOf(err)).To(Equal(models.ErrAnalysisFailed))
		})

		It("rejects empty markdown_text", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(chatReply(`{"unit_name":"","lesson_number":"","lesson_title":"","markdown_text":"  ","images":[]}`)))
			}))
			defer server.Close()

			_, err := newClient(server.URL).Analyze(context.Background(), req)
			Expect(models.KindOf(err)).To(Equal(models.ErrAnalysisFailed))
		})
	})

	Context("retry behavior", func() {
		It("retries rate-limited requests and succeeds", func() {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) <= 2 {
					w.WriteHeader(http.StatusTooManyRequests)
					return
				}
				w.Write([]byte(chatReply(validInner)))
			}))
			defer server.Close()

			result, err := newClient(server.URL).Analyze(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).NotTo(BeNil())
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(3)))
		})

		It("does not retry client errors", func() {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusBadRequest)
			}))
			defer server.Close()

			_, err := newClient(server.URL).Analyze(context.Background(), req)
			Expect(err).To(HaveOccurred())
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
		})

		It("gives up after exhausting retries", func() {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer server.Close()

			_, err := newClient(server.URL).Analyze(context.Background(), req)
			Expect(err).To(HaveOccurred())
			Expect(models.KindOf(err)).To(Equal(models.ErrAnalysisFailed))
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(4))) // initial + 3 retries
		})
	})

	Context("without an API key", func() {
		It("fails before sending anything", func() {
			client := analyzer.NewClient("", "", analyzerTestLogger())
			_, err := client.Analyze(context.Background(), req)
			Expect(models.KindOf(err)).To(Equal(models.ErrAnalysisFailed))
		})
	})
})
