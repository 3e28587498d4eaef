package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ligandx/pkg/llm"
	"github.com/papercomputeco/ligandx/pkg/llm/provider/gemini"
)

var _ = Describe("Gemini Provider", func() {
	var (
		server   *httptest.Server
		received map[string]any
		path     string
	)

	BeforeEach(func() {
		received = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			_ = json.NewDecoder(r.Body).Decode(&received)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"['MOF-5']"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires an API key", func() {
		_, err := gemini.New(context.Background(), "", server.URL, server.Client())
		Expect(err).To(HaveOccurred())
	})

	It("maps roles and the system instruction onto generateContent", func() {
		p, err := gemini.New(context.Background(), "test-key", server.URL, server.Client())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name()).To(Equal("gemini"))

		resp, err := p.Complete(context.Background(), &llm.ChatRequest{
			Model: "gemini-2.0-flash",
			Messages: []llm.Message{
				llm.NewTextMessage(llm.RoleSystem, "sys"),
				llm.NewTextMessage(llm.RoleUser, "q1"),
				llm.NewTextMessage(llm.RoleAssistant, "a1"),
				llm.NewTextMessage(llm.RoleUser, "q2"),
			},
			Temperature: llm.Float64(0),
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(path).To(HaveSuffix("models/gemini-2.0-flash:generateContent"))
		contents := received["contents"].([]any)
		Expect(contents).To(HaveLen(3))
		Expect(contents[1]).To(HaveKeyWithValue("role", "model"))
		Expect(received).To(HaveKey("systemInstruction"))

		Expect(resp.Message.Content).To(Equal("['MOF-5']"))
		Expect(resp.StopReason).To(Equal("STOP"))
		Expect(resp.Usage.TotalTokens).To(Equal(5))
	})
})
