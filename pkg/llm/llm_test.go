package llm_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ligandx/pkg/llm"
)

var _ = Describe("ChatRequest", func() {
	It("splits the leading system turn from the rest", func() {
		req := &llm.ChatRequest{Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleSystem, "sys"),
			llm.NewTextMessage(llm.RoleUser, "q"),
		}}
		Expect(req.System()).To(Equal("sys"))
		Expect(req.Turns()).To(HaveLen(1))
	})

	It("has no system text when the first turn is a user turn", func() {
		req := &llm.ChatRequest{Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "q")}}
		Expect(req.System()).To(BeEmpty())
		Expect(req.Turns()).To(HaveLen(1))
	})
})

var _ = Describe("TransportError", func() {
	DescribeTable("Retryable",
		func(status int, expected bool) {
			err := &llm.TransportError{Provider: "openai", StatusCode: status, Err: errors.New("x")}
			Expect(err.Retryable()).To(Equal(expected))
		},
		Entry("no response", 0, true),
		Entry("rate limited", http.StatusTooManyRequests, true),
		Entry("server error", http.StatusBadGateway, true),
		Entry("unauthorized", http.StatusUnauthorized, false),
		Entry("bad request", http.StatusBadRequest, false),
	)

	It("is detectable through wrapping", func() {
		err := fmt.Errorf("asking: %w", &llm.TransportError{Provider: "openai", Err: errors.New("down")})
		Expect(llm.IsTransportError(err)).To(BeTrue())
		Expect(llm.IsTransportError(errors.New("other"))).To(BeFalse())
	})
})

var _ = Describe("PostJSON", func() {
	It("truncates long error bodies", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
		}))
		defer server.Close()

		var out map[string]any
		err := llm.PostJSON(context.Background(), server.Client(), "test", server.URL, nil, map[string]string{}, &out)

		var te *llm.TransportError
		Expect(errors.As(err, &te)).To(BeTrue())
		Expect(te.StatusCode).To(Equal(http.StatusInternalServerError))
		Expect(len(te.Error())).To(BeNumerically("<", 700))
	})

	It("decodes a successful response", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ok":"` + r.Header.Get("X-Test") + `"}`))
		}))
		defer server.Close()

		var out map[string]string
		header := http.Header{}
		header.Set("X-Test", "yes")
		Expect(llm.PostJSON(context.Background(), nil, "test", server.URL, header, struct{}{}, &out)).To(Succeed())
		Expect(out).To(HaveKeyWithValue("ok", "yes"))
	})
})
