package prompter_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ligandx/pkg/audit"
	"github.com/papercomputeco/ligandx/pkg/coerce"
	"github.com/papercomputeco/ligandx/pkg/conversation"
	"github.com/papercomputeco/ligandx/pkg/llm"
	"github.com/papercomputeco/ligandx/pkg/prompter"
	testutils "github.com/papercomputeco/ligandx/pkg/utils/test"
)

type countingObserver struct {
	outcomes map[string]int
	retries  map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{outcomes: map[string]int{}, retries: map[string]int{}}
}

func (o *countingObserver) ObserveRequest(_, outcome string, _ time.Duration) {
	o.outcomes[outcome]++
}

func (o *countingObserver) ObserveRetry(kind string) {
	o.retries[kind]++
}

func fastConfig() prompter.Config {
	cfg := prompter.DefaultConfig("test-model")
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	cfg.MaxTransportAttempts = 3
	return cfg
}

func question(text string) *conversation.Conversation {
	c, err := conversation.New("system prompt")
	Expect(err).NotTo(HaveOccurred())
	Expect(c.Append(llm.RoleUser, text)).To(Succeed())
	return c
}

var _ = Describe("Prompter", func() {
	var (
		mock *testutils.MockProvider
		obs  *countingObserver
		log  *audit.Log
		p    *prompter.Prompter
		ctx  context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = testutils.NewMockProvider()
		obs = newCountingObserver()
		log = audit.New()
		p = prompter.New(mock, fastConfig(), prompter.WithObserver(obs)).With(log)
	})

	Describe("Ask", func() {
		It("appends the answer and records the exchange", func() {
			mock.On("ligands", "['amidoxime']")
			c := question("list the ligands")

			raw, err := p.Ask(ctx, c)
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(Equal("['amidoxime']"))
			Expect(c.Len()).To(Equal(3))
			Expect(c.AwaitingAnswer()).To(BeFalse())

			Expect(log.Exchanges()).To(HaveLen(1))
			Expect(log.Exchanges()[0].History).To(HaveLen(2))
			Expect(obs.outcomes[prompter.OutcomeOK]).To(Equal(1))
		})

		It("sends zero sampling parameters and the configured model", func() {
			_, err := p.Ask(ctx, question("q"))
			Expect(err).NotTo(HaveOccurred())
			req := mock.Requests()[0]
			Expect(req.Model).To(Equal("test-model"))
			Expect(*req.Temperature).To(BeZero())
			Expect(*req.FrequencyPenalty).To(BeZero())
			Expect(*req.PresencePenalty).To(BeZero())
		})

		It("refuses a conversation with no pending question", func() {
			c, _ := conversation.New("sys")
			_, err := p.Ask(ctx, c)
			Expect(err).To(MatchError(prompter.ErrNoQuestion))
			Expect(mock.Calls()).To(BeZero())
		})
	})

	Describe("transport retry", func() {
		It("retries retryable failures and then succeeds", func() {
			mock.FailNext(
				&llm.TransportError{Provider: "mock", StatusCode: http.StatusServiceUnavailable, Err: errors.New("down")},
				&llm.TransportError{Provider: "mock", Err: errors.New("connection refused")},
			)
			mock.Default = "yes"

			raw, err := p.Ask(ctx, question("q"))
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(Equal("yes"))
			Expect(mock.Calls()).To(Equal(3))
			Expect(obs.retries[prompter.RetryTransport]).To(Equal(2))
			Expect(obs.outcomes[prompter.OutcomeError]).To(Equal(2))
		})

		It("gives up after the attempt cap", func() {
			te := &llm.TransportError{Provider: "mock", StatusCode: 502, Err: errors.New("bad gateway")}
			mock.FailNext(te, te, te, te)

			c := question("q")
			_, err := p.Ask(ctx, c)
			Expect(err).To(MatchError(prompter.ErrTransportExhausted))
			Expect(llm.IsTransportError(err)).To(BeTrue())
			Expect(mock.Calls()).To(Equal(3))
			Expect(c.AwaitingAnswer()).To(BeTrue())
		})

		It("does not retry client errors", func() {
			mock.FailNext(&llm.TransportError{Provider: "mock", StatusCode: 401, Err: errors.New("bad key")})

			_, err := p.Ask(ctx, question("q"))
			Expect(err).To(HaveOccurred())
			Expect(err).NotTo(MatchError(prompter.ErrTransportExhausted))
			Expect(mock.Calls()).To(Equal(1))
		})

		It("stops when the context is cancelled", func() {
			cfg := fastConfig()
			cfg.MaxTransportAttempts = 0
			cfg.InitialBackoff = time.Hour
			p = prompter.New(mock, cfg)
			mock.FailNext(&llm.TransportError{Provider: "mock", Err: errors.New("down")})

			cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			_, err := p.Ask(cctx, question("q"))
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(mock.Calls()).To(Equal(1))
		})

		It("counts cached responses separately", func() {
			mock.Cached = true
			_, err := p.Ask(ctx, question("q"))
			Expect(err).NotTo(HaveOccurred())
			Expect(obs.outcomes[prompter.OutcomeCached]).To(Equal(1))
		})
	})

	Describe("AskShape", func() {
		It("re-asks the same conversation once when coercion fails", func() {
			mock.On("ligands", "I think the ligands are A and B", "['A', 'B']")
			c := question("list the ligands")

			v, raw, err := p.AskShape(ctx, c, coerce.List)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal([]any{"A", "B"}))
			Expect(raw).To(Equal("['A', 'B']"))
			Expect(mock.Calls()).To(Equal(2))
			Expect(obs.retries[prompter.RetryCoercion]).To(Equal(1))

			reqs := mock.Requests()
			Expect(reqs[0].Messages).To(Equal(reqs[1].Messages))
			Expect(c.Len()).To(Equal(3))
		})

		It("returns a shape mismatch after the retry and leaves the conversation untouched", func() {
			mock.On("json", "not json", "still not json")
			c := question("give me json")

			_, raw, err := p.AskShape(ctx, c, coerce.Dict)
			var sm *coerce.ShapeMismatchError
			Expect(errors.As(err, &sm)).To(BeTrue())
			Expect(sm.Shape).To(Equal(coerce.Dict))
			Expect(raw).To(Equal("still not json"))
			Expect(c.AwaitingAnswer()).To(BeTrue())
			Expect(mock.Calls()).To(Equal(2))
		})

		It("asks exactly once when coercion retries are turned off", func() {
			mock.On("json", "not json", "{}")
			c := question("give me json")

			_, _, err := p.WithCoercionRetries(0).AskShape(ctx, c, coerce.Dict)
			var sm *coerce.ShapeMismatchError
			Expect(errors.As(err, &sm)).To(BeTrue())
			Expect(mock.Calls()).To(Equal(1))
			Expect(obs.retries[prompter.RetryCoercion]).To(BeZero())

			// the original keeps its retry
			_, _, err = p.AskShape(ctx, c, coerce.Dict)
			Expect(err).NotTo(HaveOccurred())
			Expect(mock.Calls()).To(Equal(2))
		})

		It("decodes fenced JSON", func() {
			mock.Default = "```json\n{\"a\": 1}\n```"
			v, _, err := p.AskShape(ctx, question("q"), coerce.Dict)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(map[string]any{"a": 1.0}))
		})
	})

	DescribeTable("backoff",
		func(retry int, want time.Duration) {
			cfg := prompter.Config{InitialBackoff: time.Second, MaxBackoff: 30 * time.Second}
			Expect(prompter.CalculateBackoff(cfg, retry)).To(Equal(want))
		},
		Entry("first retry", 0, time.Second),
		Entry("doubles", 2, 4*time.Second),
		Entry("capped", 10, 30*time.Second),
	)
})
