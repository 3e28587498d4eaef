package followup_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ligandx/pkg/audit"
	"github.com/papercomputeco/ligandx/pkg/coerce"
	"github.com/papercomputeco/ligandx/pkg/followup"
	"github.com/papercomputeco/ligandx/pkg/ligand"
	"github.com/papercomputeco/ligandx/pkg/llm"
	"github.com/papercomputeco/ligandx/pkg/prompter"
	testutils "github.com/papercomputeco/ligandx/pkg/utils/test"
)

// Distinctive fragments of the default questions.
const (
	qFromTable     = "names of ligands in the contents"
	qFromCandidate = "names of ligands from the input json"
	qReconcile     = "modify or remove any ligands"
	qPerformance   = "what property type does"
	qExtract       = "all sublayers of the"
	qGate          = "If there is any occurrence of 'NA'"
	qRemoveUnknown = "In the answer to question 1, remove any parts"
	qTableValues   = "Based on the input representation, provide values"
	qValueFields   = "'''value''' key"
	qRemoveMissing = "If elements included in the list"
	qFinal         = "final modified json of"
	qConditions    = "experimental conditions"
	qRemoveKey     = "Remove all elements with the key name"
)

const representation = "<table><tr><td>Ligand</td><td>pzc</td></tr><tr><td>AO</td><td>4.5</td></tr></table>Table 1. Surface charge of AO fibers."

func decode(s string) any {
	var v any
	Expect(json.Unmarshal([]byte(s), &v)).To(Succeed())
	return v
}

func newOrchestrator(mock *testutils.MockProvider) *followup.Orchestrator {
	cfg := prompter.DefaultConfig("test-model")
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond
	o, err := followup.New(&followup.Config{Prompter: prompter.New(mock, cfg)})
	Expect(err).NotTo(HaveOccurred())
	return o
}

func rowCount(rows []audit.Row, question string) int {
	n := 0
	for _, r := range rows {
		if r.Question == question {
			n++
		}
	}
	return n
}

func findRequest(mock *testutils.MockProvider, fragment string) *llm.ChatRequest {
	for _, r := range mock.Requests() {
		last := r.Messages[len(r.Messages)-1]
		if last.Role == llm.RoleUser && strings.Contains(last.Content, fragment) {
			return r
		}
	}
	return nil
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx  context.Context
		mock *testutils.MockProvider
		doc  followup.Document
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = testutils.NewMockProvider()
		mock.Default = "yes"
		doc = followup.Document{
			Key:            "table_1",
			Representation: representation,
			Candidate:      decode(`{"AO": {"pzc": {"value": "4.5", "unit": ""}, "specific_area": {"value": "120 m2/g"}}}`),
		}
	})

	Context("with a single ligand and complete properties", func() {
		BeforeEach(func() {
			mock.
				On(qFromTable, "['AO']").
				On(qFromCandidate, "\"['AO']\"").
				On(qPerformance, "['pzc']").
				On(qExtract, `{"pzc": {"value": "4.5"}}`).
				On(qGate, "No.").
				On(qTableValues, "['4.5']").
				On(qValueFields, "['4.5']").
				On(qFinal, "```json\n{\"AO\": {\"pzc\": {\"value\": \"4.5\", \"unit\": \"\"}, \"specific_area\": \"\"}}\n```")
		})

		It("yields an unwrapped document without empty values", func() {
			out, err := newOrchestrator(mock).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Failed()).To(BeFalse())
			Expect(out.Ligands).To(Equal([]string{"AO"}))
			Expect(out.Result.Kind()).To(Equal(ligand.Single))

			b, err := json.Marshal(out.Document)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(MatchJSON(`{"AO": {"pzc": {"value": "4.5"}}}`))
		})

		It("skips the reconcile question when both ligand lists agree", func() {
			_, err := newOrchestrator(mock).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(mock.CallsContaining(qReconcile)).To(BeZero())
		})

		It("skips the cleanup and removal questions and records skip rows", func() {
			out, err := newOrchestrator(mock).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(mock.CallsContaining(qRemoveUnknown)).To(BeZero())
			Expect(mock.CallsContaining(qRemoveMissing)).To(BeZero())

			rows := out.Log.Rows()
			Expect(rowCount(rows, audit.SkipMarker)).To(Equal(2))

			q := followup.DefaultQuestions().Property
			Expect(rowCount(rows, q.SkippedCleanup)).To(Equal(1))
			Expect(rowCount(rows, q.UnchangedFromFirst)).To(Equal(1))

			// 13 protocol rows and 6 element checks
			Expect(rows).To(HaveLen(19))
			Expect(out.Log.Exchanges()).To(HaveLen(mock.Calls()))
			Expect(mock.Calls()).To(Equal(14))
		})

		It("feeds the first extraction answer to the value question when the gate says no", func() {
			_, err := newOrchestrator(mock).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())

			req := findRequest(mock, qValueFields)
			Expect(req).NotTo(BeNil())

			q := followup.DefaultQuestions().Property
			Expect(req.Messages).To(ContainElements(
				llm.NewTextMessage(llm.RoleUser, q.SkippedCleanup),
				llm.NewTextMessage(llm.RoleAssistant, `{"pzc": {"value": "4.5"}}`),
			))
		})

		It("places the system prompt first and merges context into the question turn", func() {
			_, err := newOrchestrator(mock).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())

			req := findRequest(mock, qFromTable)
			Expect(req.Messages[0].Role).To(Equal(llm.RoleSystem))
			Expect(req.Messages[0].Content).To(ContainSubstring("adsorption_time"))
			Expect(req.Messages[1].Content).To(HavePrefix("<input representation>\n" + representation + "\n\n"))

			req = findRequest(mock, qConditions)
			Expect(req.Messages[0].Role).To(Equal(llm.RoleUser))
		})

		It("leaves a document with no spurious keys unchanged when pruned again", func() {
			mock.On(qConditions, "no")
			out, err := newOrchestrator(mock).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Removed).To(BeEmpty())
			Expect(mock.CallsContaining(qRemoveKey)).To(BeZero())
		})
	})

	Context("with two ligands", func() {
		BeforeEach(func() {
			mock.
				On(qFromTable, "['A', 'B']").
				On(qFromCandidate, "['B', 'A', 'C']").
				On(qReconcile, "['A', 'B']").
				On(`property type does """A"""`, "['pzc']").
				On(`property type does """B"""`, "[]").
				On(qExtract, `{"pzc": {"value": "NA"}}`).
				On(qGate, "yes").
				On(qRemoveUnknown, `{"pzc": {"value": "5"}}`).
				On(qTableValues, "['5 mg']").
				On(qValueFields, "['5', '6']").
				On(qRemoveMissing, `{"A": {"pzc": {"value": "5"}}}`).
				On(qFinal, `{"A": {"pzc": {"value": "5"}}}`)
		})

		It("wraps the ligands in discovery order", func() {
			out, err := newOrchestrator(mock).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(mock.CallsContaining(qReconcile)).To(Equal(1))
			Expect(out.Result.Kind()).To(Equal(ligand.Multiple))

			b, err := json.Marshal(out.Document)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(MatchJSON(`{"ligands": [{"A": {"pzc": {"value": "5"}}}, {"B": {}}]}`))
		})

		It("asks the cleanup and removal questions and records the local diff", func() {
			out, err := newOrchestrator(mock).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(mock.CallsContaining(qRemoveUnknown)).To(Equal(1))
			Expect(mock.CallsContaining(qRemoveMissing)).To(Equal(1))
			Expect(mock.CallsContaining("Question 6.")).To(BeZero())

			var diff []string
			for _, r := range out.Log.Rows() {
				if strings.Contains(r.Question, "Question 6.") {
					diff = append(diff, r.Answer)
				}
			}
			Expect(diff).To(Equal([]string{`["6"]`}))
		})

		It("drops only the ligand whose answers never take shape", func() {
			mock = testutils.NewMockProvider()
			mock.Default = "yes"
			mock.
				On(qFromTable, "['A', 'B']").
				On(qFromCandidate, "['A', 'B']").
				On(`property type does """A"""`, "The properties are pzc and specific area.").
				On(`property type does """B"""`, "[]")

			out, err := newOrchestrator(mock).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Failed()).To(BeTrue())
			Expect(out.Failures).To(HaveLen(1))
			Expect(out.Failures[0].Ligand).To(Equal("A"))
			Expect(out.Failures[0].Stage).To(Equal(followup.StagePerformanceDiscovery))

			var sm *coerce.ShapeMismatchError
			Expect(errors.As(out.Failures[0], &sm)).To(BeTrue())
			Expect(mock.CallsContaining(`property type does """A"""`)).To(Equal(3))

			b, err := json.Marshal(out.Document)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(MatchJSON(`{"B": {}}`))
		})
	})

	It("keeps the last known-good JSON when the final answer is never an object", func() {
		mock.
			On(qFromTable, "['AO']").
			On(qFromCandidate, "['AO']").
			On(qPerformance, "['pzc']").
			On(qExtract, `{"pzc": {"value": "4.5"}}`).
			On(qGate, "no").
			On(qTableValues, "['4.5']").
			On(qValueFields, "['4.5']").
			On(qFinal, `["AO"]`)

		out, err := newOrchestrator(mock).Run(ctx, doc)
		Expect(err).NotTo(HaveOccurred())
		Expect(mock.CallsContaining(qFinal)).To(Equal(4))
		Expect(out.Fallbacks).To(HaveLen(1))
		Expect(out.Fallbacks[0].Property).To(Equal("pzc"))

		b, err := json.Marshal(out.Document)
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(MatchJSON(`{"AO": {"pzc": {"value": "4.5"}, "specific_area": {"value": "120 m2/g"}}}`))
	})

	It("chains properties so each refines the previous result", func() {
		mock.
			On(qFromTable, "['AO']").
			On(qFromCandidate, "['AO']").
			On(qPerformance, "['pzc', 'specific_area']").
			On(qExtract, `{"v": 1}`).
			On(qGate, "no").
			On(qTableValues, "['1']").
			On(qValueFields, "['1']").
			On(qFinal, `{"AO": {"pzc": {"value": "4.5"}}}`, `{"AO": {"pzc": {"value": "4.5"}, "specific_area": {"value": "120"}}}`)

		_, err := newOrchestrator(mock).Run(ctx, doc)
		Expect(err).NotTo(HaveOccurred())

		var finals []*llm.ChatRequest
		for _, r := range mock.Requests() {
			if strings.Contains(r.Messages[len(r.Messages)-1].Content, qFinal) {
				finals = append(finals, r)
			}
		}
		Expect(finals).To(HaveLen(2))
		Expect(finals[1].Messages[len(finals[1].Messages)-1].Content).To(HavePrefix(`<input json>` + "\n" + `{"AO":{"pzc":{"value":"4.5"}}}`))
	})

	Describe("element pruning", func() {
		const refined = `{"AO": {"electrolyte": "NaCl", "pzc": "4.5"}}`

		// script answers a single-ligand run whose final fragment is final.
		script := func(m *testutils.MockProvider, final string) {
			m.
				On(qFromTable, "['AO']").
				On(qFromCandidate, "['AO']").
				On(qPerformance, "['pzc']").
				On(qExtract, `{"pzc": "4.5"}`).
				On(qGate, "no").
				On(qTableValues, "['4.5']").
				On(qValueFields, "['4.5']").
				On(qFinal, final).
				On(qConditions, "No.")
		}

		BeforeEach(func() {
			script(mock, refined)
			doc.Candidate = decode(refined)
		})

		It("removes a key both title and caption call spurious", func() {
			mock.On(qRemoveKey, `{"AO": {"pzc": "4.5"}}`)

			out, err := newOrchestrator(mock).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Result.Kind()).To(Equal(ligand.Single))
			Expect(out.Removed).To(Equal([]string{"electrolyte"}))
			Expect(findRequest(mock, qRemoveKey).Messages[0].Content).To(ContainSubstring(`'''electrolyte'''`))

			b, err := json.Marshal(out.Document)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(MatchJSON(`{"AO": {"pzc": "4.5"}}`))
		})

		It("keeps the document when removal never returns an object", func() {
			mock.On(qRemoveKey, "[1]")

			out, err := newOrchestrator(mock).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Removed).To(BeEmpty())
			Expect(mock.CallsContaining(qRemoveKey)).To(Equal(3))
			Expect(out.Document).To(Equal(decode(refined)))
		})

		It("spends at most three backend calls on a removal that never parses", func() {
			mock.On(qRemoveKey, "Sure, here it is")

			out, err := newOrchestrator(mock).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Removed).To(BeEmpty())
			Expect(mock.CallsContaining(qRemoveKey)).To(Equal(3))
			Expect(out.Document).To(Equal(decode(refined)))
		})

		It("leaves already pruned output byte-for-byte unchanged on a second pass", func() {
			mock.On(qRemoveKey, `{"AO": {"pzc": "4.5"}}`)

			first, err := newOrchestrator(mock).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Removed).To(Equal([]string{"electrolyte"}))
			pruned := followup.EncodeJSON(first.Document)

			again := testutils.NewMockProvider()
			again.Default = "yes"
			script(again, pruned)
			doc.Candidate = first.Document

			second, err := newOrchestrator(again).Run(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Removed).To(BeEmpty())
			Expect(again.CallsContaining(qRemoveKey)).To(BeZero())
			Expect(followup.EncodeJSON(second.Document)).To(Equal(pruned))
		})
	})

	It("writes no document when every discovered ligand is dropped", func() {
		mock.
			On(qFromTable, "['AO']").
			On(qFromCandidate, "['AO']").
			On(qPerformance, "The answer is unclear")
		doc.Candidate = decode(`{"AO": {"pzc": {"value": "NA"}}}`)

		out, err := newOrchestrator(mock).Run(ctx, doc)
		Expect(err).To(MatchError(followup.ErrNoLigandRefined))
		var sm *coerce.ShapeMismatchError
		Expect(errors.As(err, &sm)).To(BeTrue())
		Expect(out.Failures).To(HaveLen(1))
		Expect(out.Document).To(BeNil())
		Expect(mock.CallsContaining(qConditions)).To(BeZero())
	})

	It("fails the document when ligand discovery cannot be parsed", func() {
		mock.On(qFromTable, "AO and nothing else")

		out, err := newOrchestrator(mock).Run(ctx, doc)
		var sm *coerce.ShapeMismatchError
		Expect(errors.As(err, &sm)).To(BeTrue())
		Expect(out.Document).To(BeNil())
		Expect(mock.Calls()).To(Equal(2))
	})

	It("aborts the document on a non-retryable transport error", func() {
		mock.FailNext(&llm.TransportError{Provider: "mock", StatusCode: 401, Err: errors.New("unauthorized")})

		_, err := newOrchestrator(mock).Run(ctx, doc)
		Expect(llm.IsTransportError(err)).To(BeTrue())
	})
})

var _ = Describe("SplitTitle", func() {
	It("splits at the first closing table tag", func() {
		title, caption := followup.SplitTitle("<table>a</table>caption one</table>rest")
		Expect(title).To(Equal("<table>a</table>"))
		Expect(caption).To(Equal("caption one"))
	})

	It("treats a representation without a table tag as all title", func() {
		title, caption := followup.SplitTitle("a\tb")
		Expect(title).To(Equal("a\tb</table>"))
		Expect(caption).To(BeEmpty())
	})
})
