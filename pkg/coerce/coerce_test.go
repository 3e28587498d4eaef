package coerce_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ligandx/pkg/coerce"
)

var _ = Describe("ToList", func() {
	It("parses single-quoted sequence literals", func() {
		Expect(coerce.ToList(`['a','b']`)).To(Equal([]any{"a", "b"}))
	})

	It("strips exactly one layer of surrounding quotes", func() {
		Expect(coerce.ToList(`"['a','b']"`)).To(Equal([]any{"a", "b"}))
		Expect(coerce.ToList(`"['a', "b"]"`)).To(Equal([]any{"a", "b"}))
	})

	It("parses nested strings and numbers", func() {
		v, err := coerce.ToList(`[['12 mg', 3.5], ["x", -1e3], True, None]`)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal([]any{[]any{"12 mg", 3.5}, []any{"x", -1000.0}, true, nil}))
	})

	It("accepts fenced answers and trailing commas", func() {
		Expect(coerce.ToList("```python\n['UiO-66', 'MOF-5',]\n```")).To(Equal([]any{"UiO-66", "MOF-5"}))
	})

	It("returns an empty list for []", func() {
		Expect(coerce.ToList(`[]`)).To(BeEmpty())
	})

	DescribeTable("rejects non-sequences with a ShapeMismatchError",
		func(raw string) {
			_, err := coerce.ToList(raw)
			var sme *coerce.ShapeMismatchError
			Expect(errors.As(err, &sme)).To(BeTrue())
			Expect(sme.Shape).To(Equal(coerce.List))
			Expect(sme.Raw).To(Equal(raw))
		},
		Entry("prose", `The ligands are UiO-66 and MOF-5.`),
		Entry("dict", `{'a': 1}`),
		Entry("tuple", `('a', 'b')`),
		Entry("expression", `['a'] + ['b']`),
		Entry("call", `[__import__('os')]`),
		Entry("unterminated", `['a', 'b'`),
		Entry("bare string", `"UiO-66"`),
	)
})

var _ = Describe("ToDict", func() {
	It("strips fences with a language tag", func() {
		Expect(coerce.ToDict("```json\n{\"a\": 1}\n```")).To(Equal(map[string]any{"a": 1.0}))
	})

	It("strips fences without a language tag", func() {
		Expect(coerce.ToDict("```\n{\"a\": [1, 2]}\n```")).To(Equal(map[string]any{"a": []any{1.0, 2.0}}))
	})

	It("parses plain JSON", func() {
		Expect(coerce.ToDict(`  {"UiO-66": {"pzc": "5.2"}}  `)).To(HaveKey("UiO-66"))
	})

	It("passes through valid non-object JSON for the caller to judge", func() {
		Expect(coerce.ToDict(`["a"]`)).To(Equal([]any{"a"}))
	})

	DescribeTable("rejects invalid JSON",
		func(raw string) {
			_, err := coerce.ToDict(raw)
			var sme *coerce.ShapeMismatchError
			Expect(errors.As(err, &sme)).To(BeTrue())
			Expect(sme.Shape).To(Equal(coerce.Dict))
		},
		Entry("single quotes", `{'a': 1}`),
		Entry("prose", `Here is the JSON you asked for`),
		Entry("trailing text", `{"a": 1} hope this helps`),
		Entry("empty", ``),
	)
})

var _ = Describe("strings", func() {
	It("trims whitespace and one trailing period", func() {
		Expect(coerce.ToString("  Yes.  ")).To(Equal("Yes"))
	})

	DescribeTable("YesNo",
		func(raw, expected string) {
			Expect(coerce.YesNo(raw)).To(Equal(expected))
		},
		Entry("plain", "no", "no"),
		Entry("capitalized with period", "No.", "no"),
		Entry("padded", "  YES \n", "yes"),
	)

	It("detects no answers", func() {
		Expect(coerce.IsNo("No.")).To(BeTrue())
		Expect(coerce.IsNo("Yes")).To(BeFalse())
	})
})

var _ = Describe("Coerce", func() {
	It("dispatches on shape", func() {
		Expect(coerce.Coerce(coerce.List, `[1]`)).To(Equal([]any{1.0}))
		Expect(coerce.Coerce(coerce.Dict, `{}`)).To(Equal(map[string]any{}))
		Expect(coerce.Coerce(coerce.String, `no.`)).To(Equal("no"))
	})

	It("rejects unknown shapes", func() {
		_, err := coerce.Coerce(coerce.Shape("tuple"), `()`)
		Expect(err).To(HaveOccurred())
	})

	It("parses shape tags", func() {
		Expect(coerce.ParseShape(" Dict ")).To(Equal(coerce.Dict))
		_, err := coerce.ParseShape("both")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ParseLiteral", func() {
	It("handles triple-quoted strings and escapes", func() {
		Expect(coerce.ParseLiteral(`['"""UiO-66"""', '°C', 'it\'s']`)).To(Equal([]any{`"""UiO-66"""`, "°C", "it's"}))
		Expect(coerce.ParseLiteral(`["""multi
line"""]`)).To(Equal([]any{"multi\nline"}))
	})

	It("parses dicts with string keys", func() {
		Expect(coerce.ParseLiteral(`{'a': [1, {'b': False}]}`)).To(Equal(map[string]any{"a": []any{1.0, map[string]any{"b": false}}}))
	})

	It("rejects non-string dict keys", func() {
		_, err := coerce.ParseLiteral(`{1: 'a'}`)
		Expect(err).To(HaveOccurred())
	})

	It("bounds nesting depth", func() {
		deep := ""
		for range 100 {
			deep += "["
		}
		_, err := coerce.ParseLiteral(deep)
		Expect(err).To(MatchError(ContainSubstring("nesting too deep")))
	})
})
