package ligand_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ligandx/pkg/ligand"
)

func decode(s string) any {
	var v any
	Expect(json.Unmarshal([]byte(s), &v)).To(Succeed())
	return v
}

var _ = Describe("RecordFromFragment", func() {
	It("reads a fragment keyed by the ligand name and prunes empty values", func() {
		rec := ligand.RecordFromFragment(decode(`{"AO": {"pzc": {"value": "4.5"}, "specific_area": "", "pzc_note": {}}}`), "AO")
		Expect(rec.Name).To(Equal("AO"))
		Expect(rec.Properties).To(Equal(map[string]any{"pzc": map[string]any{"value": "4.5"}}))
	})

	It("matches the ligand name case-insensitively", func() {
		rec := ligand.RecordFromFragment(decode(`{"ao ": {"pzc": "4"}}`), "AO")
		Expect(rec.Properties).To(Equal(map[string]any{"pzc": "4"}))
	})

	It("looks inside a ligands wrapper", func() {
		rec := ligand.RecordFromFragment(decode(`{"ligands": [{"A": {"pzc": "1"}}, {"B": {"pzc": "2"}}]}`), "B")
		Expect(rec.Properties).To(Equal(map[string]any{"pzc": "2"}))
	})

	It("accepts a single mislabeled object", func() {
		rec := ligand.RecordFromFragment(decode(`{"ligand_name": {"pzc": "3"}}`), "AO")
		Expect(rec.Name).To(Equal("AO"))
		Expect(rec.Properties).To(Equal(map[string]any{"pzc": "3"}))
	})

	It("treats anything else as the properties", func() {
		rec := ligand.RecordFromFragment(decode(`{"pzc": "3", "specific_area": "10"}`), "AO")
		Expect(rec.Properties).To(HaveKey("specific_area"))
	})
})

var _ = Describe("Reconcile", func() {
	candidate := map[string]any{"X": map[string]any{"pzc": "1"}}

	It("falls back to the candidate when nothing was refined", func() {
		r := ligand.Reconcile(nil, candidate)
		Expect(r.Kind()).To(Equal(ligand.Empty))
		Expect(r.Value()).To(Equal(candidate))
	})

	It("keeps a single ligand unwrapped", func() {
		r := ligand.Reconcile([]ligand.Record{{Name: "AO", Properties: map[string]any{"pzc": "4"}}}, candidate)
		Expect(r.Kind()).To(Equal(ligand.Single))
		out, err := json.Marshal(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(MatchJSON(`{"AO": {"pzc": "4"}}`))
	})

	It("wraps several ligands in discovery order", func() {
		r := ligand.Reconcile([]ligand.Record{
			{Name: "B", Properties: map[string]any{"pzc": "2"}},
			{Name: "A", Properties: nil},
		}, candidate)
		Expect(r.Kind()).To(Equal(ligand.Multiple))
		Expect(r.Names()).To(Equal([]string{"B", "A"}))
		out, err := json.Marshal(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(MatchJSON(`{"ligands": [{"B": {"pzc": "2"}}, {"A": {}}]}`))
	})
})

var _ = Describe("Prune", func() {
	It("drops empty strings, nulls and containers left empty", func() {
		in := decode(`{"a": "", "b": null, "c": {"d": ""}, "e": [" ", []], "f": 0, "g": "x"}`)
		Expect(ligand.Prune(in)).To(Equal(map[string]any{"f": 0.0, "g": "x"}))
	})
})

var _ = Describe("HasKey", func() {
	It("finds keys at any depth", func() {
		v := decode(`{"ligands": [{"A": {"electrolyte": "NaCl"}}]}`)
		Expect(ligand.HasKey(v, "electrolyte")).To(BeTrue())
		Expect(ligand.HasKey(v, "substrate")).To(BeFalse())
	})
})

var _ = Describe("numeric diff", func() {
	DescribeTable("NumericPart",
		func(in any, want float64, ok bool) {
			got, gotOK := ligand.NumericPart(in)
			Expect(gotOK).To(Equal(ok))
			if ok {
				Expect(got).To(BeNumerically("~", want))
			}
		},
		Entry("unit with space", "12 mg", 12.0, true),
		Entry("unit without space", "12mg", 12.0, true),
		Entry("decimal", " 0.25 g/L", 0.25, true),
		Entry("negative", "-3 mV", -3.0, true),
		Entry("exponent", "1e-3 M", 1e-3, true),
		Entry("signed exponent", "2.5E+2", 250.0, true),
		Entry("bare e after digits", "3eq", 3.0, true),
		Entry("digit after comma", "12,5", 0.0, false),
		Entry("grouped thousands", "1,000 ppm", 0.0, false),
		Entry("list separator", "12, 5", 12.0, true),
		Entry("range", "10-20 min", 10.0, true),
		Entry("float", 7.5, 7.5, true),
		Entry("text", "NA", 0.0, false),
		Entry("empty", "", 0.0, false),
	)

	It("ignores unit differences", func() {
		Expect(ligand.MissingValues([]any{"12 mg"}, []any{"12"})).To(BeEmpty())
		Expect(ligand.MissingValues([]any{"12 mg"}, []any{"13 mg"})).To(Equal([]any{"12 mg"}))
	})

	It("tells exponents and comma-separated digits apart", func() {
		Expect(ligand.MissingValues([]any{"1e-3"}, []any{"1e-5"})).To(Equal([]any{"1e-3"}))
		Expect(ligand.MissingValues([]any{"1e-3 M"}, []any{"0.001"})).To(BeEmpty())
		Expect(ligand.MissingValues([]any{"12,5"}, []any{"125"})).To(Equal([]any{"12,5"}))
		Expect(ligand.MissingValues([]any{"12,5"}, []any{"12,5"})).To(BeEmpty())
	})

	It("returns values absent from the reference in order", func() {
		missing := ligand.MissingValues(
			[]any{"5 h", "Room temperature", []any{"3 g"}, "7"},
			[]any{"5", "room temperature", 7.0},
		)
		Expect(missing).To(Equal([]any{"3 g"}))
	})
})
