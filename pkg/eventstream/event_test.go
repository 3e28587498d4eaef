package eventstream_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ligandx/pkg/eventstream"
	"github.com/papercomputeco/ligandx/pkg/utils"
)

var _ = Describe("Event", func() {
	It("stamps schema, type and a unique id", func() {
		a := eventstream.NewDocumentRefinedEvent(eventstream.EventSource{RunID: "r"}, eventstream.DocumentRef{Key: "k"})
		b := eventstream.NewDocumentRefinedEvent(eventstream.EventSource{RunID: "r"}, eventstream.DocumentRef{Key: "k"})

		Expect(a.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(a.EventType).To(Equal(eventstream.EventTypeDocumentRefined))
		Expect(a.EventID).NotTo(BeEmpty())
		Expect(a.EventID).NotTo(Equal(b.EventID))
		Expect(a.EmittedAt.IsZero()).To(BeFalse())
	})

	It("marshals with expected top-level keys and an empty ligand list", func() {
		evt := eventstream.NewDocumentRefinedEvent(
			eventstream.EventSource{RunID: "r", Provider: "ollama", Model: "llama3"},
			eventstream.DocumentRef{Key: "paper_1", Status: "failed"},
		)
		data, err := json.Marshal(evt)
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded).To(HaveKey("schema_version"))
		Expect(decoded).To(HaveKey("event_id"))
		Expect(decoded).To(HaveKey("emitted_at"))
		Expect(decoded).To(HaveKey("source"))
		Expect(decoded["document"]).To(HaveKeyWithValue("ligands", []any{}))
	})

	It("records the running build unless the source names one", func() {
		stamped := eventstream.NewDocumentRefinedEvent(eventstream.EventSource{RunID: "r"}, eventstream.DocumentRef{Key: "k"})
		Expect(stamped.Source.Build).To(Equal(utils.BuildString()))

		pinned := eventstream.NewDocumentRefinedEvent(eventstream.EventSource{RunID: "r", Build: "ligandx v1.2.0 (abc123)"}, eventstream.DocumentRef{Key: "k"})
		Expect(pinned.Source.Build).To(Equal("ligandx v1.2.0 (abc123)"))
	})
})
