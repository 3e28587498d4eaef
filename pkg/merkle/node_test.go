package merkle_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ligandx/pkg/llm"
	"github.com/papercomputeco/ligandx/pkg/merkle"
)

var _ = Describe("Node", func() {
	It("hashes deterministically", func() {
		a := merkle.NewNode(merkle.Bucket{Role: llm.RoleUser, Content: "hello"}, nil)
		b := merkle.NewNode(merkle.Bucket{Role: llm.RoleUser, Content: "hello"}, nil)
		Expect(a.Hash).To(Equal(b.Hash))
		Expect(a.Hash).To(HaveLen(64))
		Expect(a.ParentHash).To(BeNil())
	})

	It("covers content, role and parent in the hash", func() {
		root := merkle.NewNode(merkle.Bucket{Role: llm.RoleSystem, Content: "sys"}, nil)
		a := merkle.NewNode(merkle.Bucket{Role: llm.RoleUser, Content: "hello"}, root)
		b := merkle.NewNode(merkle.Bucket{Role: llm.RoleUser, Content: "hello"}, nil)
		c := merkle.NewNode(merkle.Bucket{Role: llm.RoleAssistant, Content: "hello"}, root)
		d := merkle.NewNode(merkle.Bucket{Role: llm.RoleUser, Content: "hello!"}, root)

		Expect(*a.ParentHash).To(Equal(root.Hash))
		Expect(a.Hash).NotTo(Equal(b.Hash))
		Expect(a.Hash).NotTo(Equal(c.Hash))
		Expect(a.Hash).NotTo(Equal(d.Hash))
	})
})

var _ = Describe("Chain", func() {
	history := []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "sys"),
		llm.NewTextMessage(llm.RoleUser, "q1"),
	}

	It("links history and answer", func() {
		nodes := merkle.Chain(history, "a1", "gpt-4o")
		Expect(nodes).To(HaveLen(3))
		Expect(nodes[0].ParentHash).To(BeNil())
		Expect(*nodes[1].ParentHash).To(Equal(nodes[0].Hash))
		Expect(*nodes[2].ParentHash).To(Equal(nodes[1].Hash))

		head := merkle.Head(nodes)
		Expect(head.Message()).To(Equal(llm.NewTextMessage(llm.RoleAssistant, "a1")))
		Expect(head.Bucket.Model).To(Equal("gpt-4o"))
	})

	It("shares the prefix of conversations that branch", func() {
		a := merkle.Chain(history, "a1", "m")
		b := merkle.Chain(append(history[:1:1], llm.NewTextMessage(llm.RoleUser, "q2")), "a2", "m")
		Expect(a[0].Hash).To(Equal(b[0].Hash))
		Expect(a[1].Hash).NotTo(Equal(b[1].Hash))
	})

	It("reuses an answer node when the answer is replayed as history", func() {
		first := merkle.Chain(history, "a1", "m")
		next := merkle.Chain(append(history[:2:2],
			llm.NewTextMessage(llm.RoleAssistant, "a1"),
			llm.NewTextMessage(llm.RoleUser, "q2"),
		), "a2", "m")
		Expect(next[2].Hash).To(Equal(merkle.Head(first).Hash))
	})

	It("has no head when empty", func() {
		Expect(merkle.Head(nil)).To(BeNil())
	})
})
