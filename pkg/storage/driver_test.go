package storage_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ligandx/pkg/llm"
	"github.com/papercomputeco/ligandx/pkg/merkle"
	"github.com/papercomputeco/ligandx/pkg/storage"
	"github.com/papercomputeco/ligandx/pkg/storage/inmemory"
)

var _ = Describe("PutChain", func() {
	history := []llm.Message{
		{Role: llm.RoleSystem, Content: "You extract ligand tables."},
		{Role: llm.RoleUser, Content: "Question 1. Which ligands?"},
	}

	It("counts only newly stored nodes", func() {
		ctx := context.Background()
		driver := inmemory.NewDriver()

		first := merkle.Chain(history, "['BDC']", "gpt-4o")
		added, err := storage.PutChain(ctx, driver, first)
		Expect(err).NotTo(HaveOccurred())
		Expect(added).To(Equal(3))

		second := merkle.Chain(history, "['BDC', 'BTC']", "gpt-4o")
		added, err = storage.PutChain(ctx, driver, second)
		Expect(err).NotTo(HaveOccurred())
		Expect(added).To(Equal(1))
		Expect(driver.Count()).To(Equal(4))
	})
})

var _ = Describe("NotFoundError", func() {
	It("names the kind and id", func() {
		Expect(storage.NotFoundError{Kind: "run", ID: "r1"}.Error()).To(Equal("run not found: r1"))
		Expect(storage.NotFoundError{}.Error()).To(Equal("node not found"))
	})
})
