package testutils

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:staticcheck // shared specs
	. "github.com/onsi/gomega"    //nolint:staticcheck // shared specs

	"github.com/papercomputeco/ligandx/pkg/llm"
	"github.com/papercomputeco/ligandx/pkg/merkle"
	"github.com/papercomputeco/ligandx/pkg/storage"
)

// DescribeDriver registers the specs every storage.Driver must pass.
// newDriver must return an empty store; it is closed after each spec.
func DescribeDriver(name string, newDriver func() storage.Driver) bool {
	return Describe(name+" driver", func() {
		var (
			driver storage.Driver
			ctx    context.Context
		)

		history := []llm.Message{
			llm.NewTextMessage(llm.RoleSystem, "sys"),
			llm.NewTextMessage(llm.RoleUser, "Which ligands appear?"),
		}

		BeforeEach(func() {
			ctx = context.Background()
			driver = newDriver()
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		Describe("nodes", func() {
			It("inserts once and reports duplicates", func() {
				node := merkle.NewNode(merkle.Bucket{Role: llm.RoleUser, Content: "q"}, nil)

				isNew, err := driver.Put(ctx, node)
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeTrue())

				isNew, err = driver.Put(ctx, node)
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeFalse())
			})

			It("rejects a nil node", func() {
				_, err := driver.Put(ctx, nil)
				Expect(err).To(HaveOccurred())
			})

			It("round-trips a node", func() {
				chain := merkle.Chain(history, `["AO"]`, "gpt-4")
				_, err := storage.PutChain(ctx, driver, chain)
				Expect(err).NotTo(HaveOccurred())

				head := merkle.Head(chain)
				got, err := driver.Get(ctx, head.Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Hash).To(Equal(head.Hash))
				Expect(got.Bucket).To(Equal(head.Bucket))
				Expect(*got.ParentHash).To(Equal(chain[1].Hash))
			})

			It("returns NotFoundError for an unknown hash", func() {
				_, err := driver.Get(ctx, "nope")
				Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))
			})

			It("walks ancestry from head to root", func() {
				chain := merkle.Chain(history, "a", "m")
				added, err := storage.PutChain(ctx, driver, chain)
				Expect(err).NotTo(HaveOccurred())
				Expect(added).To(Equal(3))

				path, err := driver.Ancestry(ctx, merkle.Head(chain).Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(path).To(HaveLen(3))
				Expect(path[0].Bucket.Content).To(Equal("a"))
				Expect(path[2].ParentHash).To(BeNil())
			})
		})

		Describe("runs and documents", func() {
			started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			BeforeEach(func() {
				Expect(driver.CreateRun(ctx, storage.Run{
					ID: "old", Provider: "openai", Model: "gpt-4", StartedAt: started,
				})).To(Succeed())
				Expect(driver.CreateRun(ctx, storage.Run{
					ID: "new", Provider: "ollama", Model: "llama3", StartedAt: started.Add(time.Hour),
				})).To(Succeed())
			})

			It("lists runs newest first with document counts", func() {
				Expect(driver.RecordDocument(ctx, storage.Document{
					RunID: "old", Key: "p1", Status: storage.StatusRefined, Ligands: []string{"AO"},
				})).To(Succeed())

				runs, err := driver.ListRuns(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(runs).To(HaveLen(2))
				Expect(runs[0].ID).To(Equal("new"))
				Expect(runs[0].Documents).To(Equal(0))
				Expect(runs[1].ID).To(Equal("old"))
				Expect(runs[1].Documents).To(Equal(1))
				Expect(runs[1].StartedAt.Equal(started)).To(BeTrue())
			})

			It("stamps the finish time", func() {
				finished := started.Add(2 * time.Hour)
				Expect(driver.FinishRun(ctx, "old", finished)).To(Succeed())

				run, err := driver.GetRun(ctx, "old")
				Expect(err).NotTo(HaveOccurred())
				Expect(run.FinishedAt).NotTo(BeNil())
				Expect(run.FinishedAt.Equal(finished)).To(BeTrue())
			})

			It("returns NotFoundError for unknown runs", func() {
				_, err := driver.GetRun(ctx, "missing")
				Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))
				Expect(driver.FinishRun(ctx, "missing", started)).To(BeAssignableToTypeOf(storage.NotFoundError{}))
			})

			It("replaces a re-recorded document and orders by key", func() {
				for _, doc := range []storage.Document{
					{RunID: "old", Key: "p2", Status: storage.StatusFailed, Error: "boom"},
					{RunID: "old", Key: "p1", Status: storage.StatusPartial, Ligands: []string{"AO", "DMSO"}, Failures: 1},
					{RunID: "old", Key: "p2", Status: storage.StatusRefined, Ligands: []string{"TEA"}},
				} {
					Expect(driver.RecordDocument(ctx, doc)).To(Succeed())
				}

				docs, err := driver.ListDocuments(ctx, "old")
				Expect(err).NotTo(HaveOccurred())
				Expect(docs).To(HaveLen(2))
				Expect(docs[0].Key).To(Equal("p1"))
				Expect(docs[0].Ligands).To(Equal([]string{"AO", "DMSO"}))
				Expect(docs[0].Failures).To(Equal(1))
				Expect(docs[1].Status).To(Equal(storage.StatusRefined))
				Expect(docs[1].Error).To(BeEmpty())
			})

			It("lists no documents for an empty run", func() {
				docs, err := driver.ListDocuments(ctx, "new")
				Expect(err).NotTo(HaveOccurred())
				Expect(docs).To(BeEmpty())
			})
		})
	})
}
