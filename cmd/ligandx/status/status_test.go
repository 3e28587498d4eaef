package statuscmder_test

import (
	"bytes"
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	statuscmder "github.com/papercomputeco/ligandx/cmd/ligandx/status"
	"github.com/papercomputeco/ligandx/pkg/storage"
	"github.com/papercomputeco/ligandx/pkg/storage/inmemory"
	"github.com/papercomputeco/ligandx/pkg/watchstate"
)

var _ = Describe("NewStatusCmd", func() {
	It("accepts at most one run ID", func() {
		cmd := statuscmder.NewStatusCmd()
		Expect(cmd.Args(cmd, []string{})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"a"})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"a", "b"})).NotTo(Succeed())
	})

	It("registers the storage flags", func() {
		cmd := statuscmder.NewStatusCmd()
		for _, name := range []string{"storage", "sqlite", "postgres-dsn"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})
})

var _ = Describe("Print", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		out = &bytes.Buffer{}
	})

	It("reports an empty store", func() {
		Expect(statuscmder.Print(ctx, out, driver, "")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No runs recorded"))
	})

	It("lists runs", func() {
		started := time.Now().Add(-time.Minute)
		Expect(driver.CreateRun(ctx, storage.Run{ID: "run-a", Provider: "ollama", Model: "llama3.1", StartedAt: started})).To(Succeed())
		Expect(driver.CreateRun(ctx, storage.Run{ID: "run-b", Provider: "ollama", Model: "llama3.1", StartedAt: started})).To(Succeed())
		Expect(driver.FinishRun(ctx, "run-a", started.Add(30*time.Second))).To(Succeed())

		Expect(statuscmder.Print(ctx, out, driver, "")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("run-a"))
		Expect(out.String()).To(ContainSubstring("run-b"))
		Expect(out.String()).To(ContainSubstring("finished in 30s"))
		Expect(out.String()).To(ContainSubstring("running"))
	})

	It("shows the documents of a run", func() {
		Expect(driver.CreateRun(ctx, storage.Run{ID: "run-a", Provider: "openai", Model: "gpt-4o", StartedAt: time.Now()})).To(Succeed())
		Expect(driver.RecordDocument(ctx, storage.Document{
			RunID: "run-a", Key: "table1", Status: storage.StatusRefined, Ligands: []string{"L1", "L2"},
		})).To(Succeed())
		Expect(driver.RecordDocument(ctx, storage.Document{
			RunID: "run-a", Key: "table2", Status: storage.StatusFailed, Error: strings.Repeat("x", 200),
		})).To(Succeed())

		Expect(statuscmder.Print(ctx, out, driver, "run-a")).To(Succeed())

		text := out.String()
		Expect(text).To(ContainSubstring("openai/gpt-4o"))
		Expect(text).To(ContainSubstring("table1"))
		Expect(text).To(ContainSubstring("L1, L2"))
		Expect(text).To(ContainSubstring(strings.Repeat("x", 72) + "..."))
		Expect(text).NotTo(ContainSubstring(strings.Repeat("x", 73)))
		Expect(text).To(ContainSubstring("1 refined"))
		Expect(text).To(ContainSubstring("1 failed"))
	})

	It("fails for an unknown run", func() {
		err := statuscmder.Print(ctx, out, driver, "missing")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("not found"))
	})
})

var _ = Describe("status command", func() {
	It("reports a recorded watcher and the runs of the sqlite store", func() {
		configDir := GinkgoT().TempDir()
		manager, err := watchstate.NewManager(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(manager.SaveState(&watchstate.State{RunID: "run-w", CandidateDir: "incoming"})).To(Succeed())

		cmd := statuscmder.NewStatusCmd()
		cmd.Flags().String("config-dir", "", "")
		cmd.Flags().Bool("debug", false, "")
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--config-dir", configDir, "--storage", "sqlite"})

		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("incoming"))
		Expect(out.String()).To(ContainSubstring("run-w"))
		Expect(out.String()).To(ContainSubstring("No runs recorded"))
	})

	It("fails without a run store", func() {
		cmd := statuscmder.NewStatusCmd()
		cmd.Flags().String("config-dir", "", "")
		cmd.Flags().Bool("debug", false, "")
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--config-dir", GinkgoT().TempDir(), "--storage", "none"})

		Expect(cmd.Execute()).To(MatchError(ContainSubstring("no run store")))
	})
})
