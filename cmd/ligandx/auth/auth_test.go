package authcmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/ligandx/cmd/ligandx/auth"
	"github.com/papercomputeco/ligandx/pkg/credentials"
)

var _ = Describe("Auth Command", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	newCmd := func(stdin string, args ...string) *cobra.Command {
		cmd := authcmder.NewAuthCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .ligandx/ config directory")
		out = &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetIn(bytes.NewBufferString(stdin))
		cmd.SetArgs(append(args, "--config-dir", tmpDir))
		return cmd
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("has --list and --remove flags", func() {
		cmd := authcmder.NewAuthCmd()
		Expect(cmd.Use).To(Equal("auth [provider]"))
		Expect(cmd.Flags().Lookup("list")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("remove")).NotTo(BeNil())
	})

	It("stores a key read from stdin", func() {
		Expect(newCmd("  sk-piped \n", "openai").Execute()).To(Succeed())

		mgr, err := credentials.NewManager(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		key, err := mgr.GetKey("openai")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("sk-piped"))
	})

	It("rejects an empty key", func() {
		err := newCmd("\n", "anthropic").Execute()
		Expect(err).To(MatchError(ContainSubstring("cannot be empty")))
	})

	It("lists stored credentials", func() {
		mgr, err := credentials.NewManager(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.SetKey("gemini", "g-test")).To(Succeed())

		Expect(newCmd("", "--list").Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("gemini"))
		Expect(out.String()).NotTo(ContainSubstring("g-test"))
	})

	It("reports when nothing is stored", func() {
		Expect(newCmd("", "--list").Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No stored credentials"))
	})

	It("removes stored credentials", func() {
		mgr, err := credentials.NewManager(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())

		Expect(newCmd("", "--remove", "openai").Execute()).To(Succeed())

		key, err := mgr.GetKey("openai")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(BeEmpty())
	})

	It("requires a provider", func() {
		err := newCmd("").Execute()
		Expect(err).To(MatchError(ContainSubstring("provider argument required")))
	})

	It("rejects unsupported providers", func() {
		err := newCmd("sk-test\n", "ollama").Execute()
		Expect(err).To(MatchError(ContainSubstring("unsupported provider")))
	})

	It("completes provider names", func() {
		cmd := authcmder.NewAuthCmd()
		completions, directive := cmd.ValidArgsFunction(cmd, []string{}, "")
		Expect(completions).To(ConsistOf("openai", "anthropic", "gemini"))
		Expect(directive).To(Equal(cobra.ShellCompDirectiveNoFileComp))
	})
})
