package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ligandx/pkg/dotdir"
)

var _ = Describe("dotdir", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-test-*")
		Expect(err).NotTo(HaveOccurred())

		// Resolve symlinks so paths match filepath.Abs results
		// (e.g. on macOS /var -> /private/var).
		tmpDir, err = filepath.EvalSymlinks(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("Target", func() {
		It("creates the override directory if it doesn't exist", func() {
			dir := filepath.Join(tmpDir, "newdir")
			result, err := m.Target(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(dir))

			info, err := os.Stat(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.IsDir()).To(BeTrue())
		})

		Context("with a local .ligandx directory", func() {
			var origDir string

			BeforeEach(func() {
				var err error
				origDir, err = os.Getwd()
				Expect(err).NotTo(HaveOccurred())
				Expect(os.MkdirAll(filepath.Join(tmpDir, dotdir.DirName), 0o755)).To(Succeed())
				Expect(os.Chdir(tmpDir)).To(Succeed())
			})

			AfterEach(func() {
				Expect(os.Chdir(origDir)).To(Succeed())
			})

			It("prefers the local directory over home", func() {
				result, err := m.Target("")
				Expect(err).NotTo(HaveOccurred())
				Expect(result).To(Equal(filepath.Join(tmpDir, dotdir.DirName)))
			})

			It("still honours an explicit override", func() {
				override := filepath.Join(tmpDir, "elsewhere")
				result, err := m.Target(override)
				Expect(err).NotTo(HaveOccurred())
				Expect(result).To(Equal(override))
			})
		})
	})

	Describe("File", func() {
		It("joins the name onto the resolved directory", func() {
			path, err := m.File(tmpDir, "ligandx.db")
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(filepath.Join(tmpDir, "ligandx.db")))
		})
	})
})
