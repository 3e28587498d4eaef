package utils

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Truncate", func() {
	It("returns the string unchanged when within the limit", func() {
		Expect(Truncate("short", 10)).To(Equal("short"))
	})

	It("returns the string unchanged when exactly at the limit", func() {
		Expect(Truncate("12345", 5)).To(Equal("12345"))
	})

	It("truncates with ellipsis when over the limit", func() {
		Expect(Truncate("this is a long string", 10)).To(Equal("this is a ..."))
	})

	It("counts runes, not bytes", func() {
		Expect(Truncate("µmol/L in Å", 4)).To(Equal("µmol..."))
		Expect(Truncate("µµµ", 3)).To(Equal("µµµ"))
	})
})

var _ = Describe("BuildString", func() {
	It("names the binary with its version and commit", func() {
		Expect(BuildString()).To(Equal("ligandx dev (HEAD)"))
	})
})
