package shaders

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onsi/gomega"
)

const spirvMagic = 0x07230203

func TestCompileEmbedded(t *testing.T) {
	g := gomega.NewWithT(t)

	for _, name := range []string{Vertex, Pixel} {
		src, err := Source(name)
		g.Expect(err).NotTo(gomega.HaveOccurred())

		code, err := Compile(name, src)
		g.Expect(err).NotTo(gomega.HaveOccurred(), name)
		g.Expect(len(code) % 4).To(gomega.BeZero())
		g.Expect(binary.LittleEndian.Uint32(code)).To(gomega.Equal(uint32(spirvMagic)))
	}

	_, err := Source("missing")
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestCompileError(t *testing.T) {
	g := gomega.NewWithT(t)

	_, err := Compile("broken", "@vertex fn main( -> {")
	g.Expect(err).To(gomega.HaveOccurred())

	var ce *CompileError
	g.Expect(errors.As(err, &ce)).To(gomega.BeTrue())
	g.Expect(ce.Name).To(gomega.Equal("broken"))
	g.Expect(ce.Diagnostic).NotTo(gomega.BeEmpty())
	g.Expect(err.Error()).To(gomega.ContainSubstring(ce.Diagnostic))
}

func TestLibraryDevPersists(t *testing.T) {
	g := gomega.NewWithT(t)
	dir := filepath.Join(t.TempDir(), "assets")

	lib := NewLibrary(dir, true)
	vs, ps, err := lib.LoadPipeline()
	g.Expect(err).NotTo(gomega.HaveOccurred())

	persisted, err := os.ReadFile(filepath.Join(dir, Vertex+".spv"))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(persisted).To(gomega.Equal(vs))

	// Production mode picks up what development mode persisted.
	prod := NewLibrary(dir, false)
	prodPS, err := prod.Load(Pixel)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(prodPS).To(gomega.Equal(ps))
}

func TestLibraryDevPrefersDiskSource(t *testing.T) {
	g := gomega.NewWithT(t)
	dir := t.TempDir()

	err := os.WriteFile(filepath.Join(dir, Pixel+".wgsl"), []byte("this is not wgsl"), 0o644)
	g.Expect(err).NotTo(gomega.HaveOccurred())

	_, err = NewLibrary(dir, true).Load(Pixel)
	var ce *CompileError
	g.Expect(errors.As(err, &ce)).To(gomega.BeTrue())
}

func TestLibraryProdFallsBackToEmbedded(t *testing.T) {
	g := gomega.NewWithT(t)
	dir := t.TempDir()

	code, err := NewLibrary(dir, false).Load(Vertex)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(binary.LittleEndian.Uint32(code)).To(gomega.Equal(uint32(spirvMagic)))

	_, err = os.Stat(filepath.Join(dir, Vertex+".spv"))
	g.Expect(os.IsNotExist(err)).To(gomega.BeTrue())
}

func TestWatcher(t *testing.T) {
	g := gomega.NewWithT(t)
	dir := t.TempDir()

	w, err := NewWatcher(dir)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer w.Close()

	src, err := Source(Pixel)
	g.Expect(err).NotTo(gomega.HaveOccurred())

	err = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	err = os.WriteFile(filepath.Join(dir, Pixel+".wgsl"), []byte(src), 0o644)
	g.Expect(err).NotTo(gomega.HaveOccurred())

	g.Eventually(w.Changes(), 5*time.Second).Should(gomega.Receive(gomega.Equal(Pixel)))
}
