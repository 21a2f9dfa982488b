package gpu

import (
	"errors"
	"testing"

	"github.com/onsi/gomega"
)

type stubFactory struct {
	Factory
	opts Options
}

func TestRegistryOpen(t *testing.T) {
	g := gomega.NewWithT(t)

	Register("stub-registry-test", func(opts Options) (Factory, error) {
		return &stubFactory{opts: opts}, nil
	})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(backends, "stub-registry-test")
		registryMu.Unlock()
	})

	g.Expect(Available()).To(gomega.ContainElement("stub-registry-test"))

	f, err := Open("stub-registry-test", Options{Debug: true, AppName: "test"})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(f.(*stubFactory).opts.Debug).To(gomega.BeTrue())
}

func TestRegistryUnknownBackend(t *testing.T) {
	g := gomega.NewWithT(t)

	_, err := Open("does-not-exist", Options{})
	g.Expect(errors.Is(err, ErrBackendNotAvailable)).To(gomega.BeTrue())
}
