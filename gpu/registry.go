package gpu

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrBackendNotAvailable is returned by Open for unregistered backends.
var ErrBackendNotAvailable = errors.New("gpu: backend not available")

// OpenFunc creates a Factory for a backend.
type OpenFunc func(opts Options) (Factory, error)

var (
	registryMu sync.RWMutex
	backends   = make(map[string]OpenFunc)
)

// Register makes a backend available under name. It is typically called from
// the init function of the backend package. Registering the same name twice
// replaces the previous backend.
func Register(name string, open OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = open
}

// Available returns the sorted names of all registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates a Factory using the named backend.
func Open(name string, opts Options) (Factory, error) {
	registryMu.RLock()
	open, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrBackendNotAvailable, name, Available())
	}

	Logger().Debug("opening gpu backend", "backend", name, "debug", opts.Debug)
	return open(opts)
}
