package gpu

import (
	"fmt"
	"sort"
	"sync"
)

// LiveObject is an object which was created and not yet released.
type LiveObject struct {
	ID   uint64
	Kind string
	Name string
}

func (o LiveObject) String() string {
	if o.Name == "" {
		return fmt.Sprintf("%s#%d", o.Kind, o.ID)
	}
	return fmt.Sprintf("%s#%d %q", o.Kind, o.ID, o.Name)
}

// Tracker records the objects a backend created and flags lifetime
// violations such as double release or release while in use by the GPU.
// It is safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	next       uint64
	live       map[uint64]LiveObject
	violations []string
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{live: make(map[uint64]LiveObject)}
}

// Track registers a new live object and returns its id.
func (t *Tracker) Track(kind, name string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	t.live[t.next] = LiveObject{ID: t.next, Kind: kind, Name: name}
	return t.next
}

// Rename changes the debug name of a live object.
func (t *Tracker) Rename(id uint64, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if o, ok := t.live[id]; ok {
		o.Name = name
		t.live[id] = o
	}
}

// Untrack removes a live object. Releasing an id twice is recorded as a
// violation.
func (t *Tracker) Untrack(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.live[id]; !ok {
		t.violations = append(t.violations, fmt.Sprintf("object #%d released twice", id))
		return
	}
	delete(t.live, id)
}

// Violate records a lifetime or ordering violation.
func (t *Tracker) Violate(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	t.mu.Lock()
	t.violations = append(t.violations, msg)
	t.mu.Unlock()

	Logger().Warn("gpu validation", "violation", msg)
}

// Live returns the objects which are still alive ordered by creation.
func (t *Tracker) Live() []LiveObject {
	t.mu.Lock()
	defer t.mu.Unlock()

	objects := make([]LiveObject, 0, len(t.live))
	for _, o := range t.live {
		objects = append(objects, o)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].ID < objects[j].ID })
	return objects
}

// Violations returns every violation recorded so far.
func (t *Tracker) Violations() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]string(nil), t.violations...)
}

// Report logs the live objects at warn level, or a summary line when there
// are none.
func (t *Tracker) Report() {
	live := t.Live()
	if len(live) == 0 {
		Logger().Info("live object report: no live objects")
		return
	}
	for _, o := range live {
		Logger().Warn("live object report", "object", o.String())
	}
}
