// Package events holds the window description and the event queue shared by
// the native window and the renderer. It does not depend on cgo.
package events

// Desc describes a window.
type Desc struct {
	Width      int
	Height     int
	Fullscreen bool
}

// Minimized reports whether the drawable area is empty.
func (d Desc) Minimized() bool {
	return d.Width <= 0 || d.Height <= 0
}

// EventType is the kind of a window event.
type EventType int

const (
	// Resize is emitted when the framebuffer size changes.
	Resize EventType = iota

	// Close is emitted when the user asks to close the window.
	Close
)

func (t EventType) String() string {
	switch t {
	case Resize:
		return "resize"
	case Close:
		return "close"
	}
	return "unknown"
}

// ResizeData is the new framebuffer size in pixels.
type ResizeData struct {
	Width  int
	Height int
}

// Event is one entry of the event queue.
type Event struct {
	Type   EventType
	Resize ResizeData
}

// EventQueue is a FIFO of window events.
type EventQueue struct {
	events []Event
}

// Push appends e to the queue.
func (q *EventQueue) Push(e Event) {
	q.events = append(q.events, e)
}

// Empty reports whether there are no queued events.
func (q *EventQueue) Empty() bool {
	return len(q.events) == 0
}

// Front returns the oldest event. It must not be called on an empty queue.
func (q *EventQueue) Front() Event {
	return q.events[0]
}

// Pop removes the oldest event.
func (q *EventQueue) Pop() {
	if len(q.events) == 0 {
		return
	}
	q.events[0] = Event{}
	q.events = q.events[1:]
	if len(q.events) == 0 {
		q.events = q.events[:0:0]
	}
}
