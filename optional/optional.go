// Package optional implements a value which may or may not be set.
package optional

// Optional holds a value of type T and remembers whether it was ever set.
// The zero value is an empty Optional.
type Optional[T any] struct {
	value T
	set   bool
}

// Of returns an Optional which holds v.
func Of[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// Set stores v.
func (o *Optional[T]) Set(v T) {
	o.value = v
	o.set = true
}

// HasValue returns true if a value has been set.
func (o Optional[T]) HasValue() bool {
	return o.set
}

// Get returns the stored value. It panics when called on an empty Optional,
// so callers are expected to check HasValue first.
func (o Optional[T]) Get() T {
	if !o.set {
		panic("optional: Get called on an empty value")
	}
	return o.value
}

// GetOr returns the stored value or def when empty.
func (o Optional[T]) GetOr(def T) T {
	if !o.set {
		return def
	}
	return o.value
}

// Reset makes the Optional empty again.
func (o *Optional[T]) Reset() {
	var zero T
	o.value = zero
	o.set = false
}
