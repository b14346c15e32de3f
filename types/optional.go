package types

type (
	// Optional is a value that may be absent. The zero value is empty.
	Optional[T any] struct {
		value  T
		exists bool
	}
)

func Some[T any](value T) Optional[T] {
	return Optional[T]{
		value:  value,
		exists: true,
	}
}

func None[T any]() Optional[T] {
	// could also just use Optional[T]{}
	return Optional[T]{}
}

func (o Optional[T]) Unpack() (T, bool) {
	return o.value, o.exists
}

func (o Optional[T]) Value() T {
	if !o.exists {
		panic("Access value of empty Optional")
	}
	return o.value
}

// Or returns the value, or def when the optional is empty.
func (o Optional[T]) Or(def T) T {
	if !o.exists {
		return def
	}
	return o.value
}

func (o Optional[T]) Empty() bool {
	return !o.exists
}
