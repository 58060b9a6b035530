package ptrutil

// ToPtr returns a pointer to the given value.
func ToPtr[T any](v T) *T {
	return &v
}

// ValueOrDefault safely dereferences a pointer, returning the type's
// zero value for nil.
func ValueOrDefault[T any](v *T) T {
	if v != nil {
		return *v
	}

	var def T
	return def
}

// Clone returns a pointer to a shallow copy of the given pointer's value,
// or nil for nil.
func Clone[T any](v *T) *T {
	if v == nil {
		return nil
	}

	clone := *v
	return &clone
}
