package utils

// Value dereferences v, yielding the zero value for nil. Handy for logging
// nullable tenant ids.
func Value[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T {
	return &v
}
