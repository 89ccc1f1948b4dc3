// Package ptr provides small generic pointer helpers used wherever an API
// needs an optional scalar (a "clear this field" PATCH semantic, or a
// protobuf/JSON-style *T optional field).
package ptr

// Of returns a pointer to a copy of v.
func Of[T any](v T) *T {
	return &v
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return Of(s)
}

// Deref returns *p, or the zero value of T if p is nil.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}

	return *p
}
