package http

import "reflect"

// contextStore is the request-scoped, type-keyed value store used to
// pass data between middleware and handlers. Insertion overwrites any
// previous value of the same type; lookup is by type and returns a
// copy, so callers cannot mutate the stored value through the result.
// Absence is a normal outcome, not an error.
type contextStore struct {
	values map[reflect.Type]any
}

func (r *Request) store() *contextStore {
	if r.context == nil {
		r.context = &contextStore{values: make(map[reflect.Type]any)}
	}
	return r.context
}

// SetValue stores v in the request context keyed by its concrete type,
// replacing any existing value of that type.
func SetValue[T any](r *Request, v T) {
	r.store().values[reflect.TypeOf((*T)(nil)).Elem()] = v
}

// Value retrieves the value of type T from the request context. The
// second return is false when no value of that type was stored.
func Value[T any](r *Request) (T, bool) {
	var zero T
	if r.context == nil {
		return zero, false
	}
	v, ok := r.context.values[reflect.TypeOf((*T)(nil)).Elem()]
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// ContextLen reports how many typed values the request carries.
func (r *Request) ContextLen() int {
	if r.context == nil {
		return 0
	}
	return len(r.context.values)
}
