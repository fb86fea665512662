package remote

import (
	"context"
	"errors"
)

// Kind tags the outcome of one remote call.
type Kind uint8

const (
	KindOK Kind = iota
	KindNotFound
	KindInvalid
	KindConflict
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindConflict:
		return "conflict"
	default:
		return "transient"
	}
}

// Result is the tagged outcome of a remote call: exactly one of
// OK(value) | NotFound | Invalid | Conflict | Transient(err).
type Result[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool { return r.Kind == KindOK }

// Classify maps err to a Kind. A nil error is KindOK.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalid):
		return KindInvalid
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindTransient
	}
}

// Call runs fn and tags its outcome. A panic inside fn is not recovered.
func Call[T any](ctx context.Context, fn func(context.Context) (T, error)) Result[T] {
	if err := ctx.Err(); err != nil {
		return Result[T]{Kind: KindTransient, Err: err}
	}
	v, err := fn(ctx)
	k := Classify(err)
	if k != KindOK {
		var zero T
		return Result[T]{Kind: k, Value: zero, Err: err}
	}
	return Result[T]{Kind: KindOK, Value: v}
}
