package firestore

import (
	"context"
	"errors"

	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type category uint8

const (
	categoryOther category = iota
	categoryNotFound
	categoryConflict
	categoryUnavailable
)

// categories maps gRPC codes onto the repository error contract. Aborted is a conflict
// because it is what a losing transaction sees after its retries run out.
var categories = map[codes.Code]category{
	codes.NotFound:           categoryNotFound,
	codes.AlreadyExists:      categoryConflict,
	codes.FailedPrecondition: categoryConflict,
	codes.Aborted:            categoryConflict,
	codes.Unavailable:        categoryUnavailable,
	codes.ResourceExhausted:  categoryUnavailable,
	codes.Internal:           categoryUnavailable,
	codes.DeadlineExceeded:   categoryUnavailable,
}

// Error is a Firestore failure tagged with the operation that produced it. It satisfies
// repositories.RepositoryError.
type Error struct {
	Op   string
	Code codes.Code
	err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.err.Error()
	}
	return e.Op + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool    { return e.is(categoryNotFound) }
func (e *Error) IsConflict() bool    { return e.is(categoryConflict) }
func (e *Error) IsUnavailable() bool { return e.is(categoryUnavailable) }

func (e *Error) is(c category) bool {
	return e != nil && categories[e.Code] == c
}

// WrapError tags err with op. Cancellation, either from ctx or reported by the server, is
// returned as the matching context error so callers can stop without logging a failure.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		if tagged.Op == "" {
			tagged.Op = op
		}
		return tagged
	}
	return &Error{Op: op, Code: code, err: err}
}

func isIteratorDone(err error) bool {
	return errors.Is(err, iterator.Done)
}
