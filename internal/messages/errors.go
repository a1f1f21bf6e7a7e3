package messages

import (
	"errors"

	"github.com/2beens/contactform/internal/supabase"
)

const (
	OpInsert = "insert"
	OpList   = "list"
	OpProbe  = "probe"
)

// Kind classifies store failures; the HTTP layer maps KindConfig to 400 and
// every other kind to 500.
type Kind int

const (
	KindOperational Kind = iota
	KindConfig
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNotFound:
		return "not_found"
	default:
		return "operational"
	}
}

var ErrNoRowsReturned = errors.New("no rows returned")

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, KindOperational for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, supabase.ErrConfig) {
		return KindConfig
	}
	return KindOperational
}

func newSupabaseError(op string, err error) *Error {
	kind := KindOperational
	if errors.Is(err, supabase.ErrConfig) {
		kind = KindConfig
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
