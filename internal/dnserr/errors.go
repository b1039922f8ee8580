package dnserr

/*
* Error taxonomy shared by the listener, reconciler and applier. Every
* failure is local to one request; the Kind tells the caller which stage
* rejected it.
 */
import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindConnect          Kind = "ConnectError"
	KindTimeout          Kind = "Timeout"
	KindMessageTooLarge  Kind = "MessageTooLarge"
	KindMalformedPayload Kind = "MalformedPayload"
	KindInvalidSnapshot  Kind = "InvalidSnapshot"
	KindApplyIo          Kind = "ApplyError::Io"
	KindCanceled         Kind = "Canceled"
	KindUnknown          Kind = "Unknown"
)

type Error struct {
	Kind  Kind
	Index int    // snapshot index, InvalidSnapshot only
	Field string // offending field, InvalidSnapshot only
	Err   error
}

func (e *Error) Error() string {

	if e == nil {
		return ""
	}

	msg := string(e.Kind)
	if e.Kind == KindInvalidSnapshot {
		msg = fmt.Sprintf("%s(%d, %s)", e.Kind, e.Index, e.Field)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Kind so errors.Is(err, &Error{Kind: KindTimeout}) works.
func (e *Error) Is(target error) bool {

	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func InvalidSnapshot(index int, field string, err error) error {
	return &Error{Kind: KindInvalidSnapshot, Index: index, Field: field, Err: err}
}

/*
* Extract the kind from an error chain.  Errors not produced by this
* package are reported as KindUnknown.
 */
func KindOf(err error) Kind {

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

var kinds = []Kind{
	KindConnect, KindTimeout, KindMessageTooLarge, KindMalformedPayload,
	KindInvalidSnapshot, KindApplyIo, KindCanceled,
}

/*
* Split an error string as produced by Error() into its kind and the rest,
* e.g. "ApplyError::Io: disk full" -> KindApplyIo, "disk full".
 */
func ParseKind(msg string) (Kind, string) {

	for _, k := range kinds {
		if rest, ok := strings.CutPrefix(msg, string(k)); ok {
			rest = strings.TrimPrefix(rest, ":")
			return k, strings.TrimSpace(rest)
		}
	}
	return KindUnknown, msg
}
