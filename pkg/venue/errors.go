package venue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrorKind is the tagged classification for every failure leaving the
// venue client. Validation kinds are recoverable by user input; the rest
// map to distinct recovery flows.
type ErrorKind string

const (
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindMinimumLimit        ErrorKind = "minimum_limit"
	KindMaximumLimit        ErrorKind = "maximum_limit"
	KindAgentExpired        ErrorKind = "agent_expired"
	KindUserCancelled       ErrorKind = "user_cancelled"
	KindQuoteFetchFailed    ErrorKind = "quote_fetch_failed"
	KindUnexpected          ErrorKind = "unexpected"
)

// Error carries a kind alongside the underlying cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a kinded error from a format string.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from err, defaulting to KindUnexpected.
func KindOf(err error) ErrorKind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindUnexpected
}

// Classify maps a raw venue failure to a kinded error. The venue rejects
// actions signed by a deregistered or expired agent with a message that
// embeds the agent address, so a match on the current agent address means
// the session must re-authorize rather than surface a generic error.
func Classify(err error, agent common.Address) error {
	if err == nil {
		return nil
	}

	var ve *Error
	if errors.As(err, &ve) {
		return err
	}

	if agent != (common.Address{}) {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, strings.ToLower(agent.Hex())) ||
			strings.Contains(msg, strings.ToLower(strings.TrimPrefix(agent.Hex(), "0x"))) {
			return NewError(KindAgentExpired, err)
		}
	}

	return NewError(KindUnexpected, err)
}
