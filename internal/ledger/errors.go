package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInsufficientEquity marks a withdrawal rejected because the vault's
// margin requirement no longer covers the requested amount. The executor
// retries these at reduced amounts; everything else is terminal for the
// item. Use errors.Is to dispatch.
var ErrInsufficientEquity = errors.New("insufficient vault equity")

// TransportError wraps any other ledger/network failure.
type TransportError struct {
	Op     string
	Status int // HTTP status, 0 when the request never completed
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("ledger %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// insufficientEquityMarkers are the message fragments the ledger uses
// for margin rejections. Classification happens once, here at the
// boundary; callers only ever see the typed error.
var insufficientEquityMarkers = []string{
	"insufficient vault equity",
	"insufficient equity",
	"margin requirement",
}

func classifyTransferError(op string, status int, msg string) error {
	lower := strings.ToLower(msg)
	for _, marker := range insufficientEquityMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: %s", ErrInsufficientEquity, msg)
		}
	}
	return &TransportError{Op: op, Status: status, Err: errors.New(msg)}
}
