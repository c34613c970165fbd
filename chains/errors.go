package chains

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind classifies a chain access failure so callers can decide between
// retrying, skipping the chain for a tick, or dropping a record.
type ErrorKind int

const (
	// Transient failures are worth retrying: timeouts, rate limits,
	// connection resets.
	Transient ErrorKind = iota
	// Permanent failures are not retryable within a tick: reverts, bad
	// endpoints, unsupported methods.
	Permanent
	// Decode failures mean the contract answered with bytes we could not
	// unpack. The offending record is dropped.
	Decode
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Decode:
		return "decode"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// RPCError is the tagged error produced by every chain access operation.
// It always carries the chain id of the failing call.
type RPCError struct {
	ChainID uint64
	Kind    ErrorKind
	Op      string
	Err     error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("chain %d: %s: %s: %v", e.ChainID, e.Op, e.Kind, e.Err)
}

// Unwrap supports errors.Is and errors.As against the underlying cause.
func (e *RPCError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable chain access failure.
func IsTransient(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind == Transient
	}
	return false
}

// IsDecode reports whether err is a contract decode failure.
func IsDecode(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind == Decode
	}
	return false
}

// classify buckets raw transport errors into the taxonomy. JSON-RPC servers
// are wildly inconsistent, so this is substring matching on the usual
// suspects rather than anything principled.
func classify(err error) ErrorKind {
	if err == nil {
		return Permanent
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transient
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"timeout",
		"timed out",
		"connection refused",
		"connection reset",
		"too many requests",
		"rate limit",
		"eof",
		"temporarily unavailable",
		"503",
		"502",
	} {
		if strings.Contains(msg, s) {
			return Transient
		}
	}
	return Permanent
}

func wrapRPC(chainID uint64, op string, err error) error {
	return &RPCError{ChainID: chainID, Kind: classify(err), Op: op, Err: err}
}

func wrapDecode(chainID uint64, op string, err error) error {
	return &RPCError{ChainID: chainID, Kind: Decode, Op: op, Err: err}
}
