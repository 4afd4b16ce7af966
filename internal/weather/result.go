package weather

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind is the closed taxonomy of failures the sync core reports.
// All kinds are recoverable; none terminates the state container.
type ErrorKind string

const (
	ErrNetworkUnavailable ErrorKind = "network_unavailable"
	ErrRateLimited        ErrorKind = "rate_limited"
	ErrParse              ErrorKind = "parse_error"
	ErrUnauthorized       ErrorKind = "unauthorized"
	ErrUnknown            ErrorKind = "unknown"
)

// SyncError is an error tagged with its ErrorKind.
type SyncError struct {
	Kind ErrorKind
	Err  error
}

func (e *SyncError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSyncError wraps err with the given kind.
func NewSyncError(kind ErrorKind, err error) *SyncError {
	return &SyncError{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err. Untagged context deadline and
// transport errors count as network unavailability; anything else is unknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrUnknown
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrNetworkUnavailable
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ErrNetworkUnavailable
	}
	return ErrUnknown
}

// Origin tells where a successful result came from.
type Origin string

const (
	OriginCache   Origin = "cache"
	OriginNetwork Origin = "network"
)

// SyncResult is the engine's public output: either a forecast with its
// origin or a classified failure. The interface is sealed so switches
// over it stay exhaustive.
type SyncResult interface {
	syncResult()
}

// SyncSuccess carries a forecast set and where it came from.
type SyncSuccess struct {
	Set    ForecastSet
	Origin Origin
}

// SyncFailure carries the failure kind and, when the cache holds one,
// the last known good forecast for the key.
type SyncFailure struct {
	Kind          ErrorKind
	LastKnownGood *ForecastSet
}

func (SyncSuccess) syncResult() {}
func (SyncFailure) syncResult() {}
