package entity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Error kinds. Every error leaving the router matches exactly one of these via errors.Is.
var (
	ErrUnsupportedChain    = errors.New("unsupported chain")
	ErrTransientProvider   = errors.New("transient provider error")
	ErrPermanentProvider   = errors.New("permanent provider error")
	ErrNoProviderAvailable = errors.New("no provider available")
	ErrInvalidRequest      = errors.New("invalid request")
)

// ProviderError is a classified failure from a single upstream provider call.
type ProviderError struct {
	Kind       error
	Provider   string
	Capability Capability
	Chain      Chain
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Chain != "" {
		fmt.Fprintf(&b, " (chain %s)", e.Chain)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " [http %d]", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransientProvider) and friends match on the kind.
func (e *ProviderError) Is(target error) bool { return target == e.Kind }

// NewUnsupportedChainError reports that a provider does not cover (capability, chain).
func NewUnsupportedChainError(provider string, capability Capability, chain Chain) *ProviderError {
	return &ProviderError{Kind: ErrUnsupportedChain, Provider: provider, Capability: capability, Chain: chain}
}

// NewTransientError wraps a retryable failure.
func NewTransientError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{Kind: ErrTransientProvider, Provider: provider, StatusCode: statusCode, Err: err}
}

// NewPermanentError wraps a failure that retrying will not fix.
func NewPermanentError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{Kind: ErrPermanentProvider, Provider: provider, StatusCode: statusCode, Err: err}
}

// ClassifyStatus maps an HTTP status code to an error kind.
// 429 and 5xx are transient, every other non-2xx status is permanent.
func ClassifyStatus(statusCode int) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrTransientProvider
	case statusCode >= 500:
		return ErrTransientProvider
	default:
		return ErrPermanentProvider
	}
}

// NoProviderAvailableError is returned when every candidate for a request failed or was skipped.
type NoProviderAvailableError struct {
	Capability Capability
	Chain      Chain
	Attempted  []string
	LastErr    error
}

func (e *NoProviderAvailableError) Error() string {
	msg := fmt.Sprintf("no provider available for %s on %s (attempted: [%s])",
		e.Capability, e.Chain, strings.Join(e.Attempted, ", "))
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *NoProviderAvailableError) Unwrap() error { return e.LastErr }

func (e *NoProviderAvailableError) Is(target error) bool { return target == ErrNoProviderAvailable }

// IsRetryable reports whether err is worth another attempt against the same provider:
// transient provider errors, network timeouts and per-attempt deadlines.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanentProvider) || errors.Is(err, ErrUnsupportedChain) || errors.Is(err, ErrInvalidRequest) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransientProvider) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
