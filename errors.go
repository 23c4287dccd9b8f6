package kvcache

import (
	"fmt"

	"github.com/dropbox/godropbox/errors"
)

// The effective (namespaced) key exceeds maxKeyLength bytes.  Raised
// synchronously, before any network activity, for both single- and
// multi-key calls.
type KeyTooLongError struct {
	Key string
}

func (e *KeyTooLongError) Error() string {
	return fmt.Sprintf(
		"Key too long (%d bytes, max %d): '%.50s...'",
		len(e.Key),
		maxKeyLength,
		e.Key)
}

// The key contains bytes the wire protocol cannot carry (spaces or control
// characters).  Raised before any network activity.
type InvalidKeyError struct {
	Key string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("Invalid key: '%.50s'", e.Key)
}

// Refusal, reset, or timeout while talking to a destination.  Multi-key
// calls contain these within the destination's contribution; single-key
// calls propagate them to the caller.
type ConnectionFailedError struct {
	Addr  string
	inner error
}

func (e *ConnectionFailedError) Error() string {
	if e.inner == nil {
		return fmt.Sprintf("Connection to %s failed", e.Addr)
	}
	return fmt.Sprintf(
		"Connection to %s failed: %s",
		e.Addr,
		errors.GetMessage(e.inner))
}

func (e *ConnectionFailedError) Unwrap() error {
	return e.inner
}

// Malformed or unexpected response framing.  Treated identically to
// ConnectionFailedError for multi-key isolation purposes.
type ProtocolError struct {
	Addr string
	Line string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf(
		"Protocol error from %s: unexpected response '%.80s'",
		e.Addr,
		e.Line)
}

// A programming/setup mistake (unbound locator, empty pool).  Always
// propagated, never swallowed.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "Configuration error: " + e.Reason
}

func newUnboundLocatorError() error {
	return &ConfigError{Reason: "locator is not bound to a pool"}
}

func newEmptyPoolError() error {
	return &ConfigError{Reason: "server pool is empty"}
}

// Key validation shared by the client and the wire codec.  Only length
// violations are reported as KeyTooLongError; any other illegal byte is an
// InvalidKeyError.
func validateKey(key string) error {
	if len(key) > maxKeyLength {
		return &KeyTooLongError{Key: key}
	}
	if len(key) == 0 {
		return &InvalidKeyError{Key: key}
	}
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return &InvalidKeyError{Key: key}
		}
	}
	return nil
}
