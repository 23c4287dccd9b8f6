package kvcache

import (
	"time"
)

// The effective (namespaced) wire key may not exceed this many bytes.
const maxKeyLength = 250

const (
	defaultConnectTimeout = 1 * time.Second
	defaultRequestTimeout = 3 * time.Second
)

//
// Connection states
//

type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateFailed
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
