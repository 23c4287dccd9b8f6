package kvcache

import (
	"sync"

	"github.com/dropline/kvcache/hashring"
)

// A locator backed by a consistent-hash ring over the node addresses.
// Rebinding to a resized pool remaps only a proportional fraction of the
// key space, unlike ModuloLocator.
type RingLocator struct {
	mutex  sync.RWMutex
	ring   *hashring.Ring
	byAddr map[string]*ServerNode
}

func NewRingLocator() NodeLocator {
	return &RingLocator{}
}

// See NodeLocator for documentation.
func (l *RingLocator) Bind(pool *ServerPool) {
	nodes := pool.Nodes()

	addrs := make([]string, 0, len(nodes))
	byAddr := make(map[string]*ServerNode, len(nodes))
	for _, node := range nodes {
		addrs = append(addrs, node.Addr())
		byAddr[node.Addr()] = node
	}

	ring := hashring.New(addrs)

	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.ring = ring
	l.byAddr = byAddr
}

// See NodeLocator for documentation.
func (l *RingLocator) Route(key string) (*ServerNode, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if l.ring == nil {
		return nil, newUnboundLocatorError()
	}

	addr := l.ring.Member(key)
	if addr == "" {
		return nil, newEmptyPoolError()
	}
	return l.byAddr[addr], nil
}
