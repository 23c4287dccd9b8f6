package kvcache

import (
	"hash/fnv"
	"sync"
)

// A locator that hashes the key with FNV-1a and reduces modulo the pool
// size.  Cheap and perfectly balanced, at the cost of remapping nearly
// every key when the pool is resized; prefer RingLocator when resizes are
// expected.
type ModuloLocator struct {
	mutex sync.RWMutex
	nodes []*ServerNode
}

func NewModuloLocator() NodeLocator {
	return &ModuloLocator{}
}

// See NodeLocator for documentation.
func (l *ModuloLocator) Bind(pool *ServerPool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.nodes = pool.Nodes()
}

// See NodeLocator for documentation.
func (l *ModuloLocator) Route(key string) (*ServerNode, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if l.nodes == nil {
		return nil, newUnboundLocatorError()
	}
	if len(l.nodes) == 0 {
		return nil, newEmptyPoolError()
	}

	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(key))
	return l.nodes[hasher.Sum32()%uint32(len(l.nodes))], nil
}
