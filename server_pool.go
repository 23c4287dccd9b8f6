package kvcache

import (
	"sync"
)

// The identity of one backend: its address and its bound connection.
type ServerNode struct {
	addr string
	conn *Conn
}

func (n *ServerNode) Addr() string {
	return n.addr
}

func (n *ServerNode) Conn() *Conn {
	return n.conn
}

// ServerPool holds the ordered set of connections a client routes across.
// The node list is effectively immutable once built: the sequence and its
// indices are what a locator's routing decision is a function of, so
// resizing means constructing a new pool and re-binding the locator.
type ServerPool struct {
	nodes   []*ServerNode
	options ConnOptions

	shutdownOnce sync.Once
}

// This creates a ServerPool with one connection per address, in the given
// order.  Connections are established lazily on first use unless
// options.Prewarm is set.
func NewServerPool(addrs []string, options ConnOptions) *ServerPool {
	options = options.withDefaults()

	nodes := make([]*ServerNode, 0, len(addrs))
	for _, addr := range addrs {
		nodes = append(nodes, &ServerNode{
			addr: addr,
			conn: NewConn(addr, options),
		})
	}

	pool := &ServerPool{
		nodes:   nodes,
		options: options,
	}

	if options.Prewarm {
		pool.prewarm()
	}

	return pool
}

// This creates a ServerPool from pre-built connections, for testability.
func NewServerPoolWithConns(conns []*Conn) *ServerPool {
	nodes := make([]*ServerNode, 0, len(conns))
	for _, conn := range conns {
		nodes = append(nodes, &ServerNode{
			addr: conn.Addr(),
			conn: conn,
		})
	}

	return &ServerPool{
		nodes:   nodes,
		options: ConnOptions{}.withDefaults(),
	}
}

// This returns the ordered node list for locator binding.  Callers must
// not mutate the returned slice.
func (p *ServerPool) Nodes() []*ServerNode {
	return p.nodes
}

func (p *ServerPool) Size() int {
	return len(p.nodes)
}

// Dials every connection concurrently.  Failures are logged and left for
// the per-request path to surface.
func (p *ServerPool) prewarm() {
	var wg sync.WaitGroup
	for _, node := range p.nodes {
		wg.Add(1)
		go func(conn *Conn) {
			defer wg.Done()

			conn.mutex.Lock()
			defer conn.mutex.Unlock()

			if err := conn.ensureConnected(); err != nil {
				p.options.LogError(err)
			} else {
				p.options.LogInfo("connected to ", conn.Addr())
			}
		}(node.conn)
	}
	wg.Wait()
}

// Shutdown closes every connection, releasing blocked callers promptly.
// Idempotent.
func (p *ServerPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		for _, node := range p.nodes {
			node.conn.Close()
		}
	})
}
