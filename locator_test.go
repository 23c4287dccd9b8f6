package kvcache

import (
	"fmt"

	. "gopkg.in/check.v1"

	. "github.com/dropbox/godropbox/gocheck2"
)

type LocatorSuite struct {
}

var _ = Suite(&LocatorSuite{})

// Builds a pool of n never-dialed connections, for routing-only tests.
func routingPool(n int) *ServerPool {
	conns := make([]*Conn, 0, n)
	for i := 0; i < n; i++ {
		conns = append(
			conns,
			NewConn(fmt.Sprintf("server%d:11211", i), quietConnOptions()))
	}
	return NewServerPoolWithConns(conns)
}

func (s *LocatorSuite) TestRouteBeforeBind(c *C) {
	for _, locator := range []NodeLocator{NewModuloLocator(), NewRingLocator()} {
		_, err := locator.Route("key")
		c.Assert(err, NotNil)
		_, isConfig := err.(*ConfigError)
		c.Assert(isConfig, IsTrue)
	}
}

func (s *LocatorSuite) TestEmptyPool(c *C) {
	for _, locator := range []NodeLocator{NewModuloLocator(), NewRingLocator()} {
		locator.Bind(routingPool(0))

		_, err := locator.Route("key")
		c.Assert(err, NotNil)
		_, isConfig := err.(*ConfigError)
		c.Assert(isConfig, IsTrue)
	}
}

func (s *LocatorSuite) TestRouteIsDeterministic(c *C) {
	pool := routingPool(5)

	for _, locator := range []NodeLocator{NewModuloLocator(), NewRingLocator()} {
		locator.Bind(pool)

		for i := 0; i < 100; i++ {
			key := fmt.Sprintf("key-%d", i)

			first, err := locator.Route(key)
			c.Assert(err, IsNil)
			c.Assert(first, NotNil)

			again, err := locator.Route(key)
			c.Assert(err, IsNil)
			c.Assert(again, Equals, first)
		}
	}
}

func (s *LocatorSuite) TestRoutesSpreadAcrossPool(c *C) {
	pool := routingPool(4)

	for _, locator := range []NodeLocator{NewModuloLocator(), NewRingLocator()} {
		locator.Bind(pool)

		hit := make(map[*ServerNode]int)
		for i := 0; i < 1000; i++ {
			node, err := locator.Route(fmt.Sprintf("key-%d", i))
			c.Assert(err, IsNil)
			hit[node]++
		}

		c.Assert(len(hit), Equals, 4)
	}
}

func (s *LocatorSuite) TestExplicitRebind(c *C) {
	locator := NewModuloLocator()
	first := routingPool(3)
	locator.Bind(first)

	node, err := locator.Route("key")
	c.Assert(err, IsNil)
	c.Assert(containsNode(first.Nodes(), node), IsTrue)

	second := routingPool(5)
	locator.Bind(second)

	node, err = locator.Route("key")
	c.Assert(err, IsNil)
	c.Assert(containsNode(second.Nodes(), node), IsTrue)
	c.Assert(containsNode(first.Nodes(), node), IsFalse)
}

func (s *LocatorSuite) TestRingMinimalRemapping(c *C) {
	before := routingPool(10)
	// The smaller generation shares the first nine addresses.
	after := routingPool(9)

	locator := NewRingLocator()

	locator.Bind(before)
	owners := make(map[string]string)
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("key-%d", i)
		node, err := locator.Route(key)
		c.Assert(err, IsNil)
		owners[key] = node.Addr()
	}

	locator.Bind(after)
	moved := 0
	for key, beforeAddr := range owners {
		node, err := locator.Route(key)
		c.Assert(err, IsNil)
		if node.Addr() != beforeAddr {
			moved++
		}
	}

	// Consistent hashing should remap only the evicted node's share, not
	// the near-total reshuffle a modulo strategy produces.  Allow slack
	// for imbalance.
	c.Assert(moved < 300, IsTrue)
}

func containsNode(nodes []*ServerNode, target *ServerNode) bool {
	for _, node := range nodes {
		if node == target {
			return true
		}
	}
	return false
}
