package kvcache

import (
	"strings"
	"sync"

	"github.com/dropbox/godropbox/errors"
)

// A sharded cache client.  Routing is delegated to the installed
// NodeLocator, value conversion to the installed Codec.  Safe for use from
// multiple concurrent callers: all per-call routing, batching, and result
// assembly state is call-local.
type client struct {
	pool    *ServerPool
	locator NodeLocator
	codec   Codec

	mutex     sync.RWMutex
	namespace string
}

// This creates a Client over the given pool.  The locator is bound to the
// pool here; after a topology change, the owner constructs a new pool and
// a new client rather than mutating this one.
func NewClient(pool *ServerPool, locator NodeLocator, codec Codec) Client {
	locator.Bind(pool)
	return &client{
		pool:    pool,
		locator: locator,
		codec:   codec,
	}
}

// See Client interface for documentation.
func (c *client) SetNamespace(namespace string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.namespace = namespace
}

// See Client interface for documentation.
func (c *client) Namespace() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.namespace
}

func (c *client) decodeEntry(entry Entry) (*Value, error) {
	body, err := c.codec.Decode(entry.Body)
	if err != nil {
		return nil, errors.Wrapf(
			err, "Failed to decode value for key '%s'", entry.Key)
	}
	return &Value{Body: body, Flags: entry.Flags}, nil
}

// See Client interface for documentation.
func (c *client) Get(key string) (*Value, error) {
	wireKey := c.Namespace() + key
	if err := validateKey(wireKey); err != nil {
		return nil, err
	}

	node, err := c.locator.Route(wireKey)
	if err != nil {
		return nil, err
	}

	entries, err := node.Conn().Get([]string{wireKey})
	if err != nil {
		return nil, err
	}

	entry, ok := entries[wireKey]
	if !ok {
		return nil, nil
	}
	return c.decodeEntry(entry)
}

// The outcome of one destination's batched request during fan-out.
type nodeResult struct {
	entries map[string]Entry
	err     error
}

// See Client interface for documentation.
func (c *client) GetMulti(keys []string) (map[string]*Value, error) {
	namespace := c.Namespace()

	// All-or-nothing validation: any one bad key fails the whole call
	// before any network activity.
	wireKeys := make([]string, len(keys))
	for i, key := range keys {
		wireKey := namespace + key
		if err := validateKey(wireKey); err != nil {
			return nil, err
		}
		wireKeys[i] = wireKey
	}

	// Group keys by destination, preserving each group's relative order:
	// exactly one batched request line is sent per distinct connection.
	groups := make(map[*ServerNode][]string)
	for _, wireKey := range wireKeys {
		node, err := c.locator.Route(wireKey)
		if err != nil {
			return nil, err
		}
		groups[node] = append(groups[node], wireKey)
	}

	resultsChannel := make(chan nodeResult, len(groups))
	for node, groupKeys := range groups {
		go func(node *ServerNode, groupKeys []string) {
			entries, err := node.Conn().Get(groupKeys)
			resultsChannel <- nodeResult{
				entries: entries,
				err:     err,
			}
		}(node, groupKeys)
	}

	// Gather.  A failed destination contributes nothing; the call still
	// succeeds with the union of what the live destinations produced.
	results := make(map[string]*Value)
	for i := 0; i < len(groups); i++ {
		res := <-resultsChannel
		if res.err != nil {
			c.pool.options.LogError(res.err)
			continue
		}
		for wireKey, entry := range res.entries {
			value, err := c.decodeEntry(entry)
			if err != nil {
				c.pool.options.LogError(err)
				continue
			}
			results[strings.TrimPrefix(wireKey, namespace)] = value
		}
	}
	return results, nil
}

// See Client interface for documentation.
func (c *client) Set(key string, value interface{}, flags uint32) error {
	wireKey := c.Namespace() + key
	if err := validateKey(wireKey); err != nil {
		return err
	}

	body, err := c.codec.Encode(value)
	if err != nil {
		return errors.Wrapf(err, "Failed to encode value for key '%s'", key)
	}

	node, err := c.locator.Route(wireKey)
	if err != nil {
		return err
	}
	return node.Conn().Set(wireKey, flags, body)
}

// See Client interface for documentation.
func (c *client) Delete(key string) error {
	wireKey := c.Namespace() + key
	if err := validateKey(wireKey); err != nil {
		return err
	}

	node, err := c.locator.Route(wireKey)
	if err != nil {
		return err
	}
	return node.Conn().Delete(wireKey)
}

// See Client interface for documentation.
func (c *client) Shutdown() {
	c.pool.Shutdown()
}
