// A client library for a distributed key-value cache.  Keys are sharded
// across a pool of independent cache server connections using a pluggable
// routing strategy; multi-key lookups scatter one batched request per
// distinct destination concurrently and gather whatever the live
// destinations produced, tolerating the failure of any subset of servers.
//
// Implementation note: this client speaks the cache's ascii text protocol.
package kvcache
