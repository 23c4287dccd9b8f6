package kvcache

import (
	"bufio"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dropbox/godropbox/errors"
)

// Options controlling connection establishment and per-request deadlines.
type ConnOptions struct {
	// Dial specifies the dial function for creating network connections.
	// If Dial is nil, net.DialTimeout is used with ConnectTimeout.
	Dial func(network string, address string) (net.Conn, error)

	// The maximum amount of time to wait for a connection to establish.
	// Non-positive values fall back to the 1 second default.
	ConnectTimeout time.Duration

	// The maximum amount of time to wait for a single request round trip.
	// Applied as a socket deadline so that an unresponsive server cannot
	// hang the caller indefinitely.  Non-positive values fall back to the
	// 3 second default.
	RequestTimeout time.Duration

	// When true, the server pool dials every connection at construction
	// instead of on first use.
	Prewarm bool

	// Logging hooks.  When nil, the standard log package is used.
	LogError func(err error)
	LogInfo  func(v ...interface{})
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	if o.Dial == nil {
		timeout := o.ConnectTimeout
		o.Dial = func(network string, address string) (net.Conn, error) {
			return net.DialTimeout(network, address, timeout)
		}
	}
	if o.LogError == nil {
		o.LogError = func(err error) { log.Print(err) }
	}
	if o.LogInfo == nil {
		o.LogInfo = log.Print
	}
	return o
}

// Conn owns one channel to one cache server and speaks the ascii text
// protocol over it.  All operations are serialized: one logical request is
// in flight at a time (use multiple connections if parallelism is needed).
//
// A Conn is lazily promoted from disconnected to connected when first asked
// to carry a request.  Any I/O or framing error trips the Conn to the
// failed state, in which every further request is rejected with the error
// that tripped it; there is no silent retry within the Conn.
type Conn struct {
	addr    string
	options ConnOptions

	// Serializes requests.
	mutex sync.Mutex

	// Guards the fields below, separately from mutex so that Close can
	// sever an in-flight request instead of waiting behind it.
	stateMutex sync.Mutex
	state      ConnState
	failure    error
	channel    io.ReadWriteCloser
	writer     *bufio.Writer
	reader     *bufio.Reader
}

// This creates a Conn to the given "host:port" address.  No network
// activity happens until the first request.
func NewConn(addr string, options ConnOptions) *Conn {
	return &Conn{
		addr:    addr,
		options: options.withDefaults(),
		state:   StateDisconnected,
	}
}

// This wraps a pre-established channel, for testability.  The Conn starts
// out connected and never dials.
func NewConnOnChannel(addr string, channel io.ReadWriteCloser) *Conn {
	return &Conn{
		addr:    addr,
		options: ConnOptions{}.withDefaults(),
		state:   StateConnected,
		channel: channel,
		writer:  bufio.NewWriter(channel),
		reader:  bufio.NewReader(channel),
	}
}

// This returns the "host:port" address the Conn was created with.
func (c *Conn) Addr() string {
	return c.addr
}

// This returns the Conn's current lifecycle state.
func (c *Conn) State() ConnState {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	return c.state
}

// Close transitions the Conn to the closed state and releases the channel,
// unblocking any in-flight request.  Close is idempotent.
func (c *Conn) Close() {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
}

func (c *Conn) closedError() error {
	return &ConnectionFailedError{
		Addr:  c.addr,
		inner: errors.New("connection is closed"),
	}
}

// Trips the Conn into the failed state and returns the error every
// subsequent request will observe.  A close racing with the failure wins.
func (c *Conn) fail(err error) error {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	if c.state == StateClosed {
		return c.closedError()
	}

	c.state = StateFailed
	c.failure = err
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	return err
}

func (c *Conn) failIO(err error) error {
	return c.fail(&ConnectionFailedError{Addr: c.addr, inner: err})
}

func (c *Conn) failProtocol(line string) error {
	return c.fail(&ProtocolError{Addr: c.addr, Line: line})
}

// Establishes the channel if this is the Conn's first request.  Must be
// called with the request mutex held.
func (c *Conn) ensureConnected() error {
	c.stateMutex.Lock()
	switch c.state {
	case StateConnected:
		c.stateMutex.Unlock()
		return nil
	case StateClosed:
		c.stateMutex.Unlock()
		return c.closedError()
	case StateFailed:
		failure := c.failure
		c.stateMutex.Unlock()
		return failure
	}
	c.state = StateConnecting
	c.stateMutex.Unlock()

	channel, err := c.options.Dial("tcp", c.addr)
	if err != nil {
		return c.failIO(err)
	}

	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	if c.state == StateClosed {
		_ = channel.Close()
		return c.closedError()
	}

	c.channel = channel
	c.writer = bufio.NewWriter(channel)
	c.reader = bufio.NewReader(channel)
	c.state = StateConnected
	return nil
}

// Arms the request deadline on the underlying socket, when it has one.
func (c *Conn) armDeadline() {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	if socket, ok := c.channel.(net.Conn); ok {
		_ = socket.SetDeadline(time.Now().Add(c.options.RequestTimeout))
	}
}

func (c *Conn) writeStrings(strs ...string) error {
	for _, str := range strs {
		if _, err := c.writer.WriteString(str); err != nil {
			return c.failIO(err)
		}
	}
	return nil
}

func (c *Conn) writeBytes(b []byte) error {
	if _, err := c.writer.Write(b); err != nil {
		return c.failIO(err)
	}
	return nil
}

func (c *Conn) flushWriter() error {
	if err := c.writer.Flush(); err != nil {
		return c.failIO(err)
	}
	return nil
}

func (c *Conn) readLine() (string, error) {
	line, isPrefix, err := c.reader.ReadLine()
	if err != nil {
		return "", c.failIO(err)
	}
	if isPrefix {
		return "", c.failProtocol("response line truncated")
	}
	return string(line), nil
}

func (c *Conn) read(numBytes int) ([]byte, error) {
	result := make([]byte, numBytes)
	if _, err := io.ReadFull(c.reader, result); err != nil {
		return nil, c.failIO(err)
	}
	return result, nil
}

// A response must be fully consumed; leftover bytes mean the framing got
// out of sync with the server.
func (c *Conn) checkDrained() error {
	if c.reader != nil && c.reader.Buffered() != 0 {
		return c.failProtocol("response not fully drained")
	}
	return nil
}

// Get issues one batched request line for the given keys and parses the
// returned entries.  The request line is the literal text "get" followed
// by the keys, space-separated, in their given order.  Entries missing
// from the response are misses and are simply absent from the result.
func (c *Conn) Get(keys []string) (map[string]Entry, error) {
	entries := make(map[string]Entry, len(keys))
	if len(keys) == 0 {
		return entries, nil
	}
	requested := make(map[string]bool, len(keys))
	for _, key := range keys {
		if err := validateKey(key); err != nil {
			return nil, err
		}
		requested[key] = true
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.ensureConnected(); err != nil {
		return nil, err
	}
	c.armDeadline()

	if err := c.writeStrings("get"); err != nil {
		return nil, err
	}
	for _, key := range keys {
		if err := c.writeStrings(" ", key); err != nil {
			return nil, err
		}
	}
	if err := c.writeStrings("\r\n"); err != nil {
		return nil, err
	}
	if err := c.flushWriter(); err != nil {
		return nil, err
	}

	// Any error while reading entries terminates mid stream; the channel
	// is no longer usable afterwards.
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}

		if line == "END" {
			break
		}

		// line is of the form: VALUE <key> <flags> <num bytes>
		fields := strings.Split(line, " ")
		if len(fields) != 4 || fields[0] != "VALUE" {
			return nil, c.failProtocol(line)
		}

		key := fields[1]
		if !requested[key] {
			// An entry for a key this request never asked for means the
			// framing got out of sync with the server.
			return nil, c.failProtocol(line)
		}

		flags, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, c.failProtocol(line)
		}

		size, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			return nil, c.failProtocol(line)
		}

		body, err := c.read(int(size) + 2)
		if err != nil {
			return nil, err
		}
		if body[size] != '\r' || body[size+1] != '\n' {
			return nil, c.failProtocol("payload missing CRLF terminator")
		}

		entries[key] = Entry{
			Key:   key,
			Flags: uint32(flags),
			Body:  body[:size],
		}
	}

	if err := c.checkDrained(); err != nil {
		return nil, err
	}

	return entries, nil
}

// Set stores one entry.
func (c *Conn) Set(key string, flags uint32, body []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.ensureConnected(); err != nil {
		return err
	}
	c.armDeadline()

	err := c.writeStrings(
		"set ",
		key, " ",
		strconv.FormatUint(uint64(flags), 10),
		" 0 ",
		strconv.Itoa(len(body)),
		"\r\n")
	if err != nil {
		return err
	}
	if err := c.writeBytes(body); err != nil {
		return err
	}
	if err := c.writeStrings("\r\n"); err != nil {
		return err
	}
	if err := c.flushWriter(); err != nil {
		return err
	}

	line, err := c.readLine()
	if err != nil {
		return err
	}
	if err := c.checkDrained(); err != nil {
		return err
	}

	switch line {
	case "STORED":
		return nil
	case "NOT_STORED", "EXISTS", "NOT_FOUND":
		// A valid rejection, not a framing violation.
		return errors.Newf("Set of '%s' rejected: %s", key, line)
	default:
		return c.failProtocol(line)
	}
}

// Delete removes one entry.  Deleting an absent key is not an error.
func (c *Conn) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.ensureConnected(); err != nil {
		return err
	}
	c.armDeadline()

	if err := c.writeStrings("delete ", key, "\r\n"); err != nil {
		return err
	}
	if err := c.flushWriter(); err != nil {
		return err
	}

	line, err := c.readLine()
	if err != nil {
		return err
	}
	if err := c.checkDrained(); err != nil {
		return err
	}

	switch line {
	case "DELETED", "NOT_FOUND":
		return nil
	default:
		return c.failProtocol(line)
	}
}
