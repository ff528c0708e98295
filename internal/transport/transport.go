// Package transport provides URI-based listener creation for the
// calculator's gRPC facet, behind `calculate serve --listen <URI>`.
//
// Supported transports:
//   - tcp://<host>:<port>       TCP socket (default: tcp://:9090)
//   - unix://<path>             Unix domain socket
//   - stdio://                  stdin/stdout pipe (single connection)
//   - ws://<host>:<port>[/path] WebSocket upgrade, one gRPC connection per socket
//   - mem://                    in-process buffer, for composition and tests
package transport

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/test/bufconn"
)

// DefaultURI is the transport used when --listen is omitted.
const DefaultURI = "tcp://:9090"

const memBufferSize = 1024 * 1024

// Listen parses a transport URI and returns a net.Listener.
func Listen(uri string) (net.Listener, error) {
	switch {
	case strings.HasPrefix(uri, "tcp://"):
		addr := strings.TrimPrefix(uri, "tcp://")
		return net.Listen("tcp", addr)

	case strings.HasPrefix(uri, "unix://"):
		path := strings.TrimPrefix(uri, "unix://")
		// Clean up stale socket files
		os.Remove(path) //nolint:errcheck
		return net.Listen("unix", path)

	case uri == "stdio://" || uri == "stdio":
		return newStdioListener(), nil

	case strings.HasPrefix(uri, "ws://"):
		return listenWebSocket(strings.TrimPrefix(uri, "ws://"))

	case uri == "mem://" || uri == "mem":
		return NewMemListener(), nil

	default:
		return nil, fmt.Errorf("unsupported transport URI: %q (expected tcp://, unix://, stdio://, ws:// or mem://)", uri)
	}
}

// Scheme returns the transport scheme name for logging.
func Scheme(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		return uri[:i]
	}
	return uri
}

// --- mem transport ---

// MemListener is an in-process listener. Clients connect with Dial or
// DialContext instead of going through the network stack.
type MemListener struct {
	*bufconn.Listener
}

// NewMemListener returns a ready in-process listener.
func NewMemListener() *MemListener {
	return &MemListener{Listener: bufconn.Listen(memBufferSize)}
}

func (l *MemListener) Addr() net.Addr { return memAddr{} }

type memAddr struct{}

func (memAddr) Network() string { return "mem" }
func (memAddr) String() string  { return "mem://" }

// --- stdio transport ---
// Wraps stdin/stdout as a single-connection net.Listener.

type stdioListener struct {
	once   sync.Once
	connCh chan net.Conn
	done   chan struct{}
}

func newStdioListener() *stdioListener {
	l := &stdioListener{
		connCh: make(chan net.Conn, 1),
		done:   make(chan struct{}),
	}
	// Deliver exactly one connection wrapping stdin/stdout
	l.connCh <- &stdioConn{
		Reader:  os.Stdin,
		Writer:  os.Stdout,
		closeFn: l.shutdown,
	}
	return l
}

func (l *stdioListener) shutdown() {
	l.once.Do(func() { close(l.done) })
}

func (l *stdioListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.connCh:
		return conn, nil
	case <-l.done:
		return nil, io.EOF
	}
}

func (l *stdioListener) Close() error {
	l.shutdown()
	return nil
}

func (l *stdioListener) Addr() net.Addr {
	return stdioAddr{}
}

// stdioConn wraps stdin/stdout as a net.Conn.
type stdioConn struct {
	io.Reader
	io.Writer
	closeFn func()
}

func (c *stdioConn) Read(p []byte) (int, error)  { return c.Reader.Read(p) }
func (c *stdioConn) Write(p []byte) (int, error) { return c.Writer.Write(p) }

// Closing the only connection also stops the listener.
func (c *stdioConn) Close() error {
	c.closeFn()
	return nil
}

func (c *stdioConn) LocalAddr() net.Addr                { return stdioAddr{} }
func (c *stdioConn) RemoteAddr() net.Addr               { return stdioAddr{} }
func (c *stdioConn) SetDeadline(_ time.Time) error      { return nil }
func (c *stdioConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *stdioConn) SetWriteDeadline(_ time.Time) error { return nil }

type stdioAddr struct{}

func (stdioAddr) Network() string { return "stdio" }
func (stdioAddr) String() string  { return "stdio://" }
