package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// DefaultWebSocketPath is served when a ws:// URI carries no path.
const DefaultWebSocketPath = "/grpc"

// wsListener accepts WebSocket upgrades and hands each socket to the
// gRPC server as a net.Conn.
type wsListener struct {
	ln   net.Listener
	srv  *http.Server
	path string

	ctx    context.Context
	cancel context.CancelFunc
	conns  chan net.Conn
	once   sync.Once
}

func listenWebSocket(hostPath string) (*wsListener, error) {
	host, path := hostPath, DefaultWebSocketPath
	if i := strings.Index(hostPath, "/"); i >= 0 {
		host, path = hostPath[:i], hostPath[i:]
	}

	ln, err := net.Listen("tcp", host)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &wsListener{
		ln:     ln,
		path:   path,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(chan net.Conn),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Close() //nolint:errcheck
		}
	}()

	return l, nil
}

func (l *wsListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{"grpc"},
	})
	if err != nil {
		return
	}

	// The request context ends with this handler; the socket must outlive it.
	conn := websocket.NetConn(l.ctx, c, websocket.MessageBinary)
	select {
	case l.conns <- conn:
	case <-l.ctx.Done():
		c.Close(websocket.StatusGoingAway, "listener closed") //nolint:errcheck
	}
}

func (l *wsListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.ctx.Done():
		return nil, net.ErrClosed
	}
}

func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		err = l.srv.Close()
	})
	return err
}

// Addr reports the dialable ws:// URI, path included.
func (l *wsListener) Addr() net.Addr {
	return wsAddr{uri: "ws://" + l.ln.Addr().String() + l.path}
}

type wsAddr struct{ uri string }

func (wsAddr) Network() string  { return "ws" }
func (a wsAddr) String() string { return a.uri }
