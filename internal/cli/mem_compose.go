package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/organic-programming/calculate/internal/grpcclient"
	"github.com/organic-programming/calculate/internal/server"
	"github.com/organic-programming/calculate/internal/transport"
)

// memComposer runs the calculator service in-process behind a mem://
// listener. The server starts lazily on first use and lives for the
// remainder of the process.
type memComposer struct {
	once     sync.Once
	listener *transport.MemListener
}

var calculatorMem = &memComposer{}

func (c *memComposer) dial(logger *slog.Logger) (*grpc.ClientConn, error) {
	c.once.Do(func() {
		c.listener = transport.NewMemListener()
		s := server.NewGRPCServer(logger, true)
		go func() {
			_ = s.Serve(c.listener)
		}()
	})

	conn, err := grpc.NewClient(
		"passthrough:///mem",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return c.listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial mem composition: %w", err)
	}
	return conn, nil
}

// callViaMem calls a method on the in-process service. Call logs are only
// kept in verbose mode; otherwise they would interleave with the result.
func (a *app) callViaMem(ctx context.Context, method, inputJSON string) (*grpcclient.CallResult, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if a.verbose {
		logger = a.cfg.Logger(a.stderr)
	}

	conn, err := calculatorMem.dial(logger)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return grpcclient.Invoke(ctx, conn, method, inputJSON)
}

func (a *app) listMethodsViaMem(ctx context.Context) ([]string, error) {
	conn, err := calculatorMem.dial(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return grpcclient.Methods(ctx, conn)
}
