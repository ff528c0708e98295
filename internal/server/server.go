// Package server implements the calculator's gRPC service, the network
// facet of the same dispatcher the command line uses.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcReflection "google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/organic-programming/calculate/internal/calcpb"
	"github.com/organic-programming/calculate/internal/dispatch"
	"github.com/organic-programming/calculate/internal/transport"
)

// ShutdownTimeout bounds how long in-flight calls may run after a
// termination signal.
const ShutdownTimeout = 5 * time.Second

// CalculatorServer is the service interface registered with gRPC.
type CalculatorServer interface {
	Calculate(context.Context, *dynamicpb.Message) (*dynamicpb.Message, error)
	ListOperations(context.Context, *dynamicpb.Message) (*dynamicpb.Message, error)
}

// Server implements CalculatorServer.
type Server struct{}

// Calculate runs one operation through the dispatcher.
func (s *Server) Calculate(ctx context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error) {
	op, operands := calcpb.ReadCalculateRequest(req)

	res, err := dispatch.Dispatch(op, operands)
	if err != nil {
		return nil, toStatus(err)
	}

	return calcpb.NewCalculateResponse(calcpb.Calculation{
		Operation: res.Operation,
		Operands:  res.Operands,
		Value:     res.Value,
		Display:   res.Display(),
	}), nil
}

// ListOperations reports the dispatch table.
func (s *Server) ListOperations(ctx context.Context, _ *dynamicpb.Message) (*dynamicpb.Message, error) {
	return calcpb.NewListOperationsResponse(calcpb.OperationInfosFrom(dispatch.Operations())), nil
}

// toStatus keeps the dispatcher message verbatim so remote callers print
// exactly what a local invocation would.
func toStatus(err error) error {
	var de *dispatch.Error
	if !errors.As(err, &de) {
		return status.Error(codes.Internal, err.Error())
	}
	code := codes.InvalidArgument
	switch de.Kind {
	case dispatch.KindUnknownOperation:
		code = codes.Unimplemented
	case dispatch.KindArithmetic:
		code = codes.Internal
	}
	return status.Error(code, de.Message)
}

// --- Registration ---

// serviceDesc is derived from the registered schema so the names served
// and the names reflected cannot drift apart.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: string(calcpb.Service.FullName()),
	HandlerType: (*CalculatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: calcpb.MethodCalculate, Handler: calculateHandler},
		{MethodName: calcpb.MethodListOperations, Handler: listOperationsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: calcpb.File.Path(),
}

// Register installs the calculator service on s.
func Register(s grpc.ServiceRegistrar, srv CalculatorServer) {
	s.RegisterService(&serviceDesc, srv)
}

func calculateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := dynamicpb.NewMessage(calcpb.CalculateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalculatorServer).Calculate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: calcpb.FullMethodCalculate}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CalculatorServer).Calculate(ctx, req.(*dynamicpb.Message))
	}
	return interceptor(ctx, in, info, handler)
}

func listOperationsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := dynamicpb.NewMessage(calcpb.ListOperationsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalculatorServer).ListOperations(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: calcpb.FullMethodListOperations}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CalculatorServer).ListOperations(ctx, req.(*dynamicpb.Message))
	}
	return interceptor(ctx, in, info, handler)
}

// --- Serving ---

// NewGRPCServer returns a gRPC server with the calculator service, call
// logging and, optionally, server reflection.
func NewGRPCServer(logger *slog.Logger, reflect bool) *grpc.Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(logger)))
	Register(s, &Server{})
	if reflect {
		grpcReflection.Register(s)
	}
	return s
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.LogAttrs(ctx, slog.LevelInfo, "call",
			slog.String("request_id", uuid.NewString()),
			slog.String("method", info.FullMethod),
			slog.String("code", status.Code(err).String()),
			slog.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// ListenAndServe starts the gRPC server on the given transport URI and
// blocks until the listener fails or a termination signal has drained
// in-flight calls.
// Supported URIs: tcp://<host>:<port>, unix://<path>, stdio://, ws://<host>:<port>[/path]
func ListenAndServe(listenURI string, reflect bool, logger *slog.Logger) error {
	lis, err := transport.Listen(listenURI)
	if err != nil {
		return fmt.Errorf("listen %s: %w", listenURI, err)
	}

	s := NewGRPCServer(logger, reflect)

	mode := "reflection ON"
	if !reflect {
		mode = "reflection OFF"
	}
	logger.Info("calculator gRPC server listening",
		"uri", listenURI,
		"addr", lis.Addr().String(),
		"transport", transport.Scheme(listenURI),
		"mode", mode,
	)

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(lis) }()

	wait := gfshutdown.GracefulShutdown(context.Background(), ShutdownTimeout, map[string]gfshutdown.Operation{
		"grpc": func(ctx context.Context) error {
			logger.Info("calculator gRPC server shutting down")
			s.GracefulStop()
			return nil
		},
	})

	select {
	case err := <-serveErr:
		// A single-connection transport ends with EOF once its peer hangs up.
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, io.EOF) {
			return fmt.Errorf("serve %s: %w", listenURI, err)
		}
		return nil
	case code := <-wait:
		if code != 0 {
			return fmt.Errorf("shutdown exited with code %d", code)
		}
		return nil
	}
}
