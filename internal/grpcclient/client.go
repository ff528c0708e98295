// Package grpcclient calls a calculator's gRPC facet without compiled
// stubs. It uses gRPC server reflection to discover services and method
// descriptors, then invokes methods with dynamic messages built from JSON.
package grpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"nhooyr.io/websocket"
)

// CallResult holds the output of a gRPC call.
type CallResult struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Output  string `json:"output"`
}

// Dial connects to a gRPC server at the given address and calls a method.
// Unix sockets are addressed as "unix:<path>" or "unix:///abs/path".
func Dial(ctx context.Context, address, methodName, inputJSON string) (*CallResult, error) {
	conn, err := grpc.NewClient(
		address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	}
	defer conn.Close()

	return Invoke(ctx, conn, methodName, inputJSON)
}

// ListMethods returns all available service methods at the given address.
func ListMethods(ctx context.Context, address string) ([]string, error) {
	conn, err := grpc.NewClient(
		address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	}
	defer conn.Close()

	return Methods(ctx, conn)
}

// Methods lists "<service>/<method>" for every reflected service on conn.
func Methods(ctx context.Context, conn grpc.ClientConnInterface) ([]string, error) {
	services, _, err := reflectServices(ctx, conn)
	if err != nil {
		return nil, err
	}

	var methods []string
	for _, svc := range services {
		ms := svc.Methods()
		for i := 0; i < ms.Len(); i++ {
			methods = append(methods, fmt.Sprintf("%s/%s", svc.FullName(), ms.Get(i).Name()))
		}
	}
	return methods, nil
}

// Invoke resolves methodName through reflection on conn and calls it.
// methodName may be bare ("Calculate") or qualified
// ("calculate.v1.CalculatorService/Calculate").
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, methodName, inputJSON string) (*CallResult, error) {
	services, resolveErrors, err := reflectServices(ctx, conn)
	if err != nil {
		return nil, err
	}

	target := canonicalMethodName(methodName)
	var available []string
	for _, svc := range services {
		methods := svc.Methods()
		for i := 0; i < methods.Len(); i++ {
			method := methods.Get(i)
			available = append(available, fmt.Sprintf("%s/%s", svc.FullName(), method.Name()))
			if string(method.Name()) == target {
				return callMethod(ctx, conn, svc, method, inputJSON)
			}
		}
	}

	if len(resolveErrors) > 0 {
		return nil, fmt.Errorf(
			"method %q not found. available: %v. descriptor errors: %v",
			methodName,
			available,
			resolveErrors,
		)
	}
	return nil, fmt.Errorf("method %q not found. available: %v", methodName, available)
}

func canonicalMethodName(method string) string {
	trimmed := strings.TrimSpace(method)
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i+1 < len(trimmed) {
		return trimmed[i+1:]
	}
	return trimmed
}

// --- Internal helpers ---

func isReflectionService(name string) bool {
	return name == "grpc.reflection.v1alpha.ServerReflection" ||
		name == "grpc.reflection.v1.ServerReflection"
}

// reflectServices lists and resolves every non-reflection service. Services
// whose descriptors cannot be resolved are reported in the second result.
func reflectServices(ctx context.Context, conn grpc.ClientConnInterface) ([]protoreflect.ServiceDescriptor, []string, error) {
	refClient := reflectionpb.NewServerReflectionClient(conn)
	stream, err := refClient.ServerReflectionInfo(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reflection not available: %w", err)
	}
	defer stream.CloseSend() //nolint:errcheck

	if err := stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_ListServices{
			ListServices: "",
		},
	}); err != nil {
		return nil, nil, fmt.Errorf("list services: %w", err)
	}

	listResp, err := stream.Recv()
	if err != nil {
		return nil, nil, fmt.Errorf("list services response: %w", err)
	}

	listResult := listResp.GetListServicesResponse()
	if listResult == nil {
		return nil, nil, errors.New("no services found")
	}

	var (
		services      []protoreflect.ServiceDescriptor
		resolveErrors []string
	)
	for _, svc := range listResult.Service {
		if isReflectionService(svc.Name) {
			continue
		}
		desc, err := resolveService(stream, svc.Name)
		if err != nil {
			resolveErrors = append(resolveErrors, fmt.Sprintf("%s: %v", svc.Name, err))
			continue
		}
		services = append(services, desc)
	}
	return services, resolveErrors, nil
}

type reflectionStream = reflectionpb.ServerReflection_ServerReflectionInfoClient

// resolveService fetches the file declaring serviceName, follows its
// imports until the set is closed, and links the result.
func resolveService(stream reflectionStream, serviceName string) (protoreflect.ServiceDescriptor, error) {
	set := newFileSet()

	files, err := fetchFiles(stream, &reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: serviceName},
	})
	if err != nil {
		return nil, fmt.Errorf("descriptor for %s: %w", serviceName, err)
	}
	set.add(files...)

	// Servers may omit transitive imports from the first answer.
	for i := 0; i < len(set.order); i++ {
		for _, dep := range set.byName[set.order[i]].GetDependency() {
			if set.has(dep) {
				continue
			}
			files, err := fetchFiles(stream, &reflectionpb.ServerReflectionRequest{
				MessageRequest: &reflectionpb.ServerReflectionRequest_FileByFilename{FileByFilename: dep},
			})
			if err != nil {
				return nil, fmt.Errorf("descriptor %s: %w", dep, err)
			}
			set.add(files...)
		}
	}

	registry, err := protodesc.NewFiles(set.descriptorSet())
	if err != nil {
		return nil, fmt.Errorf("build file descriptors: %w", err)
	}
	d, err := registry.FindDescriptorByName(protoreflect.FullName(serviceName))
	if err != nil {
		return nil, fmt.Errorf("find service %s: %w", serviceName, err)
	}
	sd, ok := d.(protoreflect.ServiceDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a service", serviceName)
	}
	return sd, nil
}

// fetchFiles sends one reflection request and decodes the file
// descriptors in the answer.
func fetchFiles(stream reflectionStream, req *reflectionpb.ServerReflectionRequest) ([]*descriptorpb.FileDescriptorProto, error) {
	if err := stream.Send(req); err != nil {
		return nil, err
	}
	resp, err := stream.Recv()
	if err != nil {
		return nil, err
	}
	if e := resp.GetErrorResponse(); e != nil {
		return nil, errors.New(e.GetErrorMessage())
	}
	fdResp := resp.GetFileDescriptorResponse()
	if fdResp == nil {
		return nil, errors.New("no file descriptor in response")
	}

	files := make([]*descriptorpb.FileDescriptorProto, 0, len(fdResp.FileDescriptorProto))
	for _, b := range fdResp.FileDescriptorProto {
		fd := &descriptorpb.FileDescriptorProto{}
		if err := proto.Unmarshal(b, fd); err != nil {
			return nil, fmt.Errorf("unmarshal file descriptor: %w", err)
		}
		files = append(files, fd)
	}
	return files, nil
}

// fileSet collects descriptors by name, keeping first-seen order.
type fileSet struct {
	byName map[string]*descriptorpb.FileDescriptorProto
	order  []string
}

func newFileSet() *fileSet {
	return &fileSet{byName: make(map[string]*descriptorpb.FileDescriptorProto)}
}

func (s *fileSet) has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

func (s *fileSet) add(files ...*descriptorpb.FileDescriptorProto) {
	for _, fd := range files {
		name := fd.GetName()
		if name == "" || s.has(name) {
			continue
		}
		s.byName[name] = fd
		s.order = append(s.order, name)
	}
}

func (s *fileSet) descriptorSet() *descriptorpb.FileDescriptorSet {
	out := &descriptorpb.FileDescriptorSet{File: make([]*descriptorpb.FileDescriptorProto, 0, len(s.order))}
	for _, name := range s.order {
		out.File = append(out.File, s.byName[name])
	}
	return out
}

func callMethod(ctx context.Context, conn grpc.ClientConnInterface, svc protoreflect.ServiceDescriptor, method protoreflect.MethodDescriptor, inputJSON string) (*CallResult, error) {
	fullMethod := fmt.Sprintf("/%s/%s", svc.FullName(), method.Name())

	inputMsg := dynamicpb.NewMessage(method.Input())
	if trimmed := strings.TrimSpace(inputJSON); trimmed != "" && trimmed != "{}" {
		if err := protojson.Unmarshal([]byte(trimmed), inputMsg); err != nil {
			return nil, fmt.Errorf("parse input JSON: %w", err)
		}
	}

	outputMsg := dynamicpb.NewMessage(method.Output())
	if err := conn.Invoke(ctx, fullMethod, inputMsg, outputMsg); err != nil {
		return nil, fmt.Errorf("call %s: %w", fullMethod, err)
	}

	outputBytes, err := protojson.Marshal(outputMsg)
	if err != nil {
		return nil, fmt.Errorf("marshal output: %w", err)
	}

	result := &CallResult{
		Service: string(svc.FullName()),
		Method:  string(method.Name()),
		Output:  string(outputBytes),
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, outputBytes, "", "  "); err == nil {
		result.Output = pretty.String()
	}
	return result, nil
}

// DialStdio launches binaryPath with `serve --listen stdio://` and calls
// methodName over the child's stdin/stdout. No port is allocated.
func DialStdio(ctx context.Context, binaryPath, methodName, inputJSON string) (*CallResult, error) {
	cmd := exec.CommandContext(ctx, binaryPath, "serve", "--listen", "stdio://")

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binaryPath, err)
	}
	defer terminate(cmd) //nolint:errcheck

	// The server writes its HTTP/2 SETTINGS frame first. Reading one byte
	// proves it is alive; the byte is replayed through a MultiReader.
	firstByte := make([]byte, 1)
	readCh := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(stdoutPipe, firstByte)
		readCh <- err
	}()
	select {
	case err := <-readCh:
		if err != nil {
			return nil, fmt.Errorf("server did not start: %w", err)
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("server startup timeout")
	}

	pConn := &pipeConn{
		reader: io.MultiReader(bytes.NewReader(firstByte), stdoutPipe),
		writer: stdinPipe,
	}

	// The pipe is a single connection; reconnect attempts must fail.
	var dialOnce sync.Once
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		var conn net.Conn
		dialOnce.Do(func() { conn = pConn })
		if conn == nil {
			return nil, fmt.Errorf("stdio pipe already consumed")
		}
		return conn, nil
	}

	//nolint:staticcheck // DialContext+WithBlock forces the handshake over the pipe.
	conn, err := grpc.DialContext(ctx,
		"passthrough:///stdio",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("create grpc client over stdio: %w", err)
	}
	defer conn.Close()

	return Invoke(ctx, conn, methodName, inputJSON)
}

// terminate asks the child to stop with SIGTERM and kills it if it has
// not exited within three seconds.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		cmd.Process.Kill() //nolint:errcheck
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		return err
	case <-time.After(3 * time.Second):
		cmd.Process.Kill() //nolint:errcheck
		<-waitCh
		return fmt.Errorf("process did not exit after SIGTERM")
	}
}

// pipeConn wraps an io.Reader + io.WriteCloser as a net.Conn.
type pipeConn struct {
	reader io.Reader
	writer io.WriteCloser
}

func (c *pipeConn) Read(p []byte) (int, error)         { return c.reader.Read(p) }
func (c *pipeConn) Write(p []byte) (int, error)        { return c.writer.Write(p) }
func (c *pipeConn) Close() error                       { return c.writer.Close() }
func (c *pipeConn) LocalAddr() net.Addr                { return pipeAddr{} }
func (c *pipeConn) RemoteAddr() net.Addr               { return pipeAddr{} }
func (c *pipeConn) SetDeadline(_ time.Time) error      { return nil }
func (c *pipeConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *pipeConn) SetWriteDeadline(_ time.Time) error { return nil }

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "stdio://" }

// DialWebSocket connects to a gRPC server behind a WebSocket endpoint and
// calls a method. wsURI is "ws://host:port/path" or "wss://...".
func DialWebSocket(ctx context.Context, wsURI, methodName, inputJSON string) (*CallResult, error) {
	c, _, err := websocket.Dial(ctx, wsURI, &websocket.DialOptions{
		Subprotocols: []string{"grpc"},
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", wsURI, err)
	}

	wsConn := websocket.NetConn(ctx, c, websocket.MessageBinary)

	var dialOnce sync.Once
	dialer := func(_ context.Context, _ string) (net.Conn, error) {
		var conn net.Conn
		dialOnce.Do(func() { conn = wsConn })
		if conn == nil {
			return nil, fmt.Errorf("ws connection already consumed")
		}
		return conn, nil
	}

	//nolint:staticcheck // DialContext needed for single-connection transports.
	conn, err := grpc.DialContext(ctx,
		"passthrough:///ws",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
		grpc.WithBlock(),
	)
	if err != nil {
		wsConn.Close()
		return nil, fmt.Errorf("grpc handshake over ws: %w", err)
	}
	defer conn.Close()

	return Invoke(ctx, conn, methodName, inputJSON)
}
