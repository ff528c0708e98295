// Package cli implements calculate's command routing: arithmetic
// operations, the gRPC serving facet, and remote dispatch by URI.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/status"

	"github.com/organic-programming/calculate/internal/calcpb"
	"github.com/organic-programming/calculate/internal/dispatch"
	"github.com/organic-programming/calculate/internal/grpcclient"
	"github.com/organic-programming/calculate/internal/server"
)

// Run dispatches the command and returns an exit code.
func Run(args []string, version string) int {
	return run(args, version, os.Stdout, os.Stderr)
}

func run(args []string, version string, stdout, stderr io.Writer) int {
	opts, rest, err := parseGlobalFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	a, err := newApp(opts, version, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if len(rest) == 0 {
		printUsage(stdout)
		return 0
	}

	cmd := rest[0]
	rest = rest[1:]

	switch cmd {
	case "operations":
		return a.cmdOperations()
	case "serve":
		return a.cmdServe(rest)
	case "version":
		fmt.Fprintf(stdout, "calculate %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0

	// --- URI dispatch: grpc://, grpc+unix://, grpc+ws://, grpc+stdio://, grpc+mem:// ---
	default:
		if strings.HasPrefix(cmd, "grpc://") || strings.HasPrefix(cmd, "grpc+") {
			return a.cmdGRPC(cmd, rest)
		}
		return a.cmdCalculate(cmd, rest)
	}
}

// PrintUsage displays the help text.
func PrintUsage() {
	printUsage(os.Stdout)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `calculate: command-line arithmetic

Operations:
  calculate add <a> <b>                       sum
  calculate subtract <a> <b>                  difference
  calculate multiply <a> <b>                  product
  calculate divide <a> <b>                    quotient (b must not be 0)
  calculate power <a> <b>                     a raised to b
  calculate sqrt <a>                          square root (a must not be negative)
  calculate operations                        list operations

Facets:
  calculate serve [--listen tcp://:9090] [--no-reflect]
                                              start the gRPC server
  calculate grpc://<host:port> [<op> <args>]  call a server over TCP
  calculate grpc+unix://<path> <op> <args>    call a server over a Unix socket
  calculate grpc+ws://<host:port> <op> <args> call a server over WebSocket
  calculate grpc+stdio://[binary] <op> <args> spawn a server on a stdio pipe
  calculate grpc+mem:// <op> <args>           call an in-process server

Global flags (before the command):
  --format text|json    output format (default text)
  -v, --verbose         print the operation and operands before the result
  --config <path>       config file (default .calculaterc, or $CALCULATE_CONFIG)
  --timeout <duration>  deadline for remote calls (default 10s)

  calculate version                           show version
  calculate help                              this message
`)
}

// --- Global flags ---

type globalOptions struct {
	format  string
	verbose bool
	config  string
	timeout string
}

// parseGlobalFlags consumes leading flags. Parsing stops at the first
// argument that is not a flag, so operands such as "-5" after the
// command are never mistaken for flags.
func parseGlobalFlags(args []string) (globalOptions, []string, error) {
	var opts globalOptions

	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return opts, args[i+1:], nil
		}
		if !strings.HasPrefix(a, "-") || a == "-h" || a == "--help" || isNumber(a) {
			return opts, args[i:], nil
		}

		key, value, hasValue := strings.Cut(a, "=")
		switch key {
		case "-v", "--verbose":
			if hasValue {
				b, err := strconv.ParseBool(value)
				if err != nil {
					return opts, nil, fmt.Errorf("invalid value for %s: %q", key, value)
				}
				opts.verbose = b
			} else {
				opts.verbose = true
			}
			continue
		case "--format", "--config", "--timeout":
		default:
			return opts, nil, fmt.Errorf("unknown flag %s", key)
		}

		if !hasValue {
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("flag %s requires a value", key)
			}
			i++
			value = args[i]
		}
		switch key {
		case "--format":
			opts.format = value
		case "--config":
			opts.config = value
		case "--timeout":
			opts.timeout = value
		}
	}
	return opts, nil, nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// --- Application state ---

type app struct {
	stdout  io.Writer
	stderr  io.Writer
	cfg     Config
	format  Format
	verbose bool
	timeout time.Duration
	version string
}

// newApp merges flags over the config file over the defaults.
func newApp(opts globalOptions, version string, stdout, stderr io.Writer) (*app, error) {
	cfg, err := LoadConfig(opts.config)
	if err != nil {
		return nil, err
	}

	a := &app{
		stdout:  stdout,
		stderr:  stderr,
		cfg:     cfg,
		format:  cfg.Format,
		verbose: cfg.Verbose || opts.verbose,
		timeout: cfg.Timeout,
		version: version,
	}

	if opts.format != "" {
		if a.format, err = ParseFormat(opts.format); err != nil {
			return nil, err
		}
	}
	if opts.timeout != "" {
		d, err := time.ParseDuration(opts.timeout)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid timeout %q", opts.timeout)
		}
		a.timeout = d
	}
	return a, nil
}

// fail is the single place errors become user-facing output.
func (a *app) fail(err error) int {
	fmt.Fprintf(a.stderr, "Error: %s\n", errorMessage(err))
	return 1
}

// errorMessage unwraps remote failures to the status message so a remote
// call prints exactly what a local one would.
func errorMessage(err error) string {
	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) {
		if st := se.GRPCStatus(); st != nil && st.Message() != "" {
			return st.Message()
		}
	}
	return err.Error()
}

func (a *app) pretty() bool {
	return isTerminal(a.stdout)
}

// diagnostics is where verbose lines go. JSON output keeps stdout a single
// document.
func (a *app) diagnostics() io.Writer {
	if a.format == FormatJSON {
		return a.stderr
	}
	return a.stdout
}

func (a *app) printCalculation(c calcpb.Calculation) int {
	if a.verbose {
		w := a.diagnostics()
		for _, line := range verboseLines(c) {
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintln(a.stdout, FormatCalculation(a.format, c, a.pretty()))
	return 0
}

// --- Local commands ---

func (a *app) cmdCalculate(name string, operands []string) int {
	res, err := dispatch.Dispatch(name, operands)
	if err != nil {
		return a.fail(err)
	}
	return a.printCalculation(calcpb.Calculation{
		Operation: res.Operation,
		Operands:  res.Operands,
		Value:     res.Value,
		Display:   res.Display(),
	})
}

func (a *app) cmdOperations() int {
	fmt.Fprintln(a.stdout, FormatOperations(a.format, calcpb.OperationInfosFrom(dispatch.Operations()), a.pretty()))
	return 0
}

func (a *app) cmdServe(args []string) int {
	listenURI := flagOrDefault(args, "--listen", a.cfg.Serve.Listen)
	reflect := a.cfg.Serve.Reflection && !hasFlag(args, "--no-reflect")

	logOut, closeLog := a.cfg.LogOutput(a.stderr)
	defer closeLog() //nolint:errcheck

	if err := server.ListenAndServe(listenURI, reflect, a.cfg.Logger(logOut)); err != nil {
		return a.fail(err)
	}
	return 0
}

// --- Remote commands ---

// caller performs one reflected call over a particular transport.
type caller func(ctx context.Context, method, inputJSON string) (*grpcclient.CallResult, error)

// cmdGRPC handles gRPC URI dispatching.
//
// Transport schemes:
//   - grpc://host:port [op args]      → TCP to an existing server
//   - grpc+unix://path op args        → Unix domain socket
//   - grpc+ws://host:port[/path] ...  → WebSocket (default path /grpc)
//   - grpc+stdio://[binary] op args   → spawn binary on a stdio pipe
//   - grpc+mem:// op args             → in-process server
func (a *app) cmdGRPC(uri string, args []string) int {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	scheme, rest, _ := strings.Cut(uri, "://")

	var (
		call caller
		list func(ctx context.Context) ([]string, error)
	)

	switch scheme {
	case "grpc":
		if _, _, err := net.SplitHostPort(rest); err != nil {
			return a.fail(fmt.Errorf("invalid address %q: expected host:port", rest))
		}
		call = func(ctx context.Context, method, input string) (*grpcclient.CallResult, error) {
			return grpcclient.Dial(ctx, rest, method, input)
		}
		list = func(ctx context.Context) ([]string, error) {
			return grpcclient.ListMethods(ctx, rest)
		}
	case "grpc+unix":
		// unix:<path> accepts both relative and absolute paths; unix://
		// would read a relative path as an authority.
		address := "unix:" + rest
		call = func(ctx context.Context, method, input string) (*grpcclient.CallResult, error) {
			return grpcclient.Dial(ctx, address, method, input)
		}
		list = func(ctx context.Context) ([]string, error) {
			return grpcclient.ListMethods(ctx, address)
		}
	case "grpc+ws", "grpc+wss":
		wsURI := strings.TrimPrefix(uri, "grpc+")
		if !strings.Contains(rest, "/") {
			wsURI += "/grpc"
		}
		call = func(ctx context.Context, method, input string) (*grpcclient.CallResult, error) {
			return grpcclient.DialWebSocket(ctx, wsURI, method, input)
		}
	case "grpc+stdio":
		binary := rest
		if binary == "" {
			self, err := os.Executable()
			if err != nil {
				return a.fail(fmt.Errorf("locate calculate binary: %w", err))
			}
			binary = self
		}
		call = func(ctx context.Context, method, input string) (*grpcclient.CallResult, error) {
			return grpcclient.DialStdio(ctx, binary, method, input)
		}
	case "grpc+mem":
		call = a.callViaMem
		list = a.listMethodsViaMem
	default:
		return a.fail(fmt.Errorf("unsupported transport %q", scheme))
	}

	if len(args) == 0 {
		if list == nil {
			return a.fail(fmt.Errorf("operation required for %s", uri))
		}
		methods, err := list(ctx)
		if err != nil {
			return a.fail(err)
		}
		fmt.Fprintf(a.stdout, "Available methods at %s:\n", uri)
		for _, m := range methods {
			fmt.Fprintf(a.stdout, "  %s\n", m)
		}
		return 0
	}

	if args[0] == "operations" {
		return a.remoteOperations(ctx, call)
	}
	return a.remoteCalculate(ctx, call, args[0], args[1:])
}

func (a *app) remoteCalculate(ctx context.Context, call caller, op string, operands []string) int {
	input, err := calcpb.MarshalRequestJSON(op, operands)
	if err != nil {
		return a.fail(err)
	}

	result, err := call(ctx, calcpb.MethodCalculate, input)
	if err != nil {
		return a.fail(err)
	}

	c, err := calcpb.DecodeCalculateResponse([]byte(result.Output))
	if err != nil {
		return a.fail(err)
	}
	return a.printCalculation(c)
}

func (a *app) remoteOperations(ctx context.Context, call caller) int {
	result, err := call(ctx, calcpb.MethodListOperations, "{}")
	if err != nil {
		return a.fail(err)
	}

	ops, err := calcpb.DecodeListOperationsResponse([]byte(result.Output))
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.stdout, FormatOperations(a.format, ops, a.pretty()))
	return 0
}

// --- Flag helpers ---

// flagValue extracts --key value (or --key=value) from args. Returns ""
// if not found.
func flagValue(args []string, key string) string {
	for i, a := range args {
		if a == key && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, key+"="); ok {
			return v
		}
	}
	return ""
}

// flagOrDefault returns the flag value if present, else the default.
func flagOrDefault(args []string, key, defaultVal string) string {
	if v := flagValue(args, key); v != "" {
		return v
	}
	return defaultVal
}

// hasFlag reports whether a boolean flag is present.
func hasFlag(args []string, key string) bool {
	for _, a := range args {
		if a == key {
			return true
		}
	}
	return false
}
