package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
	"google.golang.org/protobuf/proto"

	"github.com/organic-programming/calculate/internal/calcpb"
	"github.com/organic-programming/calculate/internal/dispatch"
)

// Format determines how a result is displayed.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid format %q (expected text or json)", value)
	}
}

// FormatCalculation renders a calculation for CLI output. In text form the
// result is the display value alone, so it is always the last line.
func FormatCalculation(format Format, c calcpb.Calculation, pretty bool) string {
	if c.Display == "" {
		c.Display = dispatch.FormatValue(c.Value)
	}
	if format == FormatJSON {
		return marshalJSONForOutput(calcpb.NewCalculateResponse(c), pretty)
	}
	return c.Display
}

// FormatOperations renders the operation table.
func FormatOperations(format Format, ops []calcpb.OperationInfo, pretty bool) string {
	if format == FormatJSON {
		return marshalJSONForOutput(calcpb.NewListOperationsResponse(ops), pretty)
	}
	if len(ops) == 0 {
		return "No operations available."
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tARITY\tUSAGE")
	for _, op := range ops {
		fmt.Fprintf(w, "%s\t%d\t%s\n", op.Name, op.Arity, defaultDash(op.Usage))
	}
	_ = w.Flush()
	return strings.TrimSpace(b.String())
}

// verboseLines are the diagnostics printed ahead of the result.
func verboseLines(c calcpb.Calculation) []string {
	operands := make([]string, len(c.Operands))
	for i, o := range c.Operands {
		operands[i] = strconv.FormatFloat(o, 'g', -1, 64)
	}
	return []string{
		"Operation: " + c.Operation,
		"Operands: " + strings.Join(operands, ", "),
		"Raw result: " + strconv.FormatFloat(c.Value, 'g', -1, 64),
	}
}

func defaultDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func marshalJSONForOutput(msg proto.Message, pretty bool) string {
	out, err := calcpb.MarshalJSON(msg, pretty)
	if err != nil {
		return "{}"
	}
	return out
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
