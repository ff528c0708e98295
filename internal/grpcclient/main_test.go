package grpcclient

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/organic-programming/calculate/internal/server"
)

// childModeEnv turns the test binary into a helper process:
// "serve" runs a calculator server on stdin/stdout, "stubborn"
// ignores SIGTERM until it is killed.
const childModeEnv = "CALCULATE_TEST_CHILD_MODE"

func TestMain(m *testing.M) {
	switch os.Getenv(childModeEnv) {
	case "serve":
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		if err := server.ListenAndServe("stdio://", true, logger); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		fmt.Println("ready")
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(m.Run())
}
