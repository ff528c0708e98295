package grpcclient

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/organic-programming/calculate/internal/calcpb"
)

func TestDialStdio(t *testing.T) {
	t.Setenv(childModeEnv, "serve")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	input, err := calcpb.MarshalRequestJSON("add", []string{"5", "3"})
	if err != nil {
		t.Fatal(err)
	}
	result, err := DialStdio(ctx, os.Args[0], "Calculate", input)
	if err != nil {
		t.Fatalf("DialStdio: %v", err)
	}
	if result.Service != calcpb.ServiceName || result.Method != "Calculate" {
		t.Errorf("result = %+v", result)
	}
	c, err := calcpb.DecodeCalculateResponse([]byte(result.Output))
	if err != nil {
		t.Fatal(err)
	}
	if c.Value != 8 || c.Display != "8" {
		t.Errorf("calculation = %+v", c)
	}
}

func TestDialStdioRemoteError(t *testing.T) {
	t.Setenv(childModeEnv, "serve")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	input, err := calcpb.MarshalRequestJSON("divide", []string{"1", "0"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = DialStdio(ctx, os.Args[0], "Calculate", input)
	if err == nil || !strings.Contains(err.Error(), "Cannot divide by zero") {
		t.Fatalf("err = %v, want division by zero", err)
	}
}

func TestDialStdioMissingBinary(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	missing := filepath.Join(t.TempDir(), "no-such-calculate")
	if _, err := DialStdio(ctx, missing, "Calculate", "{}"); err == nil {
		t.Fatal("expected start error")
	}
}

func TestTerminateKillsStubbornProcess(t *testing.T) {
	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(), childModeEnv+"=stubborn")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}

	line, err := bufio.NewReader(stdout).ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "ready" {
		cmd.Process.Kill() //nolint:errcheck
		t.Fatalf("child handshake = %q, %v", line, err)
	}

	start := time.Now()
	err = terminate(cmd)
	if err == nil || !strings.Contains(err.Error(), "did not exit") {
		t.Fatalf("terminate = %v, want kill after timeout", err)
	}
	if elapsed := time.Since(start); elapsed < 3*time.Second {
		t.Errorf("killed after %s, before the SIGTERM grace period", elapsed)
	}
}

func TestTerminateNotStarted(t *testing.T) {
	if err := terminate(exec.Command("true")); err != nil {
		t.Errorf("terminate on unstarted command = %v", err)
	}
}
