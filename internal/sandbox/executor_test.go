package sandbox

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func TestRunScriptSuccess(t *testing.T) {
	requirePython(t)
	e := NewExecutor(Config{WorkDir: t.TempDir()})

	result, err := e.RunScript(context.Background(), `print("hello")`)
	if err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if !result.Success || result.ExitCode != 0 {
		t.Errorf("success=%v exit=%d, want clean exit", result.Success, result.ExitCode)
	}
	if !strings.Contains(result.Stdout, "hello") {
		t.Errorf("stdout = %q, want hello", result.Stdout)
	}
	if result.Failed() {
		t.Error("Failed() = true for clean run")
	}
}

func TestRunScriptNonZeroExit(t *testing.T) {
	requirePython(t)
	e := NewExecutor(Config{WorkDir: t.TempDir()})

	result, err := e.RunScript(context.Background(), `raise ValueError("boom")`)
	if err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if !result.Success {
		t.Error("interpreter ran; Success should be true")
	}
	if result.ExitCode == 0 {
		t.Error("exit code should be non-zero")
	}
	if !strings.Contains(result.Stderr, "ValueError") {
		t.Errorf("stderr = %q, want traceback", result.Stderr)
	}
	if !result.Failed() {
		t.Error("Failed() = false for crashed script")
	}
}

func TestRunScriptTimeout(t *testing.T) {
	requirePython(t)
	e := NewExecutor(Config{WorkDir: t.TempDir(), Timeout: 500 * time.Millisecond})

	result, err := e.RunScript(context.Background(), "import time\ntime.sleep(10)")
	if err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if !result.Killed {
		t.Error("expected Killed after timeout")
	}
	if !result.Failed() {
		t.Error("Failed() = false for killed script")
	}
}

func TestRunFileMissingInterpreter(t *testing.T) {
	e := NewExecutor(Config{Python: "definitely-not-a-python-binary"})

	result, err := e.RunScript(context.Background(), `print("x")`)
	if err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if result.Success {
		t.Error("missing interpreter should mean Success=false")
	}
	if result.Error == "" {
		t.Error("expected Error to be populated")
	}
}

func TestLimitedWriterCapsOutput(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, max: 5}

	n, err := lw.Write([]byte("0123456789"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("n = %d, want full length reported", n)
	}
	if buf.String() != "01234" {
		t.Errorf("buffer = %q, want first 5 bytes", buf.String())
	}
	if !lw.truncated {
		t.Error("expected truncated flag")
	}

	// Subsequent writes are discarded entirely.
	if _, err := lw.Write([]byte("more")); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 5 {
		t.Errorf("buffer grew past cap: %d", buf.Len())
	}
}
