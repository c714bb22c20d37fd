// Package sandbox runs generated Python scripts on the host interpreter
// with bounded runtime and bounded captured output.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"cad3dify/internal/logging"
)

// Config controls script execution.
type Config struct {
	// Python is the interpreter binary.
	Python string

	// Timeout bounds a single script run.
	Timeout time.Duration

	// MaxOutputBytes caps each of stdout and stderr.
	MaxOutputBytes int64

	// WorkDir is where scripts run and where temp script files are written.
	// Empty means the OS temp directory for scripts and the current
	// directory for execution.
	WorkDir string
}

// DefaultConfig returns sensible execution defaults.
func DefaultConfig() Config {
	return Config{
		Python:         "python3",
		Timeout:        5 * time.Minute,
		MaxOutputBytes: 1024 * 1024, // 1MB per stream
	}
}

// Result describes one script run. A Result with Success=true and a
// non-zero ExitCode means the interpreter ran and the script failed;
// Success=false means the run itself could not be performed.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
	Duration time.Duration

	// Killed is set when the timeout fired or the context was canceled.
	Killed     bool
	KillReason string

	Truncated bool
	Success   bool
	Error     string
}

// Failed reports whether the script ran but did not exit cleanly.
func (r *Result) Failed() bool {
	return r.Killed || r.ExitCode != 0 || !r.Success
}

// Executor runs Python scripts via os/exec with no further isolation.
type Executor struct {
	config Config
}

// NewExecutor creates an executor with the given config, filling zero
// values from DefaultConfig.
func NewExecutor(config Config) *Executor {
	def := DefaultConfig()
	if config.Python == "" {
		config.Python = def.Python
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxOutputBytes == 0 {
		config.MaxOutputBytes = def.MaxOutputBytes
	}
	return &Executor{config: config}
}

// RunScript writes code to a uniquely named temp file and executes it.
// The temp file is removed afterwards.
func (e *Executor) RunScript(ctx context.Context, code string) (*Result, error) {
	dir := e.config.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	scriptPath := filepath.Join(dir, fmt.Sprintf("cad3dify_%s.py", uuid.New().String()[:8]))
	if err := os.WriteFile(scriptPath, []byte(code), 0644); err != nil {
		return nil, fmt.Errorf("failed to write script file: %w", err)
	}
	defer os.Remove(scriptPath)

	return e.RunFile(ctx, scriptPath)
}

// RunFile executes an existing Python script file.
func (e *Executor) RunFile(ctx context.Context, scriptPath string) (*Result, error) {
	timer := logging.StartTimer(logging.CategorySandbox, "Script execution")
	defer timer.Stop()

	logging.Sandbox("Executing script: %s", scriptPath)

	execCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.config.Python, scriptPath)
	cmd.Dir = e.config.WorkDir

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: e.config.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: e.config.MaxOutputBytes}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(start),
		ExitCode: -1,
	}
	result.Combined = result.Stdout
	if result.Stderr != "" {
		if result.Combined != "" {
			result.Combined += "\n"
		}
		result.Combined += result.Stderr
	}
	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		logging.SandboxWarn("Script output truncated")
	}

	if err != nil {
		switch {
		case execCtx.Err() == context.DeadlineExceeded:
			result.Killed = true
			result.KillReason = fmt.Sprintf("timeout after %s", e.config.Timeout)
			result.Success = true // the run happened, the script was killed
			logging.SandboxWarn("Script killed: timeout after %s", e.config.Timeout)
		case execCtx.Err() == context.Canceled:
			result.Killed = true
			result.KillReason = "context canceled"
			result.Success = true
		default:
			if exitErr, ok := err.(*exec.ExitError); ok {
				result.Success = true // interpreter ran, script exited non-zero
				result.ExitCode = exitErr.ExitCode()
				logging.SandboxDebug("Script exited non-zero: %d", result.ExitCode)
			} else {
				result.Success = false
				result.Error = err.Error()
				logging.SandboxWarn("Script could not run: %v", err)
				return result, nil
			}
		}
	} else {
		result.Success = true
		result.ExitCode = 0
		logging.SandboxDebug("Script succeeded")
	}

	return result, nil
}

// limitedWriter caps how much is written through, discarding the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.written >= lw.max {
		lw.truncated = true
		return len(p), nil // pretend success so the process is not blocked
	}
	remaining := lw.max - lw.written
	toWrite := p
	if int64(len(p)) > remaining {
		toWrite = p[:remaining]
		lw.truncated = true
	}
	n, err := lw.w.Write(toWrite)
	lw.written += int64(n)
	if err != nil {
		return n, err
	}
	return len(p), nil
}
