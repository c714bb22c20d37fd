// Package render rasterizes STEP models into screenshot images so the
// oracle can compare the current solid against the reference drawing.
package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"cad3dify/internal/logging"
	"cad3dify/internal/sandbox"
)

// Renderer turns a STEP model file into a raster image file.
type Renderer interface {
	Render(ctx context.Context, modelPath, imagePath string) error
}

// pythonRenderScript loads a STEP file with CadQuery/OCP and writes an
// offscreen PNG screenshot. Paths are substituted as Python string
// literals before execution.
const pythonRenderScript = `import cadquery as cq
from cadquery.vis import show

model = cq.importers.importStep(%q)
show(model, screenshot=%q, interact=False)
`

// PythonRenderer renders by running a CadQuery screenshot script through
// the sandbox executor. It requires cadquery (with VTK) in the configured
// interpreter.
type PythonRenderer struct {
	exec *sandbox.Executor
}

// NewPythonRenderer creates a renderer backed by the given executor.
func NewPythonRenderer(exec *sandbox.Executor) *PythonRenderer {
	return &PythonRenderer{exec: exec}
}

// Render rasterizes modelPath into imagePath.
func (r *PythonRenderer) Render(ctx context.Context, modelPath, imagePath string) error {
	logging.Render("Rendering %s -> %s", modelPath, imagePath)

	script := fmt.Sprintf(pythonRenderScript, modelPath, imagePath)
	result, err := r.exec.RunScript(ctx, script)
	if err != nil {
		return fmt.Errorf("render execution failed: %w", err)
	}
	if result.Failed() {
		logging.RenderWarn("Render script failed: exit=%d stderr=%s", result.ExitCode, result.Stderr)
		return fmt.Errorf("render script failed (exit %d): %s", result.ExitCode, firstLine(result.Stderr))
	}
	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("render produced no image at %s: %w", imagePath, err)
	}
	return nil
}

// CommandRenderer shells out to a user-supplied command template. The
// template's {model} and {image} tokens are replaced with the actual paths.
type CommandRenderer struct {
	template string
}

// NewCommandRenderer creates a renderer from a command template, e.g.
// "step2png {model} {image}".
func NewCommandRenderer(template string) *CommandRenderer {
	return &CommandRenderer{template: template}
}

// Render runs the command with paths substituted.
func (r *CommandRenderer) Render(ctx context.Context, modelPath, imagePath string) error {
	cmdline := strings.ReplaceAll(r.template, "{model}", modelPath)
	cmdline = strings.ReplaceAll(cmdline, "{image}", imagePath)

	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return fmt.Errorf("empty render command")
	}

	logging.Render("Rendering via command: %s", cmdline)
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		logging.RenderWarn("Render command failed: %v", err)
		return fmt.Errorf("render command failed: %w: %s", err, firstLine(string(out)))
	}
	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("render produced no image at %s: %w", imagePath, err)
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Tracebacks put the useful message last.
		lines := strings.Split(s, "\n")
		return strings.TrimSpace(lines[len(lines)-1])
	}
	return s
}
