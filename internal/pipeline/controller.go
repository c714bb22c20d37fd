// Package pipeline contains the refinement controller: one generation pass
// followed by N strictly sequential refinement rounds, each of which may
// fail soft and be skipped without losing the best artifact so far.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"cad3dify/internal/extract"
	"cad3dify/internal/imaging"
	"cad3dify/internal/logging"
	"cad3dify/internal/perception"
	"cad3dify/internal/prompt"
	"cad3dify/internal/render"
	"cad3dify/internal/repair"
)

// ErrNoCode is returned when an oracle response carries no fenced code
// block. Fatal on the initial generation pass; skip-round during
// refinement.
var ErrNoCode = errors.New("oracle response contained no code block")

// ErrPlaceholderMissing is returned when a script does not contain the
// output path placeholder. Without it the script would write to an
// unintended location, so the script is rejected before execution.
var ErrPlaceholderMissing = errors.New("output path placeholder missing from script")

// SubstituteOutputPath replaces every placeholder occurrence with path.
// Absence of the placeholder is an explicit validation failure, never a
// silent no-op.
func SubstituteOutputPath(script, path string) (string, error) {
	if !strings.Contains(script, prompt.OutputPlaceholder) {
		return "", fmt.Errorf("%w: expected %q", ErrPlaceholderMissing, prompt.OutputPlaceholder)
	}
	return strings.ReplaceAll(script, prompt.OutputPlaceholder, path), nil
}

// ScriptExecutor drives a script to execution, repairing when the profile
// allows it. *repair.Agent is the production implementation.
type ScriptExecutor interface {
	Execute(ctx context.Context, script string) (*repair.Outcome, error)
}

// ScriptExecutorFunc adapts a function to ScriptExecutor.
type ScriptExecutorFunc func(ctx context.Context, script string) (*repair.Outcome, error)

// Execute calls f.
func (f ScriptExecutorFunc) Execute(ctx context.Context, script string) (*repair.Outcome, error) {
	return f(ctx, script)
}

// Options are the run parameters for one drawing.
type Options struct {
	ImagePath   string
	OutputPath  string
	Refinements int
}

// RoundReport records what one refinement round contributed.
type RoundReport struct {
	Index   int
	Skipped bool
	Reason  string
}

// Summary describes a completed run.
type Summary struct {
	// Script is the final committed script, placeholder intact.
	Script string

	// OracleCalls counts code-generation calls (generate + refine), not
	// repair-loop calls.
	OracleCalls int

	Rounds []RoundReport
}

// Controller is the top-level state machine. All collaborators are
// stateless services it calls in sequence; the controller exclusively owns
// the evolving script.
type Controller struct {
	oracle   perception.Oracle
	builder  *prompt.Builder
	agent    ScriptExecutor
	renderer render.Renderer
	tempDir  string
}

// NewController wires the collaborators together. tempDir holds per-round
// rendered images; empty means the OS temp directory.
func NewController(oracle perception.Oracle, builder *prompt.Builder, agent ScriptExecutor, renderer render.Renderer, tempDir string) *Controller {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Controller{
		oracle:   oracle,
		builder:  builder,
		agent:    agent,
		renderer: renderer,
		tempDir:  tempDir,
	}
}

// Run drives the full pipeline: generate once, execute, then refine
// opts.Refinements times. The artifact on disk at opts.OutputPath when Run
// returns is the final result; refinement failures skip their round and
// never destroy it.
func (c *Controller) Run(ctx context.Context, opts Options) (*Summary, error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "Pipeline run")
	defer timer.Stop()

	ref, err := imaging.Load(opts.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference image: %w", err)
	}

	summary := &Summary{}

	// Init -> Generated
	logging.Pipeline("Generating initial script from %s", opts.ImagePath)
	req, err := c.builder.Generate(ref)
	if err != nil {
		return nil, err
	}
	reply, err := c.oracle.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generation oracle call failed: %w", err)
	}
	summary.OracleCalls++

	script, ok := extract.FirstCodeBlock(reply)
	if !ok {
		// Nothing to refine; the one unrecoverable mid-run failure.
		return nil, ErrNoCode
	}
	summary.Script = script

	// Generated -> Executed. The outcome is logged but does not gate
	// refinement; a failed first execution just means early rounds render
	// nothing and skip.
	bound, err := SubstituteOutputPath(script, opts.OutputPath)
	if err != nil {
		return nil, err
	}
	if outcome, err := c.agent.Execute(ctx, bound); err != nil {
		logging.PipelineWarn("Initial execution failed: %v", err)
	} else if outcome.Result.Failed() {
		logging.PipelineWarn("Initial execution did not exit cleanly (exit %d)", outcome.Result.ExitCode)
	} else {
		logging.Pipeline("Initial model written to %s", opts.OutputPath)
	}

	// Executed -> Refining[0..N-1], strictly sequential.
	for i := 0; i < opts.Refinements; i++ {
		logging.Pipeline("Starting %s refinement round", ordinal(i+1))
		report := c.refineRound(ctx, i, ref, summary, opts.OutputPath)
		summary.Rounds = append(summary.Rounds, report)
		if report.Skipped {
			logging.PipelineWarn("Round %d skipped: %s", i, report.Reason)
		} else {
			logging.Pipeline("Round %d committed a new script and artifact", i)
		}
	}

	logging.Pipeline("Pipeline done: %d oracle calls, final artifact at %s", summary.OracleCalls, opts.OutputPath)
	return summary, nil
}

const (
	reasonRender      = "render failed"
	reasonOracle      = "oracle call failed"
	reasonNoCode      = "no code block in response"
	reasonPlaceholder = "placeholder missing"
	reasonExecution   = "execution failed"
)

// refineRound performs one refinement iteration. On success it commits the
// new script into the summary; on any failure it leaves state untouched
// and reports the skip reason.
func (c *Controller) refineRound(ctx context.Context, index int, ref imaging.Image, summary *Summary, outputPath string) RoundReport {
	report := RoundReport{Index: index}

	// a. Render the current artifact. A missing or invalid artifact from a
	// prior failed execution lands here and fails soft.
	renderPath := filepath.Join(c.tempDir, fmt.Sprintf("cad3dify_render_%s.png", uuid.New().String()[:8]))
	defer os.Remove(renderPath)

	if err := c.renderer.Render(ctx, outputPath, renderPath); err != nil {
		logging.PipelineWarn("Round %d: %v", index, err)
		report.Skipped = true
		report.Reason = reasonRender
		return report
	}
	rendered, err := imaging.Load(renderPath)
	if err != nil {
		logging.PipelineWarn("Round %d: failed to load rendered image: %v", index, err)
		report.Skipped = true
		report.Reason = reasonRender
		return report
	}

	// b. Ask the oracle to compare and revise.
	req, err := c.builder.Refine(ref, rendered, summary.Script)
	if err != nil {
		report.Skipped = true
		report.Reason = err.Error()
		return report
	}
	reply, err := c.oracle.Complete(ctx, req)
	if err != nil {
		logging.PipelineWarn("Round %d: %v", index, err)
		report.Skipped = true
		report.Reason = reasonOracle
		return report
	}
	summary.OracleCalls++

	// c. Extract; a codeless reply contributes nothing this round.
	newScript, ok := extract.FirstCodeBlock(reply)
	if !ok {
		report.Skipped = true
		report.Reason = reasonNoCode
		return report
	}

	// d. Substitute and execute. Failure keeps the prior artifact on disk.
	bound, err := SubstituteOutputPath(newScript, outputPath)
	if err != nil {
		logging.PipelineWarn("Round %d: %v", index, err)
		report.Skipped = true
		report.Reason = reasonPlaceholder
		return report
	}
	outcome, err := c.agent.Execute(ctx, bound)
	if err != nil {
		logging.PipelineWarn("Round %d: %v", index, err)
		report.Skipped = true
		report.Reason = fmt.Sprintf("%s: %v", reasonExecution, err)
		return report
	}
	if outcome.Result.Failed() {
		report.Skipped = true
		report.Reason = fmt.Sprintf("%s: exit %d", reasonExecution, outcome.Result.ExitCode)
		return report
	}

	// e. Commit: the new script drives the next round.
	summary.Script = newScript
	return report
}

// ordinal renders 1 -> "1st", 2 -> "2nd", 3 -> "3rd", everything else "th".
func ordinal(n int) string {
	switch n {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	default:
		return fmt.Sprintf("%dth", n)
	}
}
