// Package repair drives the execute-and-fix loop: run a generated script,
// and when it fails, ask the oracle for a corrected script until it runs
// cleanly or the attempt ceiling is hit. Every edit is oracle-proposed;
// the agent never rewrites code itself.
package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cad3dify/internal/extract"
	"cad3dify/internal/logging"
	"cad3dify/internal/perception"
	"cad3dify/internal/sandbox"
)

// ErrCannotFix is returned when the oracle gives up, or when the attempt
// ceiling is reached without a clean run.
var ErrCannotFix = errors.New("script could not be repaired")

// CannotFixSentinel is the phrase the oracle is instructed to reply with
// when no fix exists.
const CannotFixSentinel = "I cannot fix it"

const repairSystem = "You are an expert Python debugger. You fix CadQuery scripts so they run " +
	"without errors, changing as little as possible. If a script is truly " +
	"unfixable, reply with exactly: " + CannotFixSentinel

// Attempt records one iteration of the repair loop.
type Attempt struct {
	Script   string
	Result   *sandbox.Result
	Response string // oracle reply that produced the next script, if any
}

// Outcome is the result of driving a script to execution.
type Outcome struct {
	// FinalScript is the last script that was executed.
	FinalScript string

	// Result is the execution result of FinalScript.
	Result *sandbox.Result

	// Attempts counts repair iterations consumed (0 means the script ran
	// cleanly first time, or bare mode).
	Attempts int

	// Repaired is true when the final script differs from the input.
	Repaired bool

	Transcript []Attempt
}

// ScriptRunner executes a script body and reports the outcome.
// *sandbox.Executor is the production implementation.
type ScriptRunner interface {
	RunScript(ctx context.Context, code string) (*sandbox.Result, error)
}

// Agent executes scripts and repairs them with oracle assistance.
type Agent struct {
	oracle  perception.Oracle
	exec    ScriptRunner
	profile perception.Profile
}

// NewAgent creates a repair agent.
func NewAgent(oracle perception.Oracle, exec ScriptRunner, profile perception.Profile) *Agent {
	return &Agent{oracle: oracle, exec: exec, profile: profile}
}

// Execute runs script to a clean exit, repairing on failure. Profiles
// marked execution-unreliable get bare execution with no repair round.
func (a *Agent) Execute(ctx context.Context, script string) (*Outcome, error) {
	if a.profile.ExecutionUnreliable {
		return a.ExecuteBare(ctx, script)
	}

	outcome := &Outcome{FinalScript: script}
	ceiling := a.profile.Ceiling()

	result, err := a.exec.RunScript(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}
	outcome.Result = result
	outcome.Transcript = append(outcome.Transcript, Attempt{Script: script, Result: result})
	if !result.Failed() {
		logging.Repair("Script ran cleanly, no repair needed")
		return outcome, nil
	}

	current := script
	for attempt := 1; attempt <= ceiling; attempt++ {
		logging.Repair("Repair attempt %d/%d", attempt, ceiling)
		outcome.Attempts = attempt

		reply, err := a.oracle.Complete(ctx, perception.Request{
			System: repairSystem,
			User:   a.repairPrompt(current, outcome.Result),
		})
		if err != nil {
			return nil, fmt.Errorf("repair oracle call failed: %w", err)
		}

		if strings.Contains(reply, CannotFixSentinel) {
			logging.Repair("Oracle declared the script unfixable after %d attempts", attempt)
			return outcome, fmt.Errorf("%w: %s", ErrCannotFix, lastTracebackLine(outcome.Result))
		}

		fixed, ok := extract.FirstCodeBlock(reply)
		if !ok {
			// A codeless reply consumes the attempt; the failing script and
			// traceback are resent unchanged.
			logging.RepairDebug("Repair reply carried no code block, attempt consumed")
			outcome.Transcript = append(outcome.Transcript, Attempt{Script: current, Result: outcome.Result, Response: reply})
			continue
		}

		current = fixed
		result, err := a.exec.RunScript(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("execution failed: %w", err)
		}

		outcome.FinalScript = current
		outcome.Result = result
		outcome.Repaired = current != script
		outcome.Transcript = append(outcome.Transcript, Attempt{Script: current, Result: result, Response: reply})

		if !result.Failed() {
			logging.Repair("Script repaired after %d attempt(s)", attempt)
			return outcome, nil
		}
	}

	logging.Repair("Repair ceiling (%d) reached without a clean run", ceiling)
	return outcome, fmt.Errorf("%w after %d attempts: %s", ErrCannotFix, ceiling, lastTracebackLine(outcome.Result))
}

// ExecuteBare runs the script exactly once with no repair round.
func (a *Agent) ExecuteBare(ctx context.Context, script string) (*Outcome, error) {
	logging.Repair("Bare execution (no repair loop)")
	result, err := a.exec.RunScript(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}
	return &Outcome{
		FinalScript: script,
		Result:      result,
		Transcript:  []Attempt{{Script: script, Result: result}},
	}, nil
}

func (a *Agent) repairPrompt(script string, result *sandbox.Result) string {
	var sb strings.Builder
	sb.WriteString("The following Python script fails when executed.\n\n")
	sb.WriteString("```python\n")
	sb.WriteString(script)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Error output:\n```\n")
	sb.WriteString(failureText(result))
	sb.WriteString("\n```\n\n")
	sb.WriteString("Fix the error with the smallest possible change and reply with the ")
	sb.WriteString("complete corrected script in a single markdown code fence. ")
	sb.WriteString("If it cannot be fixed, reply with exactly: " + CannotFixSentinel)
	return sb.String()
}

func failureText(result *sandbox.Result) string {
	if result == nil {
		return "(no execution output)"
	}
	if result.Killed {
		return "execution killed: " + result.KillReason
	}
	if result.Stderr != "" {
		return strings.TrimSpace(result.Stderr)
	}
	if result.Error != "" {
		return result.Error
	}
	return strings.TrimSpace(result.Combined)
}

func lastTracebackLine(result *sandbox.Result) string {
	text := failureText(result)
	lines := strings.Split(strings.TrimSpace(text), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
