package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cad3dify/internal/perception"
	"cad3dify/internal/prompt"
	"cad3dify/internal/repair"
	"cad3dify/internal/sandbox"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	src.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

// fakeOracle replays canned responses in order and records requests.
type fakeOracle struct {
	replies []string
	calls   int
}

func (f *fakeOracle) Complete(_ context.Context, _ perception.Request) (string, error) {
	if f.calls >= len(f.replies) {
		return "", fmt.Errorf("fake oracle exhausted after %d calls", f.calls)
	}
	reply := f.replies[f.calls]
	f.calls++
	return reply, nil
}

// fakeExec simulates the repair agent: per-call outcomes, writing the
// artifact on success. Scripts arrive with the output path substituted, so
// the fake recovers the path from the script text.
type fakeExec struct {
	outputPath string
	failCalls  map[int]error // call index (0-based) -> error to return
	exitCalls  map[int]bool  // call index -> non-zero exit
	calls      int
	scripts    []string
	writes     int
}

func (f *fakeExec) Execute(_ context.Context, script string) (*repair.Outcome, error) {
	idx := f.calls
	f.calls++
	f.scripts = append(f.scripts, script)

	if err, ok := f.failCalls[idx]; ok {
		return nil, err
	}
	if f.exitCalls[idx] {
		return &repair.Outcome{
			FinalScript: script,
			Result:      &sandbox.Result{Success: true, ExitCode: 1, Stderr: "boom"},
		}, nil
	}

	f.writes++
	if err := os.WriteFile(f.outputPath, []byte(fmt.Sprintf("STEP v%d", f.writes)), 0644); err != nil {
		return nil, err
	}
	return &repair.Outcome{
		FinalScript: script,
		Result:      &sandbox.Result{Success: true, ExitCode: 0},
	}, nil
}

// fakeRenderer writes a valid PNG unless told to fail.
type fakeRenderer struct {
	fail  bool
	t     *testing.T
	calls int
}

func (f *fakeRenderer) Render(_ context.Context, modelPath, imagePath string) error {
	f.calls++
	if f.fail {
		return fmt.Errorf("cannot rasterize %s", modelPath)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("no artifact to render: %w", err)
	}
	writePNG(f.t, imagePath)
	return nil
}

func scriptReply(body string) string {
	return "Here you go:\n```python\n" + body + "\nexport(result, \"{output_filename}\")\n```"
}

func newTestController(t *testing.T, oracle perception.Oracle, exec ScriptExecutor, renderer *fakeRenderer) (*Controller, Options) {
	t.Helper()
	dir := t.TempDir()
	refPath := filepath.Join(dir, "drawing.png")
	writePNG(t, refPath)

	builder := prompt.NewBuilder(perception.ProfileFor(perception.ModelGPT, 0))
	c := NewController(oracle, builder, exec, renderer, dir)
	return c, Options{
		ImagePath:   refPath,
		OutputPath:  filepath.Join(dir, "output.step"),
		Refinements: 3,
	}
}

func TestRunHappyPath(t *testing.T) {
	oracle := &fakeOracle{replies: []string{
		scriptReply("v0"), scriptReply("v1"), scriptReply("v2"), scriptReply("v3"),
	}}
	renderer := &fakeRenderer{t: t}
	var exec *fakeExec

	c, opts := newTestController(t, oracle, ScriptExecutorFunc(func(ctx context.Context, script string) (*repair.Outcome, error) {
		return exec.Execute(ctx, script)
	}), renderer)
	exec = &fakeExec{outputPath: opts.OutputPath}

	summary, err := c.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.OracleCalls, "1 generate + 3 refine")
	assert.Equal(t, 4, exec.writes, "artifact overwritten once per round")
	assert.Len(t, summary.Rounds, 3)
	for _, r := range summary.Rounds {
		assert.False(t, r.Skipped, "round %d should commit", r.Index)
	}
	assert.Contains(t, summary.Script, "v3", "final script is the last refinement")
	assert.Contains(t, summary.Script, prompt.OutputPlaceholder, "committed script keeps the placeholder")

	data, err := os.ReadFile(opts.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "STEP v4", string(data))
}

func TestRunNoCodeOnGenerationIsFatal(t *testing.T) {
	oracle := &fakeOracle{replies: []string{"I see a bracket with four holes."}}
	renderer := &fakeRenderer{t: t}
	exec := &fakeExec{}

	c, opts := newTestController(t, oracle, exec, renderer)
	_, err := c.Run(context.Background(), opts)
	assert.ErrorIs(t, err, ErrNoCode)
	assert.Equal(t, 0, exec.calls, "nothing executes without a baseline script")
}

func TestRunPlaceholderMissingOnGenerationIsFatal(t *testing.T) {
	oracle := &fakeOracle{replies: []string{"```python\nexport(result, \"hardcoded.step\")\n```"}}
	renderer := &fakeRenderer{t: t}
	exec := &fakeExec{}

	c, opts := newTestController(t, oracle, exec, renderer)
	_, err := c.Run(context.Background(), opts)
	assert.ErrorIs(t, err, ErrPlaceholderMissing)
}

func TestRunNoCodeRoundSkipped(t *testing.T) {
	// Round 2 (second refine) returns prose only; rounds 1 and 3 commit.
	oracle := &fakeOracle{replies: []string{
		scriptReply("v0"), scriptReply("v1"), "Looks close enough to me.", scriptReply("v3"),
	}}
	renderer := &fakeRenderer{t: t}
	var exec *fakeExec

	c, opts := newTestController(t, oracle, ScriptExecutorFunc(func(ctx context.Context, script string) (*repair.Outcome, error) {
		return exec.Execute(ctx, script)
	}), renderer)
	exec = &fakeExec{outputPath: opts.OutputPath}

	summary, err := c.Run(context.Background(), opts)
	require.NoError(t, err)

	want := []RoundReport{
		{Index: 0},
		{Index: 1, Skipped: true, Reason: "no code block in response"},
		{Index: 2},
	}
	if diff := cmp.Diff(want, summary.Rounds); diff != "" {
		t.Errorf("rounds mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, exec.writes, "generation + rounds 1 and 3")
	assert.Contains(t, summary.Script, "v3")
}

func TestRunExecutionFailureKeepsPriorArtifact(t *testing.T) {
	// First refine never converges; later rounds still run from the
	// pre-round artifact.
	oracle := &fakeOracle{replies: []string{
		scriptReply("v0"), scriptReply("v1"), scriptReply("v2"), scriptReply("v3"),
	}}
	renderer := &fakeRenderer{t: t}
	var exec *fakeExec

	c, opts := newTestController(t, oracle, ScriptExecutorFunc(func(ctx context.Context, script string) (*repair.Outcome, error) {
		return exec.Execute(ctx, script)
	}), renderer)
	exec = &fakeExec{
		outputPath: opts.OutputPath,
		failCalls:  map[int]error{1: fmt.Errorf("%w after 8 attempts", repair.ErrCannotFix)},
	}

	summary, err := c.Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, summary.Rounds, 3)
	assert.True(t, summary.Rounds[0].Skipped)
	assert.True(t, strings.HasPrefix(summary.Rounds[0].Reason, "execution failed"))
	assert.False(t, summary.Rounds[1].Skipped)
	assert.False(t, summary.Rounds[2].Skipped)
	assert.Equal(t, 3, renderer.calls, "every round still renders")
	assert.Contains(t, summary.Script, "v3")
}

func TestRunRenderFailureSkipsRound(t *testing.T) {
	oracle := &fakeOracle{replies: []string{scriptReply("v0")}}
	renderer := &fakeRenderer{t: t, fail: true}
	var exec *fakeExec

	c, opts := newTestController(t, oracle, ScriptExecutorFunc(func(ctx context.Context, script string) (*repair.Outcome, error) {
		return exec.Execute(ctx, script)
	}), renderer)
	exec = &fakeExec{outputPath: opts.OutputPath}

	summary, err := c.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.OracleCalls, "no refine calls when rendering fails")
	for _, r := range summary.Rounds {
		assert.True(t, r.Skipped)
		assert.Equal(t, "render failed", r.Reason)
	}
	assert.Contains(t, summary.Script, "v0", "generation script remains current")
}

func TestSubstituteOutputPath(t *testing.T) {
	script := "export(result, \"" + prompt.OutputPlaceholder + "\")"
	out, err := SubstituteOutputPath(script, "part.step")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "part.step"))
	assert.NotContains(t, out, prompt.OutputPlaceholder)

	_, err = SubstituteOutputPath("export(result, \"fixed.step\")", "part.step")
	assert.ErrorIs(t, err, ErrPlaceholderMissing)
}

func TestOrdinal(t *testing.T) {
	assert.Equal(t, "1st", ordinal(1))
	assert.Equal(t, "2nd", ordinal(2))
	assert.Equal(t, "3rd", ordinal(3))
	assert.Equal(t, "4th", ordinal(4))
	assert.Equal(t, "11th", ordinal(11))
}
