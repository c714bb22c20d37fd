package exemplar

import (
	"strings"
	"testing"
)

func TestDefaultCorpus(t *testing.T) {
	c := Default()
	if len(c) != 6 {
		t.Fatalf("corpus has %d entries, want 6", len(c))
	}
	for i, e := range c {
		if e.Explanation == "" || e.Script == "" {
			t.Errorf("entry %d has empty explanation or script", i)
		}
		if !strings.Contains(e.Script, "cq") {
			t.Errorf("entry %d does not look like a cadquery script", i)
		}
	}
}

func TestRenderFencesEveryScript(t *testing.T) {
	c := Default()
	out := c.Render()
	if got := strings.Count(out, "```python"); got != len(c) {
		t.Errorf("rendered corpus has %d fences, want %d", got, len(c))
	}
	if !strings.Contains(out, c[0].Explanation) {
		t.Error("explanations missing from rendered corpus")
	}
}
