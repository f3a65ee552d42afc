package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/persona/internal/action"
)

const villageYAML = `
start: 2024-03-01T08:00:00Z
step_sizes: [1h, 10m]
agents:
  - name: Alice
    kind: configurable
    extras:
      recent_window: 3
  - name: Bob
steps:
  - observe: {agent: "*", text: "A bell rings."}
  - advance: 1
  - act:
      agent: Bob
      spec: {type: choice, prompt: "What does {name} do?", options: [run, hide], tag: decision}
      broadcast: true
  - act:
      agent: Alice
      spec: {prompt: "What would {name} say?"}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	yamlPath := writeFile(t, tmpDir, "village.yaml", villageYAML)
	jsonPath := writeFile(t, tmpDir, "duel.json", `{
		"name": "duel",
		"start": "2024-03-01T08:00:00Z",
		"step_sizes": ["30m", 60],
		"agents": [{"name": "A", "kind": "configurable", "extras": {"recent_window": 2}}],
		"steps": [{"advance": 0}, {"act": {"agent": "A", "spec": {"type": "free_text", "prompt": "?"}}}]
	}`)

	t.Run("YAML", func(t *testing.T) {
		s, err := Load(yamlPath)
		if err != nil {
			t.Fatalf("Failed to load YAML: %v", err)
		}
		if s.Name != "village" {
			t.Errorf("Expected name from file, got %q", s.Name)
		}
		if !s.Start.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)) {
			t.Errorf("Unexpected start %s", s.Start)
		}
		d := s.Durations()
		if len(d) != 2 || d[0] != time.Hour || d[1] != 10*time.Minute {
			t.Errorf("Unexpected step sizes %v", d)
		}
		if len(s.Agents) != 2 || s.Agents[0].Extras["recent_window"] != 3 {
			t.Errorf("Unexpected agents %+v", s.Agents)
		}
		if len(s.Steps) != 4 {
			t.Fatalf("Expected 4 steps, got %d", len(s.Steps))
		}
		kinds := []string{"observe", "advance", "act", "act"}
		for i, k := range kinds {
			if s.Steps[i].Kind() != k {
				t.Errorf("step %d: expected %s, got %q", i, k, s.Steps[i].Kind())
			}
		}
		if !s.Steps[2].Act.Broadcast {
			t.Error("Expected broadcast on step 2")
		}
	})

	t.Run("JSON", func(t *testing.T) {
		s, err := Load(jsonPath)
		if err != nil {
			t.Fatalf("Failed to load JSON: %v", err)
		}
		if s.Name != "duel" {
			t.Errorf("Expected 'duel', got %q", s.Name)
		}
		d := s.Durations()
		if d[0] != 30*time.Minute || d[1] != time.Minute {
			t.Errorf("Unexpected step sizes %v", d)
		}
		if s.Agents[0].Extras["recent_window"] != 2.0 {
			t.Errorf("Expected JSON number, got %#v", s.Agents[0].Extras["recent_window"])
		}
		if res := Validate(s); !res.Valid {
			t.Errorf("Expected valid scenario, got %v", res.Errors)
		}
	})

	t.Run("Invalid Extension", func(t *testing.T) {
		path := writeFile(t, tmpDir, "notes.txt", "hi")
		if _, err := Load(path); err == nil {
			t.Error("Expected error for .txt extension")
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := Load(filepath.Join(tmpDir, "missing.yaml")); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("Bad Duration", func(t *testing.T) {
		path := writeFile(t, tmpDir, "bad.yaml", "step_sizes: [soon]\n")
		if _, err := Load(path); err == nil {
			t.Error("Expected error for bad duration")
		}
	})
}

func TestSpecDef_Build(t *testing.T) {
	s, err := SpecDef{Prompt: "p", Options: []string{"a", "b"}}.Build()
	if err != nil || !s.IsChoice() {
		t.Errorf("Expected inferred choice, got %s, %v", s, err)
	}

	s, err = SpecDef{}.Build()
	if err != nil || s.IsChoice() || s.Tag() != "speech" {
		t.Errorf("Expected default speech, got %s, %v", s, err)
	}

	s, err = SpecDef{Type: SpecFreeText, Tag: "thought"}.Build()
	if err != nil || s.Tag() != "thought" || s.PromptFor("A") != "What would A say next?" {
		t.Errorf("Expected default prompt with custom tag, got %s, %v", s, err)
	}

	if _, err := (SpecDef{Type: SpecChoice, Prompt: "p"}).Build(); !errors.Is(err, action.ErrInvalidSpec) {
		t.Errorf("Expected ErrInvalidSpec for empty choice, got %v", err)
	}
	if _, err := (SpecDef{Type: "poem"}).Build(); !errors.Is(err, action.ErrInvalidSpec) {
		t.Errorf("Expected ErrInvalidSpec for unknown type, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		s, err := Parse([]byte(villageYAML), ".yaml")
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		res := Validate(s)
		if !res.Valid {
			t.Errorf("Expected valid, got errors: %v", res.Errors)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		idx := 5
		s := &Scenario{
			StepSizes: []Duration{Duration(time.Hour), 0},
			Agents: []Agent{
				{Name: "A", Kind: "wizard"},
				{Name: "A"},
				{Name: ""},
			},
			Steps: []Step{
				{Advance: &idx},
				{Observe: &Observation{Agent: "Z", Text: " "}},
				{Act: &Act{Agent: "A", Spec: SpecDef{Type: SpecChoice, Options: []string{"x", "x"}}}},
				{},
			},
		}

		res := Validate(s)
		if res.Valid {
			t.Fatal("Expected invalid result")
		}

		wantErrors := []string{
			"step_sizes[1]",
			"unknown kind",
			"declared twice",
			"agents[2] has no name",
			"advance index 5",
			"unknown agent \"Z\"",
			"observe text is empty",
			"duplicate option",
			"exactly one of",
		}
		joined := strings.Join(res.Errors, "\n")
		for _, want := range wantErrors {
			if !strings.Contains(joined, want) {
				t.Errorf("Expected an error containing %q, got:\n%s", want, joined)
			}
		}
		if len(res.Warnings) == 0 {
			t.Error("Expected a warning for the zero start time")
		}
	})

	t.Run("Empty", func(t *testing.T) {
		res := Validate(&Scenario{})
		if res.Valid {
			t.Error("Expected empty scenario to be invalid")
		}
	})
}

func TestDiscover(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "a.yaml", "")
	writeFile(t, tmpDir, "nested/deep/b.yml", "")
	writeFile(t, tmpDir, "c.json", "")
	writeFile(t, tmpDir, "readme.md", "")

	got, err := Discover(filepath.Join(tmpDir, "**", "*"), filepath.Join(tmpDir, "a.yaml"))
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 scenario files, got %d: %v", len(got), got)
	}
	for _, p := range got {
		if strings.HasSuffix(p, ".md") {
			t.Errorf("Unexpected non-scenario file %s", p)
		}
	}

	if _, err := Discover("[unclosed"); err == nil {
		t.Error("Expected error for malformed pattern")
	}
}
