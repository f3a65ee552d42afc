package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/persona/internal/embedder"
	"github.com/felixgeelhaar/persona/internal/guard"
	"github.com/felixgeelhaar/persona/internal/model"
	"github.com/felixgeelhaar/persona/internal/observe"
	"github.com/felixgeelhaar/persona/internal/store"
)

const scenarioYAML = `name: gate
start: 2024-03-01T08:00:00Z
step_sizes: [10m]
agents:
  - name: Bob
steps:
  - observe: {agent: Bob, text: A stranger knocks.}
  - advance: 0
  - act:
      agent: Bob
      spec: {prompt: "What does {name} do?", options: [open, ignore]}
      remember: true
`

func writeScenario(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "gate.yaml")
	if err := os.WriteFile(path, []byte(scenarioYAML), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the root command with args against a fresh home directory.
func execute(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PERSONA_HOME", home)
	t.Setenv("PERSONA_PASSPHRASE", "test")

	verbose, offline, ciMode, interactive, reveal = false, false, false, false, false
	providerName, modelName, pluginPath = "", "", ""

	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	RootCmd.SetErr(&bytes.Buffer{})
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return buf.String(), err
}

func TestRunner(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := store.NewSQLiteStore(filepath.Join(tmpDir, "persona.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	r := NewRunner(observe.Discard(), s, model.Static("I open the door."), embedder.Hash(16), nil, nil)
	res, err := r.Run(context.Background(), writeScenario(t, tmpDir))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Actions) != 1 || res.Actions[0].Answer != "open" {
		t.Errorf("unexpected result %+v", res)
	}

	runs, _ := s.ListRuns(0)
	if len(runs) != 1 || runs[0].Metadata["path"] == "" {
		t.Fatalf("expected one recorded run with its path, got %+v", runs)
	}
	mems, _ := s.ListMemories(runs[0].ID, "Bob")
	if len(mems) != 2 || mems[1].Text != "Bob: open" {
		t.Errorf("unexpected memory snapshot %+v", mems)
	}
}

func TestRunner_RejectsScenarioOutsideGlobs(t *testing.T) {
	tmpDir := t.TempDir()
	s, _ := store.NewSQLiteStore(filepath.Join(tmpDir, "persona.db"))
	defer s.Close()

	g := guard.New(guard.Policy{AllowedScenarioGlobs: []string{"scenarios/**/*.yaml"}})
	r := NewRunner(nil, s, model.Offline{}, embedder.Hash(8), g, nil)
	if _, err := r.Run(context.Background(), writeScenario(t, tmpDir)); err == nil {
		t.Error("expected guard violation")
	}
}

func TestCLI_Commands(t *testing.T) {
	want := map[string]bool{"run": false, "validate": false, "list": false, "log": false, "config": false}
	for _, cmd := range RootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
		if cmd.Name() == "config" && len(cmd.Commands()) < 2 {
			t.Errorf("Expected set and get subcommands for config, got %d", len(cmd.Commands()))
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %s not registered", name)
		}
	}
}

func TestCLI_RunListLog(t *testing.T) {
	home := t.TempDir()
	path := writeScenario(t, t.TempDir())

	out, err := execute(t, home, "run", "--offline", path)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "Bob: open") || !strings.Contains(out, "1 acts") {
		t.Errorf("unexpected run output:\n%s", out)
	}

	out, err = execute(t, home, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "gate") || !strings.Contains(out, "completed") {
		t.Errorf("unexpected list output:\n%s", out)
	}

	s, err := store.NewSQLiteStore(filepath.Join(home, "persona.db"))
	if err != nil {
		t.Fatal(err)
	}
	runs, _ := s.ListRuns(1)
	s.Close()
	if len(runs) != 1 {
		t.Fatalf("expected a stored run")
	}

	out, err = execute(t, home, "log", runs[0].ID)
	if err != nil {
		t.Fatalf("log failed: %v", err)
	}
	for _, want := range []string{"acted", "Bob: open", "run_complete", "2024-03-01 08:10:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log to contain %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, home, "log", "missing"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestCLI_Validate(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, t.TempDir(), "validate", writeScenario(t, dir))
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "gate: 1 agents, 3 steps, ok") {
		t.Errorf("unexpected output %q", out)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("step_sizes: [0s]\nagents: []\n"), 0600)
	out, err = execute(t, t.TempDir(), "validate", bad)
	if err == nil {
		t.Error("expected invalid scenario to fail")
	}
	if !strings.Contains(out, "error:") {
		t.Errorf("expected errors to be listed, got %q", out)
	}
}

func TestCLI_Config(t *testing.T) {
	home := t.TempDir()

	if _, err := execute(t, home, "config", "set", "openai.api_key", "sk-1234567890abcdef"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}

	out, err := execute(t, home, "config", "get", "openai.api_key")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	if strings.TrimSpace(out) != "sk-1...cdef" {
		t.Errorf("expected masked key, got %q", out)
	}

	out, _ = execute(t, home, "config", "get", "openai.api_key", "--reveal")
	if strings.TrimSpace(out) != "sk-1234567890abcdef" {
		t.Errorf("expected revealed key, got %q", out)
	}

	out, _ = execute(t, home, "config", "get", "missing")
	if strings.TrimSpace(out) != "(not set)" {
		t.Errorf("expected (not set), got %q", out)
	}
}
