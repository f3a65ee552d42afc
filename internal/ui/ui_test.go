package ui

import (
	"bytes"
	"testing"
)

func TestSilentUI_ImplementsInterface(t *testing.T) {
	var _ UI = SilentUI{}
	var _ UI = &SilentUI{}
	var _ UI = &LineUI{}
}

// MockUI implements UI interface for testing
type MockUI struct {
	StatusUpdates []string
	StepUpdates   [][2]int
	LogMessages   []string
}

func (m *MockUI) UpdateStatus(status string) {
	m.StatusUpdates = append(m.StatusUpdates, status)
}

func (m *MockUI) UpdateStep(step, total int) {
	m.StepUpdates = append(m.StepUpdates, [2]int{step, total})
}

func (m *MockUI) Log(msg string) {
	m.LogMessages = append(m.LogMessages, msg)
}

func TestUI_InterfaceMethods(t *testing.T) {
	uis := []UI{
		SilentUI{},
		&MockUI{},
		NewLineUI(&bytes.Buffer{}),
	}

	for _, ui := range uis {
		ui.UpdateStatus("test")
		ui.UpdateStep(1, 3)
		ui.Log("test")
	}
}

func TestMockUI_UpdateStep(t *testing.T) {
	ui := &MockUI{}

	ui.UpdateStep(1, 3)
	ui.UpdateStep(2, 3)

	if len(ui.StepUpdates) != 2 {
		t.Fatalf("expected 2 step updates, got %d", len(ui.StepUpdates))
	}
	if ui.StepUpdates[1] != [2]int{2, 3} {
		t.Errorf("expected step 2/3, got %v", ui.StepUpdates[1])
	}
}

func TestLineUI(t *testing.T) {
	var buf bytes.Buffer
	l := NewLineUI(&buf)

	l.UpdateStatus("running")
	l.UpdateStep(1, 2)
	l.Log("Alice: hello")

	want := "== running\nAlice: hello\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}
