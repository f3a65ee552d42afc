// Package ui is the progress surface a simulation reports to.
package ui

import (
	"fmt"
	"io"
	"sync"
)

type UI interface {
	UpdateStatus(status string)
	UpdateStep(step, total int)
	Log(msg string)
}

type SilentUI struct{}

func (s SilentUI) UpdateStatus(status string) {}
func (s SilentUI) UpdateStep(step, total int) {}
func (s SilentUI) Log(msg string)             {}

// LineUI prints log lines and status changes, one per line. Step updates are
// not printed.
type LineUI struct {
	mu  sync.Mutex
	out io.Writer
}

func NewLineUI(out io.Writer) *LineUI {
	return &LineUI{out: out}
}

func (l *LineUI) UpdateStatus(status string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "== %s\n", status)
}

func (l *LineUI) UpdateStep(step, total int) {}

func (l *LineUI) Log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, msg)
}
