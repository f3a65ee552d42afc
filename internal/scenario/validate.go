package scenario

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/persona/internal/factory"
)

// ValidationResult represents the outcome of a linting pass.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks a scenario for completeness and internal consistency.
func Validate(s *Scenario) ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}

	if s.Start.IsZero() {
		res.warnf("start is not set; the clock will begin at the zero time")
	}

	if len(s.StepSizes) == 0 {
		res.errorf("at least one step size is required")
	}
	for i, d := range s.StepSizes {
		if d <= 0 {
			res.errorf("step_sizes[%d] must be positive, got %s", i, d)
		}
	}

	kinds := make(map[string]bool)
	for _, k := range factory.Kinds() {
		kinds[k] = true
	}

	agents := make(map[string]bool)
	if len(s.Agents) == 0 {
		res.errorf("at least one agent is required")
	}
	for i, a := range s.Agents {
		name := strings.TrimSpace(a.Name)
		switch {
		case name == "":
			res.errorf("agents[%d] has no name", i)
			continue
		case name == Broadcast:
			res.errorf("agents[%d] may not be named %q", i, Broadcast)
			continue
		case agents[name]:
			res.errorf("agent %q is declared twice", name)
		}
		agents[name] = true
		if a.Kind != "" && !kinds[a.Kind] {
			res.errorf("agent %q has unknown kind %q", name, a.Kind)
		}
	}

	if len(s.Steps) == 0 {
		res.warnf("scenario has no steps")
	}

	acted := make(map[string]bool)
	for i, st := range s.Steps {
		switch st.Kind() {
		case "advance":
			if *st.Advance < 0 || *st.Advance >= len(s.StepSizes) {
				res.errorf("steps[%d]: advance index %d out of range (have %d step sizes)", i, *st.Advance, len(s.StepSizes))
			}
		case "observe":
			o := st.Observe
			if o.Agent != Broadcast && !agents[o.Agent] {
				res.errorf("steps[%d]: observe targets unknown agent %q", i, o.Agent)
			}
			if strings.TrimSpace(o.Text) == "" {
				res.errorf("steps[%d]: observe text is empty", i)
			}
		case "act":
			a := st.Act
			if !agents[a.Agent] {
				res.errorf("steps[%d]: act targets unknown agent %q", i, a.Agent)
			}
			acted[a.Agent] = true
			if _, err := a.Spec.Build(); err != nil {
				res.errorf("steps[%d]: %v", i, err)
			}
			if a.Spec.Type == SpecFreeText && len(a.Spec.Options) > 0 {
				res.warnf("steps[%d]: options are ignored for free_text specs", i)
			}
		default:
			res.errorf("steps[%d] must have exactly one of advance, observe or act", i)
		}
	}

	for _, a := range s.Agents {
		if a.Name != "" && agents[a.Name] && !acted[a.Name] && len(s.Steps) > 0 {
			res.warnf("agent %q never acts", a.Name)
		}
	}

	return res
}
