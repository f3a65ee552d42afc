package guard

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy defines the limits and scopes for a simulation run.
type Policy struct {
	MaxSteps             int      `json:"max_steps" yaml:"max_steps"`
	MaxActs              int      `json:"max_acts" yaml:"max_acts"`
	MaxAgents            int      `json:"max_agents" yaml:"max_agents"`
	AllowedScenarioGlobs []string `json:"allowed_scenario_globs" yaml:"allowed_scenario_globs"`
}

// DefaultPolicy provides safe defaults.
var DefaultPolicy = Policy{
	MaxSteps:             500,
	MaxActs:              200,
	MaxAgents:            16,
	AllowedScenarioGlobs: []string{"**/*.yaml", "**/*.yml", "**/*.json"},
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
	Fatal   bool
}

func (v *Violation) Error() string {
	return fmt.Sprintf("guard violation (%s): %s", v.Rule, v.Message)
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CheckBudget verifies that the run is within its step and act limits. A
// non-positive limit disables that check.
func (g *Guard) CheckBudget(steps, acts int) *Violation {
	if g.policy.MaxSteps > 0 && steps > g.policy.MaxSteps {
		return &Violation{Rule: "max_steps", Message: fmt.Sprintf("step limit %d exceeded", g.policy.MaxSteps), Fatal: true}
	}
	if g.policy.MaxActs > 0 && acts > g.policy.MaxActs {
		return &Violation{Rule: "max_acts", Message: fmt.Sprintf("act limit %d exceeded", g.policy.MaxActs), Fatal: true}
	}
	return nil
}

// CheckAgents verifies the number of agents in a scenario.
func (g *Guard) CheckAgents(n int) *Violation {
	if g.policy.MaxAgents > 0 && n > g.policy.MaxAgents {
		return &Violation{Rule: "max_agents", Message: fmt.Sprintf("%d agents exceed the limit of %d", n, g.policy.MaxAgents), Fatal: true}
	}
	return nil
}

// CheckScenario verifies that a scenario path is within the allowed globs.
// The path as given, its cleaned slash form and, for absolute paths, the
// form without the leading slash are tried.
func (g *Guard) CheckScenario(path string) *Violation {
	clean := filepath.ToSlash(filepath.Clean(path))
	candidates := []string{path, clean, strings.TrimLeft(clean, "/")}

	for _, pattern := range g.policy.AllowedScenarioGlobs {
		for _, c := range candidates {
			match, err := doublestar.Match(pattern, c)
			if err == nil && match {
				return nil
			}
		}
	}

	return &Violation{Rule: "allowed_scenario_globs", Message: "scenario not allowed: " + path, Fatal: true}
}
