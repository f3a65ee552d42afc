// Package scenario loads and validates simulation scripts: who takes part,
// how the clock is configured, and the ordered steps to run.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/persona/internal/action"
)

// Broadcast is the observe target that addresses every agent.
const Broadcast = "*"

// Spec types accepted in act steps.
const (
	SpecChoice   = "choice"
	SpecFreeText = "free_text"
)

// Scenario is a simulation script.
type Scenario struct {
	Name      string     `json:"name" yaml:"name"`
	Start     time.Time  `json:"start" yaml:"start"`
	StepSizes []Duration `json:"step_sizes" yaml:"step_sizes"`
	Agents    []Agent    `json:"agents" yaml:"agents"`
	Steps     []Step     `json:"steps" yaml:"steps"`
}

// Agent declares one participant.
type Agent struct {
	Name   string         `json:"name" yaml:"name"`
	Kind   string         `json:"kind,omitempty" yaml:"kind,omitempty"`
	Extras map[string]any `json:"extras,omitempty" yaml:"extras,omitempty"`
}

// Step is exactly one of Advance, Observe or Act.
type Step struct {
	Advance *int         `json:"advance,omitempty" yaml:"advance,omitempty"`
	Observe *Observation `json:"observe,omitempty" yaml:"observe,omitempty"`
	Act     *Act         `json:"act,omitempty" yaml:"act,omitempty"`
}

// Observation delivers text to one agent or, with Broadcast, to all.
type Observation struct {
	Agent string `json:"agent" yaml:"agent"`
	Text  string `json:"text" yaml:"text"`
}

// Act asks one agent to act. Broadcast makes every other agent observe the
// answer; Remember makes the actor observe it too.
type Act struct {
	Agent     string  `json:"agent" yaml:"agent"`
	Spec      SpecDef `json:"spec" yaml:"spec"`
	Broadcast bool    `json:"broadcast,omitempty" yaml:"broadcast,omitempty"`
	Remember  bool    `json:"remember,omitempty" yaml:"remember,omitempty"`
}

// SpecDef is the serialized form of an action.Spec.
type SpecDef struct {
	Type    string   `json:"type" yaml:"type"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
	Tag     string   `json:"tag,omitempty" yaml:"tag,omitempty"`
}

// Build converts the definition into an action.Spec. An empty type with
// options means choice; without options, free text. An empty free-text
// prompt uses action.DefaultSpeech.
func (d SpecDef) Build() (action.Spec, error) {
	typ := d.Type
	if typ == "" {
		typ = SpecFreeText
		if len(d.Options) > 0 {
			typ = SpecChoice
		}
	}

	switch typ {
	case SpecChoice:
		return action.NewChoice(d.Prompt, d.Options, d.Tag)
	case SpecFreeText:
		if d.Prompt == "" {
			if d.Tag == "" {
				return action.DefaultSpeech, nil
			}
			return action.NewFreeText(action.DefaultSpeech.Prompt(), d.Tag), nil
		}
		return action.NewFreeText(d.Prompt, d.Tag), nil
	default:
		return action.Spec{}, fmt.Errorf("%w: unknown spec type %q", action.ErrInvalidSpec, d.Type)
	}
}

// Kind returns which of the three step forms s uses, or "" if it is not
// exactly one.
func (s Step) Kind() string {
	var kinds []string
	if s.Advance != nil {
		kinds = append(kinds, "advance")
	}
	if s.Observe != nil {
		kinds = append(kinds, "observe")
	}
	if s.Act != nil {
		kinds = append(kinds, "act")
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Durations returns the step sizes as time.Duration values.
func (s *Scenario) Durations() []time.Duration {
	out := make([]time.Duration, len(s.StepSizes))
	for i, d := range s.StepSizes {
		out[i] = time.Duration(d)
	}
	return out
}

// Load reads a scenario from a file (JSON or YAML). A missing name defaults
// to the file's base name.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	s, err := Parse(data, ext)
	if err != nil {
		return nil, err
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// Parse decodes a scenario; ext selects the format (".json", ".yaml", ".yml").
func Parse(data []byte, ext string) (*Scenario, error) {
	var s Scenario

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON scenario: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML scenario: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported scenario format: %s (use .json or .yaml)", ext)
	}

	return &s, nil
}

// Discover expands glob patterns (doublestar syntax) into scenario files,
// sorted and de-duplicated. A pattern that names an existing file is used as
// is.
func Discover(patterns ...string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		for _, m := range matches {
			switch strings.ToLower(filepath.Ext(m)) {
			case ".json", ".yaml", ".yml":
			default:
				continue
			}
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}

	sort.Strings(out)
	return out, nil
}
