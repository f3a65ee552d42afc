// Package action defines what an entity is asked to do and how a raw model
// answer is turned into a valid decision.
package action

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnresolvableChoice is returned when no option can be recovered from
	// a choice answer.
	ErrUnresolvableChoice = errors.New("unresolvable choice")

	// ErrEmptyAnswer is returned when a free-text answer has no content.
	ErrEmptyAnswer = errors.New("empty answer")

	// ErrInvalidSpec is returned when a choice spec is constructed with no
	// options or duplicate options.
	ErrInvalidSpec = errors.New("invalid action spec")
)

type kind int

const (
	kindFreeText kind = iota
	kindChoice
)

// Spec is the contract for a single Act call. It is either a choice over a
// fixed set of options or a free-text request; use NewChoice or NewFreeText.
type Spec struct {
	kind    kind
	prompt  string
	options []string
	tag     string
}

// DefaultSpeech asks an entity for its next utterance.
var DefaultSpeech = NewFreeText("What would {name} say next?", "speech")

// NewChoice builds a choice spec. Options must be non-empty and unique; they
// are copied.
func NewChoice(prompt string, options []string, tag string) (Spec, error) {
	if len(options) == 0 {
		return Spec{}, fmt.Errorf("%w: choice needs at least one option", ErrInvalidSpec)
	}
	seen := make(map[string]bool, len(options))
	for _, o := range options {
		if seen[o] {
			return Spec{}, fmt.Errorf("%w: duplicate option %q", ErrInvalidSpec, o)
		}
		seen[o] = true
	}
	return Spec{
		kind:    kindChoice,
		prompt:  prompt,
		options: append([]string(nil), options...),
		tag:     tag,
	}, nil
}

// NewFreeText builds a free-text spec.
func NewFreeText(prompt, tag string) Spec {
	return Spec{kind: kindFreeText, prompt: prompt, tag: tag}
}

// IsChoice reports whether the spec is a choice.
func (s Spec) IsChoice() bool { return s.kind == kindChoice }

// Prompt returns the raw prompt template.
func (s Spec) Prompt() string { return s.prompt }

// Tag returns the caller's label for this kind of action.
func (s Spec) Tag() string { return s.tag }

// Options returns a copy of the choice options; nil for free text.
func (s Spec) Options() []string {
	if s.kind != kindChoice {
		return nil
	}
	return append([]string(nil), s.options...)
}

// PromptFor returns the prompt with every {name} replaced by name.
func (s Spec) PromptFor(name string) string {
	return strings.ReplaceAll(s.prompt, "{name}", name)
}

// String describes the spec for logs.
func (s Spec) String() string {
	if s.kind == kindChoice {
		return fmt.Sprintf("choice(%s)[%s]", s.tag, strings.Join(s.options, "|"))
	}
	return fmt.Sprintf("free_text(%s)", s.tag)
}

// IsResolutionError reports whether err means the model answered but the
// answer did not satisfy the spec.
func IsResolutionError(err error) bool {
	return errors.Is(err, ErrUnresolvableChoice) || errors.Is(err, ErrEmptyAnswer)
}
