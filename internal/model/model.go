// Package model adapts text generators to entity.LanguageModel.
package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/felixgeelhaar/persona/internal/action"
	"github.com/felixgeelhaar/persona/internal/entity"
	"github.com/felixgeelhaar/persona/internal/provider"
)

// ProviderModel renders the entity's context into a chat and sends it to a
// provider.
type ProviderModel struct {
	p provider.Provider
}

// FromProvider adapts p.
func FromProvider(p provider.Provider) *ProviderModel {
	return &ProviderModel{p: p}
}

// Generate implements entity.LanguageModel.
func (m *ProviderModel) Generate(ctx context.Context, name string, lines []string, spec action.Spec) (string, error) {
	resp, err := m.p.Chat(ctx, Messages(name, lines, spec))
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Messages renders the chat sent for one Act call.
func Messages(name string, lines []string, spec action.Spec) []provider.Message {
	system := fmt.Sprintf("You are %s, a character in a simulation. Stay in character and answer only as %s would.", name, name)

	var sb strings.Builder
	if len(lines) > 0 {
		sb.WriteString("Memories of ")
		sb.WriteString(name)
		sb.WriteString(":\n")
		for _, l := range lines {
			sb.WriteString(l)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(spec.PromptFor(name))
	if spec.IsChoice() {
		sb.WriteString("\nAnswer with exactly one of the following options and nothing else:\n")
		for _, o := range spec.Options() {
			sb.WriteString("- ")
			sb.WriteString(o)
			sb.WriteString("\n")
		}
	}

	return []provider.Message{
		{Role: provider.RoleSystem, Content: system},
		{Role: provider.RoleUser, Content: sb.String()},
	}
}

// Static always answers with the same text.
type Static string

// Generate implements entity.LanguageModel.
func (s Static) Generate(ctx context.Context, name string, lines []string, spec action.Spec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(s), nil
}

// ScriptedModel returns its answers in order and then repeats the last one.
type ScriptedModel struct {
	mu      sync.Mutex
	answers []string
	next    int
}

// Scripted creates a scripted model. With no answers it always returns "".
func Scripted(answers ...string) *ScriptedModel {
	return &ScriptedModel{answers: append([]string(nil), answers...)}
}

// Generate implements entity.LanguageModel.
func (s *ScriptedModel) Generate(ctx context.Context, name string, lines []string, spec action.Spec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.answers) == 0 {
		return "", nil
	}
	i := s.next
	if i >= len(s.answers) {
		i = len(s.answers) - 1
	} else {
		s.next++
	}
	return s.answers[i], nil
}

// Offline needs no backend: it picks the first option of a choice and
// stays silent in free text.
type Offline struct{}

// Generate implements entity.LanguageModel.
func (Offline) Generate(ctx context.Context, name string, lines []string, spec action.Spec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if spec.IsChoice() {
		return spec.Options()[0], nil
	}
	return fmt.Sprintf("%s keeps quiet.", name), nil
}

var (
	_ entity.LanguageModel = Offline{}
	_ entity.LanguageModel = (*ProviderModel)(nil)
	_ entity.LanguageModel = Static("")
	_ entity.LanguageModel = (*ScriptedModel)(nil)
)
