package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/persona/internal/action"
	"github.com/felixgeelhaar/persona/internal/provider"
)

type capturingProvider struct {
	provider.StubProvider
	got []provider.Message
	err error
}

func (c *capturingProvider) Chat(ctx context.Context, messages []provider.Message) (*provider.Response, error) {
	c.got = messages
	if c.err != nil {
		return nil, c.err
	}
	return &provider.Response{Content: "flee"}, nil
}

func TestFromProvider_RendersChoice(t *testing.T) {
	p := &capturingProvider{}
	spec, _ := action.NewChoice("What does {name} do?", []string{"fight", "flee"}, "decision")

	got, err := FromProvider(p).Generate(context.Background(), "Alice", []string{"[2024-01-01 00:00:00] a wolf appeared"}, spec)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "flee" {
		t.Errorf("expected 'flee', got %q", got)
	}

	if len(p.got) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(p.got))
	}
	if p.got[0].Role != provider.RoleSystem || !strings.Contains(p.got[0].Content, "Alice") {
		t.Errorf("unexpected system message %+v", p.got[0])
	}
	user := p.got[1].Content
	for _, want := range []string{"a wolf appeared", "What does Alice do?", "- fight", "- flee"} {
		if !strings.Contains(user, want) {
			t.Errorf("expected user message to contain %q, got %q", want, user)
		}
	}
}

func TestFromProvider_FreeTextHasNoOptions(t *testing.T) {
	msgs := Messages("Bob", nil, action.DefaultSpeech)
	if strings.Contains(msgs[1].Content, "options") {
		t.Errorf("free text prompt should not list options: %q", msgs[1].Content)
	}
	if strings.Contains(msgs[1].Content, "Memories") {
		t.Errorf("empty context should not render a memory section: %q", msgs[1].Content)
	}
}

func TestFromProvider_Error(t *testing.T) {
	cause := errors.New("rate limited")
	_, err := FromProvider(&capturingProvider{err: cause}).Generate(context.Background(), "A", nil, action.DefaultSpeech)
	if !errors.Is(err, cause) {
		t.Errorf("expected cause, got %v", err)
	}
}

func TestStatic(t *testing.T) {
	got, err := Static("x").Generate(context.Background(), "A", nil, action.DefaultSpeech)
	if err != nil || got != "x" {
		t.Errorf("expected 'x', got %q, %v", got, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Static("x").Generate(ctx, "A", nil, action.DefaultSpeech); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestScripted(t *testing.T) {
	m := Scripted("one", "two")
	ctx := context.Background()

	want := []string{"one", "two", "two", "two"}
	for i, w := range want {
		got, err := m.Generate(ctx, "A", nil, action.DefaultSpeech)
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if got != w {
			t.Errorf("call %d: expected %q, got %q", i, w, got)
		}
	}

	if got, _ := Scripted().Generate(ctx, "A", nil, action.DefaultSpeech); got != "" {
		t.Errorf("expected empty answer, got %q", got)
	}
}

func TestOffline(t *testing.T) {
	ctx := context.Background()
	spec, _ := action.NewChoice("What does {name} do?", []string{"wait", "run"}, "decision")

	got, err := Offline{}.Generate(ctx, "A", nil, spec)
	if err != nil || got != "wait" {
		t.Errorf("expected first option, got %q, %v", got, err)
	}

	got, _ = Offline{}.Generate(ctx, "Alice", nil, action.DefaultSpeech)
	if got != "Alice keeps quiet." {
		t.Errorf("unexpected free text %q", got)
	}
}
