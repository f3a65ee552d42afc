package provider

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CLIProvider shells out to a local model binary, passing the rendered
// conversation as the final argument.
type CLIProvider struct {
	binaryPath string
	args       []string
	timeout    time.Duration
}

func NewCLIProvider(binaryPath string, args []string) (*CLIProvider, error) {
	if binaryPath == "" {
		return nil, fmt.Errorf("binary path is required for CLI provider")
	}
	return &CLIProvider{
		binaryPath: binaryPath,
		args:       append([]string(nil), args...),
		timeout:    2 * time.Minute,
	}, nil
}

func (p *CLIProvider) Name() string {
	return "cli-" + p.binaryPath
}

func (p *CLIProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	prompt := strings.Join(parts, "\n\n")

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	fullArgs := append(append([]string(nil), p.args...), prompt)
	cmd := exec.CommandContext(execCtx, p.binaryPath, fullArgs...)

	output, err := cmd.Output()
	result := strings.TrimSpace(string(output))

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("cli model timed out: %w", execCtx.Err())
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("cli model failed: %w", err)
	}

	return &Response{
		Content: result,
		Usage: Usage{
			CompletionTokens: len(strings.Fields(result)),
			TotalTokens:      len(strings.Fields(result)),
		},
	}, nil
}

func (p *CLIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings not supported by CLI provider")
}
