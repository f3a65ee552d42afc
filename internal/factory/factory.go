// Package factory builds entities from a name plus free-form extras, keyed by
// kind.
package factory

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/felixgeelhaar/persona/internal/entity"
)

// ErrInvalidConfig is returned for configurations a factory cannot build.
var ErrInvalidConfig = errors.New("invalid entity config")

// Kind names of the built-in builders.
const (
	KindMinimal      = "minimal"
	KindBasic        = "basic"
	KindConfigurable = "configurable"
)

// Config describes one entity.
type Config struct {
	Name   string
	Extras map[string]any
}

// Builder turns a config into entity options. Options it returns are applied
// before the caller's, so callers can override them.
type Builder func(cfg Config) ([]entity.Option, error)

var (
	mu       sync.RWMutex
	builders = map[string]Builder{
		KindMinimal:      buildMinimal,
		KindBasic:        buildBasic,
		KindConfigurable: buildConfigurable,
	}
)

// Register adds or replaces the builder for kind.
func Register(kind string, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	builders[kind] = b
}

// Kinds lists registered kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BuildAgent builds a basic entity.
func BuildAgent(cfg Config, model entity.LanguageModel, mem entity.Memory, clock entity.Clock, opts ...entity.Option) (*entity.Entity, error) {
	return Build(KindBasic, cfg, model, mem, clock, opts...)
}

// Build builds an entity of the given kind. An empty kind means basic.
func Build(kind string, cfg Config, model entity.LanguageModel, mem entity.Memory, clock entity.Clock, opts ...entity.Option) (*entity.Entity, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if model == nil || mem == nil || clock == nil {
		return nil, fmt.Errorf("%w: %s needs a model, a memory and a clock", ErrInvalidConfig, cfg.Name)
	}
	if kind == "" {
		kind = KindBasic
	}

	mu.RLock()
	b, ok := builders[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q (have %s)", ErrInvalidConfig, kind, strings.Join(Kinds(), ", "))
	}

	base, err := b(cfg)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", cfg.Name, err)
	}
	return entity.New(cfg.Name, model, mem, clock, append(base, opts...)...), nil
}

func buildMinimal(cfg Config) ([]entity.Option, error) {
	return []entity.Option{entity.WithWindows(10, 0)}, nil
}

func buildBasic(cfg Config) ([]entity.Option, error) {
	main, err := boolExtra(cfg, "main_character")
	if err != nil {
		return nil, err
	}
	if main {
		return []entity.Option{entity.WithWindows(20, 10)}, nil
	}
	return []entity.Option{entity.WithWindows(10, 5)}, nil
}

func buildConfigurable(cfg Config) ([]entity.Option, error) {
	recent, err := intExtra(cfg, "recent_window", 10)
	if err != nil {
		return nil, err
	}
	similar, err := intExtra(cfg, "similar_window", 5)
	if err != nil {
		return nil, err
	}
	return []entity.Option{entity.WithWindows(recent, similar)}, nil
}

func boolExtra(cfg Config, key string) (bool, error) {
	v, ok := cfg.Extras[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a bool, got %T", ErrInvalidConfig, key, v)
	}
	return b, nil
}

// intExtra reads a non-negative integer. Whole float64 values are accepted
// because JSON decodes numbers that way.
func intExtra(cfg Config, key string, def int) (int, error) {
	v, ok := cfg.Extras[key]
	if !ok || v == nil {
		return def, nil
	}
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%w: %s must be a whole number, got %v", ErrInvalidConfig, key, x)
		}
		n = int(x)
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidConfig, key, v)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, key)
	}
	return n, nil
}
