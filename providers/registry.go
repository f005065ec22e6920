package providers

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Kind is the closed set of model keys the service accepts.
type Kind string

const (
	KindGemini Kind = "gemini"
	KindOpenAI Kind = "openai"
)

// Kinds lists every Kind in display order.
var Kinds = []Kind{KindGemini, KindOpenAI}

// ParseKind maps a model key to a Kind, ignoring case and surrounding spaces.
func ParseKind(key string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(key))) {
	case KindGemini:
		return KindGemini, nil
	case KindOpenAI:
		return KindOpenAI, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedModel, key)
}

// ModelInfo describes one registry entry.
type ModelInfo struct {
	Name              string `json:"name"`
	Model             string `json:"model,omitempty"`
	Configured        bool   `json:"configured"`
	BackgroundRemoval bool   `json:"background_removal"`
	Default           bool   `json:"default_background_removal"`
}

// RegistryOptions holds the providers built at startup. A nil generator means
// the vendor is known but has no credentials.
type RegistryOptions struct {
	Gemini ImageGenerator
	OpenAI ImageGenerator
	// BackgroundRemoval is the model key used when a download request names none.
	BackgroundRemoval string
}

// Registry resolves model keys to providers. It is built once and never
// mutated, so it is safe for concurrent use.
type Registry struct {
	gemini            ImageGenerator
	openai            ImageGenerator
	backgroundRemoval Kind
}

// NewRegistry validates the default background-removal model and returns the registry.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	bg, err := ParseKind(opts.BackgroundRemoval)
	if err != nil {
		return nil, fmt.Errorf("background removal model: %w", err)
	}
	return &Registry{
		gemini:            opts.Gemini,
		openai:            opts.OpenAI,
		backgroundRemoval: bg,
	}, nil
}

// Resolve returns the provider for a model key.
func (r *Registry) Resolve(key string) (ImageGenerator, error) {
	kind, err := ParseKind(key)
	if err != nil {
		return nil, err
	}
	return r.lookup(kind)
}

// BackgroundRemover returns the provider that removes backgrounds for key, or
// for the configured default when key is empty.
func (r *Registry) BackgroundRemover(key string) (BackgroundRemover, error) {
	kind := r.backgroundRemoval
	if strings.TrimSpace(key) != "" {
		var err error
		if kind, err = ParseKind(key); err != nil {
			return nil, err
		}
	}
	gen, err := r.lookup(kind)
	if err != nil {
		return nil, err
	}
	remover, ok := gen.(BackgroundRemover)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackgroundRemovalUnsupported, kind)
	}
	return remover, nil
}

// Models describes every known model, configured or not.
func (r *Registry) Models() []ModelInfo {
	return lo.Map(Kinds, func(kind Kind, _ int) ModelInfo {
		info := ModelInfo{Name: string(kind), Default: kind == r.backgroundRemoval}
		if gen, err := r.lookup(kind); err == nil {
			_, canRemove := gen.(BackgroundRemover)
			info.Model = gen.GetModel()
			info.Configured = true
			info.BackgroundRemoval = canRemove
		}
		return info
	})
}

func (r *Registry) lookup(kind Kind) (ImageGenerator, error) {
	var gen ImageGenerator
	switch kind {
	case KindGemini:
		gen = r.gemini
	case KindOpenAI:
		gen = r.openai
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, kind)
	}
	if gen == nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotConfigured, kind)
	}
	return gen, nil
}
