package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash-image-preview"

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// MaxInputDimension bounds the longer side of reference images; 0 disables resizing.
	MaxInputDimension int
}

// GeminiProvider implements the ImageGenerator for Google Gemini.
type GeminiProvider struct {
	client *genai.Client
	model  string
	maxDim int
	store  ResultWriter
	logger *zap.Logger
}

// NewGeminiProvider creates a new Gemini client.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig, store ResultWriter, logger *zap.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  cfg.Model,
		maxDim: cfg.MaxInputDimension,
		store:  store,
		logger: logger.With(zap.String("provider", "gemini")),
	}, nil
}

// GetName returns the name of the provider.
func (p *GeminiProvider) GetName() string {
	return string(KindGemini)
}

// GetModel returns the Gemini model identifier.
func (p *GeminiProvider) GetModel() string {
	return p.model
}

// Generate sends the prompt, and the reference image when present, to
// generateContent and stores the first inline image of the first candidate.
func (p *GeminiProvider) Generate(ctx context.Context, input GenerationInput) (*GenerationOutput, error) {
	parts := []*genai.Part{genai.NewPartFromText(input.Prompt)}

	if hasInputImage(input.ImagePath) {
		data, mime, err := LoadInputImage(input.ImagePath, p.maxDim)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, mime))
		p.logger.Info("calling generateContent with reference image",
			zap.String("model", p.model), zap.String("mime", mime), zap.Int("bytes", len(data)))
	} else {
		p.logger.Info("calling generateContent with prompt only", zap.String("model", p.model))
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to call generateContent: %w", err)
	}

	imageData, text := firstInlineImage(resp)
	if imageData == nil {
		if text != "" {
			return nil, fmt.Errorf("gemini: %w (model said: %q)", ErrNoImage, text)
		}
		return nil, fmt.Errorf("gemini: %w", ErrNoImage)
	}

	pngData, err := EncodePNG(imageData)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	path, err := p.store.SaveResult("generated", "png", pngData)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to save generated image: %w", err)
	}

	return &GenerationOutput{
		Path:     path,
		Provider: p.GetName(),
		Model:    p.model,
	}, nil
}

// firstInlineImage returns the first inline payload of the first candidate and
// any text the model produced alongside it.
func firstInlineImage(resp *genai.GenerateContentResponse) ([]byte, string) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil, ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, ""
		}
		text.WriteString(part.Text)
	}
	return nil, strings.TrimSpace(text.String())
}
