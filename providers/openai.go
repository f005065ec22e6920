package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

const (
	defaultOpenAIModel = "gpt-image-1"

	backgroundRemovalPrompt = "Preserve the subject, any logo and whatever is printed on it exactly as they are. " +
		"Remove everything else and leave a fully transparent background."
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// MaxInputDimension bounds the longer side of reference images; 0 disables resizing.
	MaxInputDimension int
}

// OpenAIProvider implements the ImageGenerator and BackgroundRemover for OpenAI.
type OpenAIProvider struct {
	client openai.Client
	model  string
	maxDim int
	store  ResultWriter
	logger *zap.Logger
}

// NewOpenAIProvider creates a new OpenAI client. SDK retries are disabled so a
// failed call surfaces to the caller immediately.
func NewOpenAIProvider(cfg OpenAIConfig, store ResultWriter, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		maxDim: cfg.MaxInputDimension,
		store:  store,
		logger: logger.With(zap.String("provider", "openai")),
	}, nil
}

// GetName returns the name of the provider.
func (p *OpenAIProvider) GetName() string {
	return string(KindOpenAI)
}

// GetModel returns the OpenAI image model identifier.
func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// Generate calls the edits endpoint when a reference image exists and the
// generations endpoint otherwise.
func (p *OpenAIProvider) Generate(ctx context.Context, input GenerationInput) (*GenerationOutput, error) {
	var (
		resp *openai.ImagesResponse
		err  error
	)
	if hasInputImage(input.ImagePath) {
		p.logger.Info("calling images.edit", zap.String("model", p.model))
		resp, err = p.edit(ctx, input.ImagePath, input.Prompt, "")
		if err != nil {
			return nil, fmt.Errorf("openai: failed to call images.edit: %w", err)
		}
	} else {
		p.logger.Info("calling images.generate with prompt only", zap.String("model", p.model))
		resp, err = p.client.Images.Generate(ctx, openai.ImageGenerateParams{
			Prompt:  input.Prompt,
			Model:   openai.ImageModel(p.model),
			Quality: openai.ImageGenerateParamsQualityHigh,
		})
		if err != nil {
			return nil, fmt.Errorf("openai: failed to call images.generate: %w", err)
		}
	}

	return p.save(resp, "generated")
}

// RemoveBackground asks images.edit for a transparent-background copy of the
// image at imagePath.
func (p *OpenAIProvider) RemoveBackground(ctx context.Context, imagePath string) (*GenerationOutput, error) {
	if !hasInputImage(imagePath) {
		return nil, fmt.Errorf("openai: input image %s does not exist", imagePath)
	}

	p.logger.Info("calling images.edit for background removal", zap.String("model", p.model), zap.String("image", imagePath))
	resp, err := p.edit(ctx, imagePath, backgroundRemovalPrompt, openai.ImageEditParamsBackgroundTransparent)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to call images.edit: %w", err)
	}
	return p.save(resp, "nobg")
}

func (p *OpenAIProvider) edit(ctx context.Context, imagePath, prompt string, background openai.ImageEditParamsBackground) (*openai.ImagesResponse, error) {
	data, mime, err := LoadInputImage(imagePath, p.maxDim)
	if err != nil {
		return nil, err
	}

	params := openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(data), "image."+extensionForMIME(mime), mime),
		},
		Prompt:        prompt,
		Model:         openai.ImageModel(p.model),
		InputFidelity: openai.ImageEditParamsInputFidelityHigh,
	}
	if background != "" {
		params.Background = background
	} else {
		params.Quality = openai.ImageEditParamsQualityHigh
	}
	return p.client.Images.Edit(ctx, params)
}

// save decodes the first b64_json entry and writes it to the result directory.
func (p *OpenAIProvider) save(resp *openai.ImagesResponse, prefix string) (*GenerationOutput, error) {
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("openai: %w", ErrNoImage)
	}

	imageData, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to decode base64 image data: %w", err)
	}

	path, err := p.store.SaveResult(prefix, "png", imageData)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to save image: %w", err)
	}
	p.logger.Info("image saved", zap.String("path", path))

	return &GenerationOutput{
		Path:     path,
		Provider: p.GetName(),
		Model:    p.model,
	}, nil
}
