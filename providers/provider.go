package providers

import (
	"context"
	"errors"
	"os"
)

var (
	// ErrNoImage is returned when a vendor answered without any image payload.
	ErrNoImage = errors.New("no image returned in response")
	// ErrUnsupportedModel is returned for model keys outside the known set.
	ErrUnsupportedModel = errors.New("Unsupported model")
	// ErrModelNotConfigured is returned for known models whose vendor has no API key.
	ErrModelNotConfigured = errors.New("model is not configured on the server")
	// ErrBackgroundRemovalUnsupported is returned when a vendor cannot remove backgrounds.
	ErrBackgroundRemovalUnsupported = errors.New("background removal is not supported by this model")
)

// GenerationInput defines the standardized input for all providers.
type GenerationInput struct {
	Prompt string
	// ImagePath is an optional reference image. When it names an existing
	// file the call edits that image, otherwise it is plain text-to-image.
	ImagePath string
}

// GenerationOutput describes a result written to the result directory.
// Providers never return a nil output together with a nil error.
type GenerationOutput struct {
	Path     string
	Provider string
	Model    string
}

// ImageGenerator is the interface that all providers must implement.
type ImageGenerator interface {
	// Generate an image based on the provided input and store it.
	Generate(ctx context.Context, input GenerationInput) (*GenerationOutput, error)
	// GetName returns the name of the provider (e.g., "gemini").
	GetName() string
	// GetModel returns the vendor model identifier in use.
	GetModel() string
}

// BackgroundRemover is implemented by providers that can return a copy of an
// image with a transparent background.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, imagePath string) (*GenerationOutput, error)
}

// ResultWriter persists generated image bytes and returns the stored path.
type ResultWriter interface {
	SaveResult(prefix, ext string, data []byte) (string, error)
}

// hasInputImage mirrors the "provided and exists" rule for reference images.
func hasInputImage(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
