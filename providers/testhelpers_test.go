package providers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"imagegen/filestore"
)

func newResultStore(t *testing.T) *filestore.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := filestore.New(filestore.Options{
		UploadDir:         filepath.Join(dir, "uploads"),
		ResultDir:         filepath.Join(dir, "results"),
		AllowedExtensions: []string{"png"},
		MaxFileSize:       1 << 20,
	}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// stubGenerator is an ImageGenerator that records its input.
type stubGenerator struct {
	name  string
	out   *GenerationOutput
	err   error
	input GenerationInput
}

func (s *stubGenerator) Generate(_ context.Context, input GenerationInput) (*GenerationOutput, error) {
	s.input = input
	return s.out, s.err
}

func (s *stubGenerator) GetName() string  { return s.name }
func (s *stubGenerator) GetModel() string { return s.name + "-model" }

// stubRemover additionally removes backgrounds.
type stubRemover struct {
	stubGenerator
}

func (s *stubRemover) RemoveBackground(_ context.Context, imagePath string) (*GenerationOutput, error) {
	s.input = GenerationInput{ImagePath: imagePath}
	return s.out, s.err
}
