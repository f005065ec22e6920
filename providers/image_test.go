package providers

import (
	"bytes"
	"image"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadInputImage(t *testing.T) {
	t.Run("small png passes through", func(t *testing.T) {
		src := pngBytes(t, 32, 16)
		data, mime, err := LoadInputImage(writeFile(t, "in.png", src), 64)
		require.NoError(t, err)
		assert.Equal(t, "image/png", mime)
		assert.Equal(t, src, data)
	})

	t.Run("jpeg keeps its type", func(t *testing.T) {
		_, mime, err := LoadInputImage(writeFile(t, "in.jpg", jpegBytes(t, 8, 8)), 64)
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", mime)
	})

	t.Run("webp is decoded", func(t *testing.T) {
		src, err := webp.EncodeRGBA(testImage(16, 16), 90)
		require.NoError(t, err)
		_, mime, err := LoadInputImage(writeFile(t, "in.webp", src), 64)
		require.NoError(t, err)
		assert.Equal(t, "image/webp", mime)
	})

	t.Run("oversized image is shrunk to png", func(t *testing.T) {
		data, mime, err := LoadInputImage(writeFile(t, "big.jpg", jpegBytes(t, 200, 100)), 50)
		require.NoError(t, err)
		assert.Equal(t, "image/png", mime)

		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.LessOrEqual(t, cfg.Width, 50)
		assert.LessOrEqual(t, cfg.Height, 50)
	})

	t.Run("zero max disables resizing", func(t *testing.T) {
		src := pngBytes(t, 120, 10)
		data, _, err := LoadInputImage(writeFile(t, "wide.png", src), 0)
		require.NoError(t, err)
		assert.Equal(t, src, data)
	})

	t.Run("not an image", func(t *testing.T) {
		_, _, err := LoadInputImage(writeFile(t, "notes.png", []byte("plain text")), 64)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := LoadInputImage("/does/not/exist.png", 64)
		assert.Error(t, err)
	})
}

func TestEncodePNG(t *testing.T) {
	src := pngBytes(t, 4, 4)
	out, err := EncodePNG(src)
	require.NoError(t, err)
	assert.Equal(t, src, out)

	out, err = EncodePNG(jpegBytes(t, 4, 4))
	require.NoError(t, err)
	_, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	_, err = EncodePNG([]byte("nope"))
	assert.Error(t, err)
}

func TestExtensionForMIME(t *testing.T) {
	assert.Equal(t, "png", extensionForMIME("image/png"))
	assert.Equal(t, "jpg", extensionForMIME("image/jpeg"))
	assert.Equal(t, "webp", extensionForMIME("image/webp"))
	assert.Equal(t, "png", extensionForMIME("application/octet-stream"))
}
