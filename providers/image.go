package providers

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // Keep for decoding jpegs
	"image/png"
	"os"

	_ "github.com/chai2010/webp" // Keep for decoding webp
	"github.com/nfnt/resize"
)

var formatMIME = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
}

// LoadInputImage reads a reference image and shrinks it to fit maxDim x maxDim
// when it is larger. Resized images are re-encoded as PNG so transparency
// survives. It returns the bytes to send and their MIME type.
func LoadInputImage(path string, maxDim int) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read input image: %w", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode input image: %w", err)
	}
	mime, ok := formatMIME[format]
	if !ok {
		return nil, "", fmt.Errorf("unsupported input image format: %s", format)
	}

	if maxDim <= 0 || (cfg.Width <= maxDim && cfg.Height <= maxDim) {
		return data, mime, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode input image: %w", err)
	}
	resized := resize.Thumbnail(uint(maxDim), uint(maxDim), img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, "", fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}

// EncodePNG returns data unchanged when it already is a PNG and re-encodes any
// other decodable format as PNG.
func EncodePNG(data []byte) ([]byte, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if format == "png" {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image: %w", format, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image to png: %w", err)
	}
	return buf.Bytes(), nil
}

func extensionForMIME(mime string) string {
	for format, m := range formatMIME {
		if m == mime {
			if format == "jpeg" {
				return "jpg"
			}
			return format
		}
	}
	return "png"
}
