// Package imagemeta extracts lightweight metadata from generated
// artifacts without fully decoding them.
package imagemeta

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Meta holds the dimensions of a generated artifact.
type Meta struct {
	Width  int
	Height int
	Format string
}

// Inspect reads just the image header to extract dimensions.
func Inspect(data []byte) (Meta, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Meta{}, fmt.Errorf("inspect artifact: %w", err)
	}
	return Meta{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}
