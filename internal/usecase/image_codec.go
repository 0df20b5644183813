package usecase

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"comfy-gateway/internal/domain"

	_ "golang.org/x/image/webp"
)

// decodeImage accepts PNG, JPEG, GIF and WebP.
func decodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: not a supported image: %v", domain.ErrInvalidArgument, err)
	}
	return img, format, nil
}

func encodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// toPNG re-encodes any supported image as PNG.
func toPNG(data []byte) ([]byte, error) {
	img, _, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodePNG(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
