package imaging

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/xerrors"
)

// Decode interprets a screenshot buffer as pixel data. PNG is the
// recommended capture format: it is lossless, so channel tolerance
// semantics see the exact values the browser rendered. JPEG is
// accepted for legacy captures.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// EncodePNG serializes a diff canvas for persistence. Diff artifacts
// are always PNG regardless of the capture format, so the painted
// sentinel pixels survive without recompression loss.
func EncodePNG(img image.Image) ([]byte, error) {
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, img); err != nil {
		return nil, xerrors.Errorf("failed to encode png: %w", err)
	}
	return buffer.Bytes(), nil
}
