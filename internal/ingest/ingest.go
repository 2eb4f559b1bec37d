// Package ingest turns transport-encoded images into pixel buffers and back.
package ingest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/example/emotion-sense/internal/emotion"
)

// DataURLPrefix is prepended to encoded crops.
const DataURLPrefix = "data:image/jpeg;base64,"

// DefaultMaxPixels bounds the decoded image size.
const DefaultMaxPixels = 40_000_000

// Decoder decodes base64 or data-URL images into opaque RGB buffers.
type Decoder struct {
	MaxPixels int
}

// Decode is a convenience wrapper around a Decoder with default limits.
func Decode(encoded string) (*image.NRGBA, error) {
	return Decoder{}.Decode(encoded)
}

// Decode strips an optional data-URL header, base64-decodes the payload and
// parses it as a raster image. The returned buffer is fully opaque: alpha is
// flattened onto white and greyscale is expanded to RGB. Every failure wraps
// emotion.ErrInvalidImage.
func (d Decoder) Decode(encoded string) (*image.NRGBA, error) {
	data, err := decodePayload(encoded)
	if err != nil {
		return nil, err
	}

	limit := d.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported raster format: %v", emotion.ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", emotion.ErrInvalidImage, cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > limit {
		return nil, fmt.Errorf("%w: image %dx%d exceeds %d pixels", emotion.ErrInvalidImage, cfg.Width, cfg.Height, limit)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", emotion.ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", emotion.ErrInvalidImage, b.Dx(), b.Dy())
	}
	return flatten(img), nil
}

// StripDataURL removes a leading "data:<mime>;base64," header if present.
func StripDataURL(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}

func decodePayload(encoded string) ([]byte, error) {
	payload := StripDataURL(encoded)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", emotion.ErrInvalidImage)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some clients drop the padding.
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return nil, fmt.Errorf("%w: base64: %v", emotion.ErrInvalidImage, err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", emotion.ErrInvalidImage)
	}
	return data, nil
}

func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// EncodeJPEG encodes img as JPEG and returns it as a data URL.
func EncodeJPEG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return DataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// JPEGBytes encodes img as raw JPEG bytes.
func JPEGBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
