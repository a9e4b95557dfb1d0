// Package imagecodec decodes and encodes the raster formats fragments may be
// stored as: PNG, JPEG, GIF, WebP and AVIF.
//
// PNG, JPEG and GIF use the standard library codecs. WebP and AVIF use the
// pure-Go (WASM-backed) gen2brain codecs, so no cgo toolchain is needed.
package imagecodec

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
)

// MaxPixels bounds the decoded size of an image, guarding against payloads
// that decompress far beyond their stored size.
const MaxPixels = 64 << 20

// JPEGQuality is the quality used when encoding JPEG output.
const JPEGQuality = 90

type codec struct {
	decode       func(io.Reader) (image.Image, error)
	decodeConfig func(io.Reader) (image.Config, error)
	encode       func(io.Writer, image.Image) error
}

var codecs = map[string]codec{
	"image/png": {
		decode:       png.Decode,
		decodeConfig: png.DecodeConfig,
		encode:       png.Encode,
	},
	"image/jpeg": {
		decode:       jpeg.Decode,
		decodeConfig: jpeg.DecodeConfig,
		encode: func(w io.Writer, m image.Image) error {
			return jpeg.Encode(w, m, &jpeg.Options{Quality: JPEGQuality})
		},
	},
	"image/gif": {
		decode:       gif.Decode,
		decodeConfig: gif.DecodeConfig,
		encode: func(w io.Writer, m image.Image) error {
			return gif.Encode(w, m, nil)
		},
	},
	"image/webp": {
		decode:       webp.Decode,
		decodeConfig: webp.DecodeConfig,
		encode: func(w io.Writer, m image.Image) error {
			return webp.Encode(w, m)
		},
	},
	"image/avif": {
		decode:       avif.Decode,
		decodeConfig: avif.DecodeConfig,
		encode: func(w io.Writer, m image.Image) error {
			return avif.Encode(w, m)
		},
	},
}

// Types lists the supported MIME types.
func Types() []string {
	return []string{"image/png", "image/jpeg", "image/webp", "image/gif", "image/avif"}
}

// Supported reports whether mimeType has a codec.
func Supported(mimeType string) bool {
	_, ok := codecs[mimeType]
	return ok
}

// Decode parses data as an image of the given MIME type. For animated GIFs
// only the first frame is returned.
func Decode(mimeType string, data []byte) (image.Image, error) {
	c, ok := codecs[mimeType]
	if !ok {
		return nil, fmt.Errorf("no decoder for %s", mimeType)
	}

	cfg, err := c.decodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s header: %w", mimeType, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("decode %s: invalid dimensions %dx%d", mimeType, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("decode %s: %dx%d exceeds %d pixels", mimeType, cfg.Width, cfg.Height, MaxPixels)
	}

	img, err := c.decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", mimeType, err)
	}
	return img, nil
}

// Encode serialises img in the given MIME type.
func Encode(mimeType string, img image.Image) ([]byte, error) {
	c, ok := codecs[mimeType]
	if !ok {
		return nil, fmt.Errorf("no encoder for %s", mimeType)
	}

	var buf bytes.Buffer
	if err := c.encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode %s: %w", mimeType, err)
	}
	return buf.Bytes(), nil
}

// Transcode decodes data as source and re-encodes it as target.
func Transcode(source, target string, data []byte) ([]byte, error) {
	img, err := Decode(source, data)
	if err != nil {
		return nil, err
	}
	return Encode(target, img)
}
