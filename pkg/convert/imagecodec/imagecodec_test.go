package imagecodec

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 9))
	for x := 0; x < 16; x++ {
		for y := 0; y < 9; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 28), B: 200, A: 255})
		}
	}
	return img
}

func TestTranscode_PreservesDimensions(t *testing.T) {
	var src bytes.Buffer
	require.NoError(t, png.Encode(&src, testImage()))

	for _, target := range Types() {
		t.Run(target, func(t *testing.T) {
			if testing.Short() && (target == "image/webp" || target == "image/avif") {
				t.Skip("wasm codecs skipped in short mode")
			}

			out, err := Transcode("image/png", target, src.Bytes())
			require.NoError(t, err)

			img, err := Decode(target, out)
			require.NoError(t, err)
			assert.Equal(t, 16, img.Bounds().Dx())
			assert.Equal(t, 9, img.Bounds().Dy())
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("image/png", []byte("garbage"))
	assert.Error(t, err)

	_, err = Decode("image/tiff", []byte("garbage"))
	assert.Error(t, err)
}

func TestEncode_UnknownType(t *testing.T) {
	_, err := Encode("image/bmp", testImage())
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	for _, mt := range Types() {
		assert.True(t, Supported(mt), mt)
	}
	assert.False(t, Supported("text/plain"))
}
