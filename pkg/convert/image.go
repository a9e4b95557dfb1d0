package convert

import (
	"context"

	"github.com/marmos91/fragments/pkg/convert/imagecodec"
)

// imageTo returns a converter that re-encodes any supported image into
// target. Dimensions and pixel content are preserved up to the lossiness
// of the target format.
func imageTo(target string) Converter {
	return func(ctx context.Context, source string, data []byte) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return imagecodec.Transcode(source, target, data)
	}
}
