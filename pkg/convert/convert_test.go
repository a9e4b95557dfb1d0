package convert

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/mediatype"
	"github.com/marmos91/fragments/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(mediatype.Default(), opts...)
	require.NoError(t, err)
	return e
}

func TestNewEngine_CoversEveryEdge(t *testing.T) {
	e := newEngine(t)
	for _, edge := range mediatype.Default().Edges() {
		_, ok := e.converters[edge]
		assert.True(t, ok, "missing converter for %s", edge)
	}
}

func TestNewEngine_MissingConverter(t *testing.T) {
	entries := []mediatype.Entry{
		{MIME: "text/plain", Family: mediatype.FamilyText, Extensions: []string{".txt"}, Ingest: true},
		{MIME: "text/html", Family: mediatype.FamilyHTML, Extensions: []string{".html"}, Ingest: true},
	}
	entries[0].Targets = []string{"text/html"}

	reg, err := mediatype.New(entries)
	require.NoError(t, err)

	_, err = NewEngine(reg)
	assert.ErrorContains(t, err, "text -> text/html")
}

func TestNewEngine_RequiresRegistry(t *testing.T) {
	_, err := NewEngine(nil)
	assert.Error(t, err)
}

func TestConvert_NoExtensionReturnsOriginal(t *testing.T) {
	e := newEngine(t)
	data := []byte("# not converted")

	out, mt, err := e.Convert(context.Background(), "text/markdown; charset=utf-8", data, "")
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, "text/markdown", mt)
}

func TestConvert_IdentityExtension(t *testing.T) {
	e := newEngine(t)
	data := []byte("plain")

	out, mt, err := e.Convert(context.Background(), "text/plain", data, ".txt")
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, "text/plain", mt)
}

func TestConvert_Unsupported(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		source string
		ext    string
	}{
		{"plain to html", "text/plain", ".html"},
		{"unknown extension", "text/plain", ".exe"},
		{"text to image", "text/markdown", ".png"},
		{"image to text", "image/png", ".txt"},
		{"unknown source", "application/msword", ".txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.Convert(ctx, tt.source, []byte("x"), tt.ext)
			assert.True(t, errs.Is(err, errs.ErrUnsupportedMediaType), "got %v", err)
		})
	}
}

func TestConvert_UnsupportedNamesBothTypes(t *testing.T) {
	e := newEngine(t)
	_, _, err := e.Convert(context.Background(), "text/plain", []byte("x"), "html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text/plain")
	assert.Contains(t, err.Error(), "text/html")
}

func TestConvert_JSONToYAML(t *testing.T) {
	e := newEngine(t)

	out, mt, err := e.Convert(context.Background(), "application/json", []byte(`{"name":"Alice","age":30}`), ".yaml")
	require.NoError(t, err)
	assert.Equal(t, "application/yaml", mt)
	assert.Contains(t, string(out), "name: Alice")
	assert.Contains(t, string(out), "age: 30")
}

func TestConvert_CSVToJSON(t *testing.T) {
	e := newEngine(t)

	out, mt, err := e.Convert(context.Background(), "text/csv", []byte("name,age\nAlice,30\nBob,25"), ".json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", mt)
	assert.Equal(t, `[{"name":"Alice","age":"30"},{"name":"Bob","age":"25"}]`, string(out))
}

func TestConvert_MarkdownToHTML(t *testing.T) {
	e := newEngine(t)

	out, mt, err := e.Convert(context.Background(), "text/markdown", []byte("# Title\n\nSome **bold** text"), ".html")
	require.NoError(t, err)
	assert.Equal(t, "text/html", mt)
	assert.Contains(t, string(out), "<h1>Title</h1>")
	assert.Contains(t, string(out), "<strong>bold</strong>")
}

func TestConvert_MalformedPayload(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		source string
		data   []byte
		ext    string
	}{
		{"bad json", "application/json", []byte(`{"name":`), ".yaml"},
		{"bad yaml", "application/yaml", []byte("a: [1, 2"), ".json"},
		{"bad csv", "text/csv", []byte("a,b\n\"unterminated"), ".json"},
		{"not utf8", "text/markdown", []byte{0xff, 0xfe, 0xfd}, ".html"},
		{"bad png", "image/png", []byte("not a png"), ".jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.Convert(ctx, tt.source, tt.data, tt.ext)
			assert.True(t, errs.Is(err, errs.ErrConversionFailed), "got %v", err)
		})
	}
}

func TestConvert_CancelledContext(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := e.Convert(ctx, "text/csv", []byte("a\n1"), ".json")
	assert.True(t, errs.Is(err, errs.ErrConversionFailed))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConvert_CustomConverter(t *testing.T) {
	edge := mediatype.Edge{Source: mediatype.FamilyCSV, Target: "application/json"}
	e := newEngine(t, WithConverter(edge, func(ctx context.Context, source string, data []byte) ([]byte, error) {
		return []byte("custom"), nil
	}))

	out, _, err := e.Convert(context.Background(), "text/csv", []byte("a"), ".json")
	require.NoError(t, err)
	assert.Equal(t, "custom", string(out))
}

func TestConvert_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newEngine(t, WithMetrics(metrics.NewFragmentMetricsWith(reg)))

	_, _, err := e.Convert(context.Background(), "application/json", []byte(`{}`), ".yaml")
	require.NoError(t, err)
	_, _, _ = e.Convert(context.Background(), "application/json", []byte(`{`), ".yaml")

	count, err := testutil.GatherAndCount(reg, "fragments_conversions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestConvert_ImagePNGToJPEG(t *testing.T) {
	e := newEngine(t)

	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for x := 0; x < 8; x++ {
		for y := 0; y < 6; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 40), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	out, mt, err := e.Convert(context.Background(), "image/png", buf.Bytes(), ".jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mt)

	decoded, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestText_RejectsInvalidUTF8(t *testing.T) {
	fn := text(func(s string) (string, error) { return s, nil })
	_, err := fn(context.Background(), "text/plain", []byte{0xc3, 0x28})
	assert.True(t, errors.Is(err, errNotUTF8))
}
