package fs

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/fragments/pkg/errs"
	"github.com/marmos91/fragments/pkg/store/blob"
	storetesting "github.com/marmos91/fragments/pkg/store/blob/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, mode CompressionMode) *FSBlobStore {
	t.Helper()
	store, err := NewFSBlobStore(context.Background(), FSBlobStoreConfig{
		BasePath:    t.TempDir(),
		Compression: string(mode),
	})
	require.NoError(t, err)
	return store
}

func TestFSBlobStore(t *testing.T) {
	for _, mode := range []CompressionMode{ModeNone, ModeLZ4, ModeZstd, ModeAuto} {
		t.Run(string(mode), func(t *testing.T) {
			suite := &storetesting.StoreTestSuite{
				NewStore: func(t *testing.T) blob.BlobStore {
					return newTestStore(t, mode)
				},
			}
			suite.Run(t)
		})
	}
}

func TestFSBlobStore_Layout(t *testing.T) {
	store := newTestStore(t, ModeNone)
	ctx := context.Background()

	require.NoError(t, store.WriteBlob(ctx, "owner", "frag-1", []byte("hello")))

	raw, err := os.ReadFile(filepath.Join(store.basePath, "owner", "frag-1.blob"))
	require.NoError(t, err)
	assert.Equal(t, envelopeMagic, string(raw[:4]))
	assert.Equal(t, []byte("hello"), raw[headerSize:])

	// No temp files survive a successful write
	entries, err := os.ReadDir(filepath.Join(store.basePath, "owner"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFSBlobStore_AutoCompressesText(t *testing.T) {
	store := newTestStore(t, ModeAuto)
	ctx := context.Background()

	text := []byte(strings.Repeat("# Heading\n\nSome *markdown* text.\n", 512))
	require.NoError(t, store.WriteBlob(ctx, "owner", "doc", text))

	raw, err := os.ReadFile(store.blobPath("owner", "doc"))
	require.NoError(t, err)

	h, err := parseHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, h.tag)
	assert.Equal(t, uint64(len(text)), h.size)
	assert.Less(t, len(raw), len(text))
}

func TestFSBlobStore_AutoSkipsBinary(t *testing.T) {
	store := newTestStore(t, ModeAuto)
	ctx := context.Background()

	image := append([]byte{0x89, 'P', 'N', 'G', 0xff, 0xfe}, bytes.Repeat([]byte{0}, 4096)...)
	require.NoError(t, store.WriteBlob(ctx, "owner", "img", image))

	raw, err := os.ReadFile(store.blobPath("owner", "img"))
	require.NoError(t, err)

	h, err := parseHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, h.tag)
}

func TestFSBlobStore_DetectsCorruption(t *testing.T) {
	store := newTestStore(t, ModeNone)
	ctx := context.Background()

	require.NoError(t, store.WriteBlob(ctx, "owner", "frag-1", []byte("precious bytes")))

	path := store.blobPath("owner", "frag-1")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0644))

	_, found, err := store.ReadBlob(ctx, "owner", "frag-1")
	assert.False(t, found)
	assert.True(t, errs.Is(err, errs.ErrStorage))
	assert.ErrorIs(t, err, errIntegrity)
}

func TestFSBlobStore_RejectsCorruptSizeHeader(t *testing.T) {
	payload := []byte(strings.Repeat("compressible text payload ", 200))
	sizes := map[string][]byte{
		"all ones": bytes.Repeat([]byte{0xff}, 8),
		"huge":     {0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00},
		"off by one": func() []byte {
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, uint64(len(payload)+1))
			return b
		}(),
	}

	for _, mode := range []CompressionMode{ModeNone, ModeLZ4, ModeZstd} {
		for name, size := range sizes {
			t.Run(string(mode)+"/"+name, func(t *testing.T) {
				store := newTestStore(t, mode)
				ctx := context.Background()

				require.NoError(t, store.WriteBlob(ctx, "owner", "frag-1", payload))

				path := store.blobPath("owner", "frag-1")
				raw, err := os.ReadFile(path)
				require.NoError(t, err)
				copy(raw[6:14], size)
				require.NoError(t, os.WriteFile(path, raw, 0644))

				var found bool
				require.NotPanics(t, func() {
					_, found, err = store.ReadBlob(ctx, "owner", "frag-1")
				})
				assert.False(t, found)
				assert.True(t, errs.Is(err, errs.ErrStorage))
				assert.ErrorIs(t, err, errIntegrity)
			})
		}
	}
}

func TestFSBlobStore_TruncatedFile(t *testing.T) {
	store := newTestStore(t, ModeNone)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Join(store.basePath, "owner"), 0755))
	require.NoError(t, os.WriteFile(store.blobPath("owner", "short"), []byte("FRA"), 0644))

	_, _, err := store.ReadBlob(ctx, "owner", "short")
	assert.ErrorIs(t, err, errIntegrity)
}

func TestFSBlobStore_ListSkipsTempFiles(t *testing.T) {
	store := newTestStore(t, ModeNone)
	ctx := context.Background()

	require.NoError(t, store.WriteBlob(ctx, "owner", "real", []byte("x")))
	require.NoError(t, os.WriteFile(filepath.Join(store.basePath, "owner", ".tmp-123"), []byte("partial"), 0644))

	all, err := store.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "real", all[0].ID)
}

func TestNewFSBlobStore_InvalidConfig(t *testing.T) {
	_, err := NewFSBlobStore(context.Background(), FSBlobStoreConfig{})
	assert.Error(t, err)

	_, err = NewFSBlobStore(context.Background(), FSBlobStoreConfig{BasePath: t.TempDir(), Compression: "brotli"})
	assert.Error(t, err)
}

func TestCompress_IncompressibleFallsBack(t *testing.T) {
	data := []byte("ab")
	out, tag, err := compress(data, ModeZstd)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, tag)
	assert.Equal(t, data, out)
}
