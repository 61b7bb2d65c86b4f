package images_test

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookforgeapp/bookforge-client/internal/domain"
	"github.com/bookforgeapp/bookforge-client/internal/media/images"
)

// pngPayload renders a small gradient PNG and returns it base64-encoded.
func pngPayload(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 7), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newEnricher() *images.Enricher {
	return images.NewEnricher(slog.New(slog.DiscardHandler))
}

func TestEnricher_ComputesPlaceholder(t *testing.T) {
	asset := &domain.ImageAsset{Caption: "gradient", Data: pngPayload(t, 32, 24)}

	newEnricher().Enrich(asset)

	assert.Equal(t, 32, asset.Width)
	assert.Equal(t, 24, asset.Height)
	assert.NotEmpty(t, asset.Blurhash)
}

func TestEnricher_DataURIPayload(t *testing.T) {
	asset := &domain.ImageAsset{Data: "data:image/png;base64," + pngPayload(t, 8, 8)}

	newEnricher().Enrich(asset)

	assert.Equal(t, 8, asset.Width)
	assert.NotEmpty(t, asset.Blurhash)
}

func TestEnricher_LargeImageStillHashes(t *testing.T) {
	// Exercises the thumbnail resize path.
	asset := &domain.ImageAsset{Data: pngPayload(t, 300, 200)}

	newEnricher().Enrich(asset)

	assert.Equal(t, 300, asset.Width)
	assert.Equal(t, 200, asset.Height)
	assert.NotEmpty(t, asset.Blurhash)
}

func TestEnricher_UndecodablePayloadLeavesAssetUsable(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not base64", "!!! definitely not base64 !!!"},
		{"base64 but not an image", base64.StdEncoding.EncodeToString([]byte("plain text"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asset := &domain.ImageAsset{Caption: "bad", Data: tt.data}
			newEnricher().Enrich(asset)

			assert.Empty(t, asset.Blurhash)
			assert.Zero(t, asset.Width)
			assert.Equal(t, tt.data, asset.Data, "payload is preserved untouched")
		})
	}
}

func TestDecodePayload(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03}
	encoded := base64.StdEncoding.EncodeToString(raw)

	got, err := images.DecodePayload(encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = images.DecodePayload("data:image/png;base64," + encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = images.DecodePayload("%%%")
	require.Error(t, err)
}
