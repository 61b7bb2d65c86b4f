// Package images enriches chapter images arriving on the event stream with
// placeholder metadata: a BlurHash string and pixel dimensions, computed from
// the base64 payload. Enrichment is best-effort - a payload the decoder
// cannot read ships without a placeholder, never fails the stream.
package images

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"log/slog"
	"strings"

	"github.com/bbrks/go-blurhash"
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/bookforgeapp/bookforge-client/internal/domain"
)

// blurHashSize is the target size for BlurHash computation.
// BlurHash doesn't need high resolution - a small thumbnail produces nearly
// identical results, and 64x64 keeps per-image cost in the millisecond range.
const blurHashSize = 64

// Enricher computes placeholder metadata for streamed images.
type Enricher struct {
	logger *slog.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(logger *slog.Logger) *Enricher {
	return &Enricher{logger: logger}
}

// Enrich fills the asset's Blurhash, Width, and Height from its Data payload.
// Images the decoder cannot handle are left untouched; the asset is still
// usable without a placeholder.
func (e *Enricher) Enrich(asset *domain.ImageAsset) {
	if asset == nil || asset.Data == "" {
		return
	}

	raw, err := DecodePayload(asset.Data)
	if err != nil {
		e.logger.Debug("image payload not decodable", "caption", asset.Caption, "error", err)
		return
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		e.logger.Debug("image format not recognized", "caption", asset.Caption, "error", err)
		return
	}
	asset.Width = cfg.Width
	asset.Height = cfg.Height

	hash, err := computeBlurHash(raw)
	if err != nil {
		e.logger.Debug("blurhash computation failed", "caption", asset.Caption, "error", err)
		return
	}
	asset.Blurhash = hash
}

// DecodePayload decodes an image payload as delivered on the wire: either a
// bare base64 string or a data URI ("data:image/png;base64,...").
func DecodePayload(data string) ([]byte, error) {
	if strings.HasPrefix(data, "data:") {
		if idx := strings.IndexByte(data, ','); idx >= 0 {
			data = data[idx+1:]
		}
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(data))
}

// computeBlurHash generates a BlurHash string from encoded image bytes.
// Uses 4x3 components for a good balance of size (~20-30 chars) and detail.
func computeBlurHash(raw []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	return blurhash.Encode(4, 3, resizeForBlurHash(img))
}

// resizeForBlurHash creates a small thumbnail suitable for BlurHash
// computation. Simple nearest-neighbor scaling is fast and sufficient here.
func resizeForBlurHash(img image.Image) image.Image {
	bounds := img.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	if srcWidth <= blurHashSize && srcHeight <= blurHashSize {
		return img
	}

	var dstWidth, dstHeight int
	if srcWidth > srcHeight {
		dstWidth = blurHashSize
		dstHeight = (srcHeight * blurHashSize) / srcWidth
		if dstHeight < 1 {
			dstHeight = 1
		}
	} else {
		dstHeight = blurHashSize
		dstWidth = (srcWidth * blurHashSize) / srcHeight
		if dstWidth < 1 {
			dstWidth = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))

	xRatio := float64(srcWidth) / float64(dstWidth)
	yRatio := float64(srcHeight) / float64(dstHeight)

	for y := 0; y < dstHeight; y++ {
		for x := 0; x < dstWidth; x++ {
			srcX := int(float64(x) * xRatio)
			srcY := int(float64(y) * yRatio)
			dst.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}

	return dst
}
