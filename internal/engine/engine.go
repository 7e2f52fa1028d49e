// Package engine turns source assets into resized, re-encoded variants.
// Generation is a pure function from (source bytes, spec) to (derived bytes,
// descriptor) plus one upload side effect; ordering and retries belong to the
// caller.
package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/mediastack/image-variant-pipeline/internal/gateway"
	"github.com/mediastack/image-variant-pipeline/internal/metrics"
	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

// Generator produces variants through the asset store gateway.
type Generator struct {
	assets   gateway.AssetFinder
	fetcher  gateway.ByteFetcher
	uploader gateway.Uploader
	logger   zerolog.Logger
}

// New creates a generator. fetcher may be a LocalFetcher wrapping the HTTP
// gateway when a shared uploads directory is available.
func New(assets gateway.AssetFinder, fetcher gateway.ByteFetcher, uploader gateway.Uploader, logger zerolog.Logger) *Generator {
	return &Generator{
		assets:   assets,
		fetcher:  fetcher,
		uploader: uploader,
		logger:   logger,
	}
}

// Generate derives one variant of the source asset per the spec and uploads
// it. The derived filename is deterministic in (source name or content hash,
// suffix, width, height), so regenerating the same pair converges on the same
// logical output.
func (g *Generator) Generate(ctx context.Context, sourceID string, spec variant.Spec) (variant.Descriptor, error) {
	started := time.Now()
	spec = spec.Normalize()

	asset, err := g.assets.FindAssetByID(ctx, sourceID)
	if err != nil {
		return variant.Descriptor{}, classify(err, ErrFetchFailed)
	}
	if asset == nil {
		return variant.Descriptor{}, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}
	if !asset.IsImage() {
		return variant.Descriptor{}, fmt.Errorf("%w: %s has mime %q", ErrSourceNotAnImage, sourceID, asset.Mime)
	}

	data, err := g.fetcher.FetchBytes(ctx, asset.URL)
	if err != nil {
		return variant.Descriptor{}, classify(err, ErrFetchFailed)
	}

	derived, width, height, err := transform(data, spec)
	if err != nil {
		return variant.Descriptor{}, fmt.Errorf("%w: %v", ErrTransformFailed, err)
	}

	filename := deriveFilename(asset.Name, data, spec)
	altText := asset.AltText
	if altText == "" {
		altText = filename
	}

	uploaded, err := g.uploader.UploadBytes(ctx, gateway.UploadRequest{
		Data:     derived,
		Filename: filename,
		Mime:     mimeFor(spec.Format),
		AltText:  altText,
	})
	if err != nil {
		return variant.Descriptor{}, classify(err, ErrUploadFailed)
	}

	g.logger.Info().
		Str("source_id", sourceID).
		Str("suffix", spec.Suffix).
		Str("filename", filename).
		Int("width", width).
		Int("height", height).
		Int("bytes", len(derived)).
		Msg("variant generated")

	metrics.VariantsGenerated.WithLabelValues(spec.Suffix, spec.Format).Inc()
	metrics.GenerationDuration.Observe(time.Since(started).Seconds())

	return variant.Descriptor{
		Suffix: spec.Suffix,
		URL:    uploaded.URL,
		Width:  width,
		Height: height,
		Format: spec.Ext(),
	}, nil
}

// transform decodes, auto-rotates, resizes and re-encodes source bytes.
// Target dimensions clamp to the source's native resolution; variants never
// enlarge.
func transform(data []byte, spec variant.Spec) ([]byte, int, int, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode: %w", err)
	}

	bounds := img.Bounds()
	width := min(spec.Width, bounds.Dx())
	height := min(spec.Height, bounds.Dy())

	var resized *image.NRGBA
	switch spec.Fit {
	case variant.FitContain:
		resized = imaging.Fit(img, width, height, imaging.Lanczos)
	case variant.FitFill:
		resized = imaging.Resize(img, width, height, imaging.Lanczos)
	default: // cover
		resized = imaging.Fill(img, width, height, anchorOf(spec.Position), imaging.Lanczos)
	}

	var buf bytes.Buffer
	switch spec.Format {
	case variant.FormatWebP:
		err = webp.Encode(&buf, resized, &webp.Options{Quality: float32(spec.Quality)})
	case variant.FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		err = encoder.Encode(&buf, resized)
	default:
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: spec.Quality})
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("encode %s: %w", spec.Format, err)
	}

	out := resized.Bounds()
	return buf.Bytes(), out.Dx(), out.Dy(), nil
}

// deriveFilename builds the deterministic derived name
// <base>_<suffix>_<w>x<h>.<ext>, where base is the source name without its
// extension or, when the name is empty, a short hash of the source bytes.
func deriveFilename(sourceName string, data []byte, spec variant.Spec) string {
	base := strings.TrimSuffix(sourceName, filepath.Ext(sourceName))
	if base == "" {
		sum := sha256.Sum256(data)
		base = hex.EncodeToString(sum[:])[:12]
	}
	return fmt.Sprintf("%s_%s_%dx%d.%s", base, spec.Suffix, spec.Width, spec.Height, spec.Ext())
}

func mimeFor(format string) string {
	switch format {
	case variant.FormatWebP:
		return "image/webp"
	case variant.FormatPNG:
		return "image/png"
	default:
		return "image/jpeg"
	}
}

func anchorOf(position string) imaging.Anchor {
	switch position {
	case variant.PositionTop:
		return imaging.Top
	case variant.PositionBottom:
		return imaging.Bottom
	case variant.PositionLeft:
		return imaging.Left
	case variant.PositionRight:
		return imaging.Right
	case variant.PositionTopLeft:
		return imaging.TopLeft
	case variant.PositionTopRight:
		return imaging.TopRight
	case variant.PositionBottomLeft:
		return imaging.BottomLeft
	case variant.PositionBottomRight:
		return imaging.BottomRight
	default:
		return imaging.Center
	}
}

// classify maps gateway transport failures to ErrGatewayUnavailable and
// wraps everything else with the given kind.
func classify(err error, kind error) error {
	if errors.Is(err, gateway.ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return fmt.Errorf("%w: %v", kind, err)
}
