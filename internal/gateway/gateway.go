// Package gateway talks to the external asset store: the persistence layer
// that owns asset records and the upload transport that stores bytes. The
// pipeline only ever reads asset records, writes their caption field, fetches
// source bytes, and uploads derived bytes.
package gateway

import (
	"context"
	"errors"

	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

// ErrUnavailable marks transport-level failures (connection refused, DNS,
// timeouts) as opposed to the store answering with an error status. Callers
// use it to tell "the gateway is down" apart from "this request failed".
var ErrUnavailable = errors.New("asset store unavailable")

// AssetFinder looks up asset records by ID.
type AssetFinder interface {
	// FindAssetByID returns the asset record, or (nil, nil) when no asset
	// exists for the ID.
	FindAssetByID(ctx context.Context, id string) (*variant.Asset, error)
}

// AssetAnnotator writes the caption field of an existing asset record.
type AssetAnnotator interface {
	UpdateAssetCaption(ctx context.Context, id string, caption string) error
}

// ByteFetcher retrieves stored bytes by asset URL. Implementations decide how
// a relative URL resolves (public base URL, shared uploads directory).
type ByteFetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// UploadRequest carries derived bytes to store as a new asset.
type UploadRequest struct {
	Data     []byte
	Filename string
	Mime     string
	AltText  string
	Caption  string
}

// Uploader stores derived bytes as a new asset and returns its record.
type Uploader interface {
	UploadBytes(ctx context.Context, req UploadRequest) (*variant.Asset, error)
}

// Gateway is the full asset store surface the pipeline consumes.
type Gateway interface {
	AssetFinder
	AssetAnnotator
	ByteFetcher
	Uploader
}
