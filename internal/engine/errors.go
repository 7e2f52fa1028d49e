package engine

import "errors"

var (
	// ErrSourceNotFound is returned when the ID does not resolve to a stored asset.
	ErrSourceNotFound = errors.New("source asset not found")

	// ErrSourceNotAnImage is returned when the asset's mime type is not an image type.
	ErrSourceNotAnImage = errors.New("source asset is not an image")

	// ErrFetchFailed is returned when source bytes cannot be retrieved.
	ErrFetchFailed = errors.New("source fetch failed")

	// ErrTransformFailed is returned when decoding, resizing or encoding fails.
	ErrTransformFailed = errors.New("image transform failed")

	// ErrUploadFailed is returned when the store rejects the derived bytes.
	ErrUploadFailed = errors.New("variant upload failed")

	// ErrGatewayUnavailable is returned when the asset store cannot be
	// reached at all, as opposed to answering with an error.
	ErrGatewayUnavailable = errors.New("asset store gateway unavailable")
)

// FailureKind maps an error to a stable label for logs and metrics.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrSourceNotFound):
		return "source_not_found"
	case errors.Is(err, ErrSourceNotAnImage):
		return "source_not_an_image"
	case errors.Is(err, ErrGatewayUnavailable):
		return "gateway_unavailable"
	case errors.Is(err, ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, ErrTransformFailed):
		return "transform_failed"
	case errors.Is(err, ErrUploadFailed):
		return "upload_failed"
	default:
		return "unknown"
	}
}
