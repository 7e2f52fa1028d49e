// Package enricher decorates outgoing read responses with the variant
// overlays decoded from each embedded media object's manifest. It never
// generates anything; a response for an asset with no manifest still gets an
// "original" entry built from the object itself.
package enricher

import (
	"reflect"

	"github.com/rs/zerolog"

	"github.com/mediastack/image-variant-pipeline/internal/metrics"
	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

// OverlayKey is the response key carrying the per-object variant overlay.
const OverlayKey = "processedImages"

// maxDepth bounds traversal of pathological payloads. Response trees are
// shallow in practice; the visited set is the real cycle guard and the depth
// cap is the backstop.
const maxDepth = 64

// Walker enriches response payloads in place.
type Walker struct {
	logger zerolog.Logger
}

// New creates a walker.
func New(logger zerolog.Logger) *Walker {
	return &Walker{logger: logger}
}

// Enrich walks a decoded response body and attaches overlays to every media
// object found. Idempotent: objects that already carry an overlay are left
// untouched. Per-node problems degrade to "original only" for that node and
// never abort siblings.
func (w *Walker) Enrich(body any) {
	visited := make(map[uintptr]bool)
	w.walk(body, 0, visited)
}

func (w *Walker) walk(node any, depth int, visited map[uintptr]bool) {
	if depth > maxDepth {
		w.logger.Warn().Int("depth", depth).Msg("enrichment depth limit reached")
		return
	}

	switch val := node.(type) {
	case map[string]any:
		ptr := reflect.ValueOf(val).Pointer()
		if visited[ptr] {
			return
		}
		visited[ptr] = true

		if isMediaObject(val) {
			w.decorate(val)
		}
		for _, child := range val {
			w.walk(child, depth+1, visited)
		}
	case []any:
		if len(val) == 0 {
			return
		}
		ptr := reflect.ValueOf(val).Pointer()
		if visited[ptr] {
			return
		}
		visited[ptr] = true

		for _, child := range val {
			w.walk(child, depth+1, visited)
		}
	}
}

// isMediaObject reports whether a node looks like an embedded media record: a
// url plus a mime or extension marker identifying an image. Media relations
// ({data: {...}} or {data: [...]}) need no special casing here; traversal
// unwraps them and classifies each nested record on its own.
func isMediaObject(node map[string]any) bool {
	url, ok := node["url"].(string)
	if !ok || url == "" {
		return false
	}
	if mime, ok := node["mime"].(string); ok {
		return len(mime) > 6 && mime[:6] == "image/"
	}
	if ext, ok := node["ext"].(string); ok {
		return ext != ""
	}
	return false
}

// decorate attaches the overlay to one media object. The original entry is
// built from the object's own attributes regardless of manifest presence;
// manifest entries are added only when well formed.
func (w *Walker) decorate(obj map[string]any) {
	if _, exists := obj[OverlayKey]; exists {
		return
	}

	overlay := map[string]any{
		"original": map[string]any{
			"url":    obj["url"],
			"width":  obj["width"],
			"height": obj["height"],
			"format": formatOf(obj),
		},
	}

	caption, _ := obj["caption"].(string)
	if manifest, ok := variant.DecodeManifest(caption); ok {
		for _, d := range manifest.Variants {
			if !d.WellFormed() {
				continue
			}
			overlay[d.Suffix] = map[string]any{
				"url":    d.URL,
				"width":  d.Width,
				"height": d.Height,
				"format": d.Format,
			}
		}
	}

	obj[OverlayKey] = overlay
	metrics.EnrichedObjects.Inc()
}

func formatOf(obj map[string]any) string {
	if ext, ok := obj["ext"].(string); ok && len(ext) > 1 {
		if ext[0] == '.' {
			return ext[1:]
		}
		return ext
	}
	return "unknown"
}
