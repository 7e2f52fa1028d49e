package enricher

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

func captionWith(t *testing.T, descriptors ...variant.Descriptor) string {
	t.Helper()
	text, err := variant.EncodeManifest(variant.Manifest{Variants: descriptors})
	if err != nil {
		t.Fatalf("EncodeManifest: %v", err)
	}
	return text
}

func mediaObject(caption string) map[string]any {
	return map[string]any{
		"documentId": "img-1",
		"url":        "/uploads/photo.png",
		"mime":       "image/png",
		"ext":        ".png",
		"width":      float64(1200),
		"height":     float64(900),
		"caption":    caption,
	}
}

func TestEnrichAttachesOriginalAndVariants(t *testing.T) {
	caption := captionWith(t,
		variant.Descriptor{Suffix: "thumb", URL: "/uploads/photo_thumb_200x150.webp", Width: 200, Height: 150, Format: "webp"},
	)
	obj := mediaObject(caption)

	New(zerolog.Nop()).Enrich(obj)

	overlay, ok := obj[OverlayKey].(map[string]any)
	if !ok {
		t.Fatalf("overlay missing: %#v", obj)
	}
	original, ok := overlay["original"].(map[string]any)
	if !ok {
		t.Fatalf("original entry missing: %#v", overlay)
	}
	if original["url"] != "/uploads/photo.png" || original["format"] != "png" {
		t.Fatalf("original = %#v", original)
	}
	thumb, ok := overlay["thumb"].(map[string]any)
	if !ok {
		t.Fatalf("thumb entry missing: %#v", overlay)
	}
	if thumb["url"] != "/uploads/photo_thumb_200x150.webp" {
		t.Fatalf("thumb = %#v", thumb)
	}
}

func TestEnrichWithoutManifestIsOriginalOnly(t *testing.T) {
	obj := mediaObject("just a human-written caption")

	New(zerolog.Nop()).Enrich(obj)

	overlay := obj[OverlayKey].(map[string]any)
	if len(overlay) != 1 {
		t.Fatalf("overlay = %#v, want original only", overlay)
	}
	if _, ok := overlay["original"]; !ok {
		t.Fatalf("original missing: %#v", overlay)
	}
}

func TestEnrichSkipsMalformedDescriptors(t *testing.T) {
	caption := captionWith(t,
		variant.Descriptor{Suffix: "thumb", URL: "/uploads/ok.webp", Width: 200, Height: 150, Format: "webp"},
		variant.Descriptor{Suffix: "", URL: "/uploads/nameless.webp"},
		variant.Descriptor{Suffix: "broken", URL: ""},
	)
	obj := mediaObject(caption)

	New(zerolog.Nop()).Enrich(obj)

	overlay := obj[OverlayKey].(map[string]any)
	if len(overlay) != 2 { // original + thumb
		t.Fatalf("overlay keys = %#v", overlay)
	}
	if _, ok := overlay["broken"]; ok {
		t.Fatal("url-less descriptor attached")
	}
}

func TestEnrichNestedRelationAndSequence(t *testing.T) {
	thumbCaption := captionWith(t,
		variant.Descriptor{Suffix: "thumb", URL: "/uploads/t.webp", Width: 200, Height: 150, Format: "webp"},
	)

	body := map[string]any{
		"data": map[string]any{
			"cover": mediaObject(thumbCaption),
			"gallery": map[string]any{
				"data": []any{
					mediaObject(""),
					mediaObject(thumbCaption),
				},
			},
		},
	}

	New(zerolog.Nop()).Enrich(body)

	data := body["data"].(map[string]any)
	cover := data["cover"].(map[string]any)
	if _, ok := cover[OverlayKey]; !ok {
		t.Fatal("cover not enriched")
	}

	items := data["gallery"].(map[string]any)["data"].([]any)
	for i, item := range items {
		obj := item.(map[string]any)
		overlay, ok := obj[OverlayKey].(map[string]any)
		if !ok {
			t.Fatalf("gallery item %d not enriched", i)
		}
		if _, ok := overlay["original"]; !ok {
			t.Fatalf("gallery item %d missing original", i)
		}
	}
	if _, ok := items[0].(map[string]any)[OverlayKey].(map[string]any)["thumb"]; ok {
		t.Fatal("item without manifest gained a thumb entry")
	}
	if _, ok := items[1].(map[string]any)[OverlayKey].(map[string]any)["thumb"]; !ok {
		t.Fatal("item with manifest missing thumb entry")
	}
}

func TestEnrichIsIdempotent(t *testing.T) {
	obj := mediaObject(captionWith(t,
		variant.Descriptor{Suffix: "thumb", URL: "/uploads/t.webp", Width: 200, Height: 150, Format: "webp"},
	))

	w := New(zerolog.Nop())
	w.Enrich(obj)
	first := obj[OverlayKey].(map[string]any)

	w.Enrich(obj)
	second := obj[OverlayKey].(map[string]any)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("overlay changed on second run: %#v vs %#v", first, second)
	}
	// Same map instance: the second run detected the overlay and left it alone.
	if reflect.ValueOf(first).Pointer() != reflect.ValueOf(second).Pointer() {
		t.Fatal("overlay replaced on second run")
	}
}

func TestEnrichSurvivesCycles(t *testing.T) {
	a := map[string]any{"name": "a"}
	b := map[string]any{"name": "b", "parent": a}
	a["child"] = b
	a["image"] = mediaObject("")

	// Must terminate and still enrich the reachable media object.
	New(zerolog.Nop()).Enrich(a)

	img := a["image"].(map[string]any)
	if _, ok := img[OverlayKey]; !ok {
		t.Fatal("media object inside cyclic structure not enriched")
	}
}

func TestEnrichIgnoresNonMediaNodes(t *testing.T) {
	body := map[string]any{
		"url":   "/not/an/image", // url but no mime/ext marker
		"title": "plain node",
		"file": map[string]any{
			"url":  "/uploads/report.pdf",
			"mime": "application/pdf",
		},
	}

	New(zerolog.Nop()).Enrich(body)

	if _, ok := body[OverlayKey]; ok {
		t.Fatal("marker-less node enriched")
	}
	if _, ok := body["file"].(map[string]any)[OverlayKey]; ok {
		t.Fatal("non-image mime enriched")
	}
}
