package registry

import (
	"testing"

	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

func TestSpecsForNormalizesAndDefaultsSuffix(t *testing.T) {
	r := New(map[string]EntitySpecs{
		"instructor": {
			Fields: map[string]variant.Spec{
				"avatar": {Width: 500, Height: 500, Format: variant.FormatWebP, Quality: 80},
			},
		},
	})

	specs := r.SpecsFor("instructor")
	if specs.Empty() {
		t.Fatal("instructor specs should not be empty")
	}
	avatar := specs.Fields["avatar"]
	if avatar.Suffix != "avatar" {
		t.Fatalf("Suffix = %q, want field name default", avatar.Suffix)
	}
	if avatar.Fit != variant.FitCover || avatar.Position != variant.PositionCenter {
		t.Fatalf("defaults not applied: %#v", avatar)
	}
}

func TestSpecsForUnconfiguredTypeIsEmpty(t *testing.T) {
	r := New(nil)
	specs := r.SpecsFor("nonexistent")
	if !specs.Empty() {
		t.Fatalf("unconfigured type yielded %#v", specs)
	}
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
entities:
  home-page:
    components:
      hero:
        repeatable: false
        fields:
          desktop: {width: 1920, height: 1080, fit: cover, format: webp, quality: 80}
          mobile: {width: 800, height: 600}
  instructor:
    fields:
      avatar: {width: 500, height: 500, format: webp, quality: 80}
    components:
      gallery:
        repeatable: true
        fields:
          picture: {width: 400, height: 300, format: jpeg}
`)

	r, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	home := r.SpecsFor("home-page")
	hero, ok := home.Components["hero"]
	if !ok {
		t.Fatal("hero component missing")
	}
	if hero.Repeatable {
		t.Fatal("hero should not be repeatable")
	}
	if hero.Fields["desktop"].Width != 1920 {
		t.Fatalf("desktop spec = %#v", hero.Fields["desktop"])
	}
	if hero.Fields["mobile"].Format != variant.FormatJPEG {
		t.Fatalf("mobile format default = %q", hero.Fields["mobile"].Format)
	}

	gallery := r.SpecsFor("instructor").Components["gallery"]
	if !gallery.Repeatable {
		t.Fatal("gallery should be repeatable")
	}
	if gallery.Fields["picture"].Suffix != "picture" {
		t.Fatalf("component field suffix = %q", gallery.Fields["picture"].Suffix)
	}

	if got := len(r.EntityTypes()); got != 2 {
		t.Fatalf("EntityTypes count = %d, want 2", got)
	}
}

func TestParseRejectsMissingDimensions(t *testing.T) {
	data := []byte(`
entities:
  instructor:
    fields:
      avatar: {width: 500}
`)
	if _, err := Parse(data); err == nil {
		t.Fatal("Parse accepted spec without height")
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("entities: [not a map")); err == nil {
		t.Fatal("Parse accepted malformed YAML")
	}
}
