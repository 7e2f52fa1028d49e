package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mediastack/image-variant-pipeline/internal/gateway"
	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

type fakeStore struct {
	assets    map[string]*variant.Asset
	files     map[string][]byte
	uploads   []gateway.UploadRequest
	findErr   error
	fetchErr  error
	uploadErr error
}

func (f *fakeStore) FindAssetByID(_ context.Context, id string) (*variant.Asset, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.assets[id], nil
}

func (f *fakeStore) FetchBytes(_ context.Context, url string) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("no file at %s", url)
	}
	return data, nil
}

func (f *fakeStore) UploadBytes(_ context.Context, req gateway.UploadRequest) (*variant.Asset, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads = append(f.uploads, req)
	return &variant.Asset{
		ID:   fmt.Sprintf("derived-%d", len(f.uploads)),
		URL:  "/uploads/" + req.Filename,
		Name: req.Filename,
		Mime: req.Mime,
		Size: int64(len(req.Data)),
	}, nil
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func newStore(t *testing.T, width, height int) *fakeStore {
	t.Helper()
	return &fakeStore{
		assets: map[string]*variant.Asset{
			"src": {ID: "src", URL: "/uploads/photo.png", Mime: "image/png", Name: "photo.png"},
		},
		files: map[string][]byte{
			"/uploads/photo.png": pngBytes(t, width, height),
		},
	}
}

func newGenerator(store *fakeStore) *Generator {
	return New(store, store, store, zerolog.Nop())
}

func TestGenerateProducesDescriptor(t *testing.T) {
	store := newStore(t, 16, 12)
	g := newGenerator(store)

	d, err := g.Generate(context.Background(), "src", variant.Spec{
		Suffix: "thumb", Width: 8, Height: 6, Fit: variant.FitCover, Format: variant.FormatWebP, Quality: 80,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if d.Suffix != "thumb" || d.Width != 8 || d.Height != 6 || d.Format != "webp" {
		t.Fatalf("descriptor = %#v", d)
	}
	if d.URL != "/uploads/photo_thumb_8x6.webp" {
		t.Fatalf("URL = %q", d.URL)
	}
	if len(store.uploads) != 1 {
		t.Fatalf("uploads = %d", len(store.uploads))
	}
	up := store.uploads[0]
	if up.Filename != "photo_thumb_8x6.webp" || up.Mime != "image/webp" {
		t.Fatalf("upload = %#v", up)
	}
	if len(up.Data) == 0 {
		t.Fatal("no derived bytes uploaded")
	}
}

func TestGenerateNeverEnlarges(t *testing.T) {
	store := newStore(t, 10, 10)
	g := newGenerator(store)

	d, err := g.Generate(context.Background(), "src", variant.Spec{Suffix: "hero", Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if d.Width != 10 || d.Height != 10 {
		t.Fatalf("output %dx%d, want 10x10", d.Width, d.Height)
	}
	// The name stays deterministic in the requested dimensions.
	if store.uploads[0].Filename != "photo_hero_100x100.jpg" {
		t.Fatalf("filename = %q", store.uploads[0].Filename)
	}
}

func TestGenerateContainKeepsAspect(t *testing.T) {
	store := newStore(t, 20, 10)
	g := newGenerator(store)

	d, err := g.Generate(context.Background(), "src", variant.Spec{
		Suffix: "card", Width: 8, Height: 8, Fit: variant.FitContain,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if d.Width != 8 || d.Height != 4 {
		t.Fatalf("output %dx%d, want 8x4", d.Width, d.Height)
	}
}

func TestGenerateNamingIsIdempotent(t *testing.T) {
	store := newStore(t, 16, 16)
	g := newGenerator(store)
	spec := variant.Spec{Suffix: "avatar", Width: 8, Height: 8, Format: variant.FormatWebP}

	first, err := g.Generate(context.Background(), "src", spec)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	second, err := g.Generate(context.Background(), "src", spec)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if store.uploads[0].Filename != store.uploads[1].Filename {
		t.Fatalf("filenames differ: %q vs %q", store.uploads[0].Filename, store.uploads[1].Filename)
	}
	if first.Suffix != second.Suffix {
		t.Fatalf("suffixes differ: %q vs %q", first.Suffix, second.Suffix)
	}
}

func TestGenerateHashesNamelessSource(t *testing.T) {
	store := newStore(t, 8, 8)
	store.assets["src"].Name = ""
	g := newGenerator(store)

	if _, err := g.Generate(context.Background(), "src", variant.Spec{Suffix: "thumb", Width: 4, Height: 4}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	pattern := regexp.MustCompile(`^[0-9a-f]{12}_thumb_4x4\.jpg$`)
	if !pattern.MatchString(store.uploads[0].Filename) {
		t.Fatalf("filename = %q, want hash-based name", store.uploads[0].Filename)
	}
}

func TestGenerateFailureKinds(t *testing.T) {
	spec := variant.Spec{Suffix: "thumb", Width: 4, Height: 4}

	t.Run("source not found", func(t *testing.T) {
		g := newGenerator(&fakeStore{assets: map[string]*variant.Asset{}})
		if _, err := g.Generate(context.Background(), "missing", spec); !errors.Is(err, ErrSourceNotFound) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("not an image", func(t *testing.T) {
		store := newStore(t, 8, 8)
		store.assets["src"].Mime = "application/pdf"
		g := newGenerator(store)
		if _, err := g.Generate(context.Background(), "src", spec); !errors.Is(err, ErrSourceNotAnImage) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("fetch failed", func(t *testing.T) {
		store := newStore(t, 8, 8)
		store.fetchErr = errors.New("boom")
		g := newGenerator(store)
		if _, err := g.Generate(context.Background(), "src", spec); !errors.Is(err, ErrFetchFailed) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("transform failed on corrupt bytes", func(t *testing.T) {
		store := newStore(t, 8, 8)
		store.files["/uploads/photo.png"] = []byte("not a png")
		g := newGenerator(store)
		if _, err := g.Generate(context.Background(), "src", spec); !errors.Is(err, ErrTransformFailed) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("upload failed", func(t *testing.T) {
		store := newStore(t, 8, 8)
		store.uploadErr = errors.New("rejected")
		g := newGenerator(store)
		if _, err := g.Generate(context.Background(), "src", spec); !errors.Is(err, ErrUploadFailed) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("gateway unavailable", func(t *testing.T) {
		store := newStore(t, 8, 8)
		store.fetchErr = fmt.Errorf("%w: connection refused", gateway.ErrUnavailable)
		g := newGenerator(store)
		if _, err := g.Generate(context.Background(), "src", spec); !errors.Is(err, ErrGatewayUnavailable) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestFailureKindLabels(t *testing.T) {
	cases := map[string]error{
		"source_not_found":    ErrSourceNotFound,
		"source_not_an_image": ErrSourceNotAnImage,
		"fetch_failed":        ErrFetchFailed,
		"transform_failed":    ErrTransformFailed,
		"upload_failed":       ErrUploadFailed,
		"gateway_unavailable": ErrGatewayUnavailable,
		"unknown":             errors.New("anything else"),
	}
	for want, err := range cases {
		if got := FailureKind(fmt.Errorf("wrapped: %w", err)); got != want {
			t.Errorf("FailureKind(%v) = %q, want %q", err, got, want)
		}
	}
}
