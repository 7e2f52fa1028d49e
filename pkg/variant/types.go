package variant

import (
	"encoding/json"
	"time"
)

// Fit strategies for resizing into the target box.
const (
	FitCover   = "cover"   // fill the box, crop overflow
	FitContain = "contain" // fit inside the box, keep aspect ratio
	FitFill    = "fill"    // stretch to the exact box
)

// Output formats.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatWebP = "webp"
)

// Anchor positions for cover crops.
const (
	PositionCenter      = "center"
	PositionTop         = "top"
	PositionBottom      = "bottom"
	PositionLeft        = "left"
	PositionRight       = "right"
	PositionTopLeft     = "top-left"
	PositionTopRight    = "top-right"
	PositionBottomLeft  = "bottom-left"
	PositionBottomRight = "bottom-right"
)

// Spec is a declarative target description for one derived image. Specs are
// defined in the registry at startup and never change afterwards.
type Spec struct {
	Suffix   string `json:"suffix" yaml:"suffix"`
	Width    int    `json:"width" yaml:"width"`
	Height   int    `json:"height" yaml:"height"`
	Fit      string `json:"fit,omitempty" yaml:"fit"`
	Position string `json:"position,omitempty" yaml:"position"`
	Format   string `json:"format,omitempty" yaml:"format"`
	Quality  int    `json:"quality,omitempty" yaml:"quality"`
}

// Normalize returns a copy with defaults applied for the optional knobs.
func (s Spec) Normalize() Spec {
	if s.Fit == "" {
		s.Fit = FitCover
	}
	if s.Position == "" {
		s.Position = PositionCenter
	}
	if s.Format == "" {
		s.Format = FormatJPEG
	}
	if s.Quality <= 0 || s.Quality > 100 {
		s.Quality = 85
	}
	return s
}

// Ext returns the file extension for the spec's output format.
func (s Spec) Ext() string {
	if s.Format == FormatJPEG || s.Format == "" {
		return "jpg"
	}
	return s.Format
}

// Descriptor is the result of generating one variant. Immutable once created;
// regenerating the same (asset, spec) pair replaces the descriptor for its
// suffix rather than appending a duplicate.
type Descriptor struct {
	Suffix string `json:"suffix"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// WellFormed reports whether the descriptor is usable by consumers.
func (d Descriptor) WellFormed() bool {
	return d.Suffix != "" && d.URL != ""
}

// Manifest is the full set of descriptors for one asset, persisted as a JSON
// blob inside the asset's caption field. Unknown top-level keys survive a
// decode/encode cycle in Extra so that data written by other tools is not
// stripped.
type Manifest struct {
	Processed   bool
	ProcessedAt time.Time
	Variants    []Descriptor
	Extra       map[string]json.RawMessage
}

// Merge inserts d, replacing any existing descriptor with the same suffix.
func (m *Manifest) Merge(d Descriptor) {
	for i, existing := range m.Variants {
		if existing.Suffix == d.Suffix {
			m.Variants[i] = d
			return
		}
	}
	m.Variants = append(m.Variants, d)
}

// MergeAll merges descriptors in order, overwrite-by-suffix.
func (m *Manifest) MergeAll(ds []Descriptor) {
	for _, d := range ds {
		m.Merge(d)
	}
}

// Lookup returns the descriptor for a suffix.
func (m *Manifest) Lookup(suffix string) (Descriptor, bool) {
	for _, d := range m.Variants {
		if d.Suffix == suffix {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Asset is the view of a stored file this pipeline reads and annotates. The
// persistence layer owns the record; only Caption is ever written back.
type Asset struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Mime    string `json:"mime"`
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	AltText string `json:"alt_text,omitempty"`
	Caption string `json:"caption,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

// IsImage reports whether the asset's mime type marks it as an image.
func (a Asset) IsImage() bool {
	return len(a.Mime) > 6 && a.Mime[:6] == "image/"
}
