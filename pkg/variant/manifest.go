package variant

import (
	"encoding/json"
	"time"
)

// Reserved top-level keys in the annotation blob. Everything else is carried
// through Manifest.Extra untouched.
const (
	keyProcessed   = "processed"
	keyProcessedAt = "processedAt"
	keyVariants    = "variants"
)

// EncodeManifest serializes a manifest into the annotation blob format:
//
//	{"processed":true,"processedAt":"...","variants":[...],...extra}
//
// The processed marker is always set and a timestamp is stamped if the
// manifest does not carry one yet.
func EncodeManifest(m Manifest) (string, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}

	processedAt := m.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	trueRaw, _ := json.Marshal(true)
	out[keyProcessed] = trueRaw

	atRaw, err := json.Marshal(processedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", err
	}
	out[keyProcessedAt] = atRaw

	variants := m.Variants
	if variants == nil {
		variants = []Descriptor{}
	}
	varRaw, err := json.Marshal(variants)
	if err != nil {
		return "", err
	}
	out[keyVariants] = varRaw

	encoded, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// DecodeManifest parses an annotation blob. The second return value is false
// for empty, malformed, or unprocessed annotations; decoding never fails
// loudly because the caption field carries arbitrary text in old rows.
func DecodeManifest(text string) (Manifest, bool) {
	if text == "" {
		return Manifest{}, false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Manifest{}, false
	}

	processedRaw, ok := raw[keyProcessed]
	if !ok {
		return Manifest{}, false
	}
	var processed bool
	if err := json.Unmarshal(processedRaw, &processed); err != nil || !processed {
		return Manifest{}, false
	}

	m := Manifest{Processed: true}

	if atRaw, ok := raw[keyProcessedAt]; ok {
		var atText string
		if err := json.Unmarshal(atRaw, &atText); err != nil {
			return Manifest{}, false
		}
		at, err := time.Parse(time.RFC3339Nano, atText)
		if err != nil {
			return Manifest{}, false
		}
		m.ProcessedAt = at
	}

	if varRaw, ok := raw[keyVariants]; ok {
		if err := json.Unmarshal(varRaw, &m.Variants); err != nil {
			return Manifest{}, false
		}
	}

	for k, v := range raw {
		if k == keyProcessed || k == keyProcessedAt || k == keyVariants {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage)
		}
		m.Extra[k] = v
	}

	return m, true
}

// DecodeAssetManifest decodes the manifest stored on an asset's caption.
func DecodeAssetManifest(a Asset) (Manifest, bool) {
	return DecodeManifest(a.Caption)
}
