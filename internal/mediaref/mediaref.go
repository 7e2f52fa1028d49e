// Package mediaref normalizes the heterogeneous "pointer to a media asset"
// shapes that arrive in mutation payloads into one canonical asset ID.
//
// A media field may carry a bare ID string, an object that already holds an
// ID, or a relation operation ("connect"/"set") naming one or more of either.
// All call sites go through Classify/Resolve instead of sniffing shapes
// themselves.
package mediaref

// Kind tags the recognized reference shapes.
type Kind int

const (
	KindNone     Kind = iota // unrecognized or empty
	KindBare                 // "abc"
	KindAttached             // {documentId: "abc", ...}
	KindConnect              // {connect: ["abc", {documentId: "def"}]}
	KindSet                  // {set: [...]} same payload as connect
)

// Reference is the normalized form of a media field value.
type Reference struct {
	Kind Kind
	IDs  []string
}

// Classify normalizes a decoded JSON value into a Reference. Unrecognized
// shapes classify as KindNone with no IDs; that is a valid outcome, not an
// error.
func Classify(v any) Reference {
	switch val := v.(type) {
	case string:
		if val == "" {
			return Reference{Kind: KindNone}
		}
		return Reference{Kind: KindBare, IDs: []string{val}}
	case map[string]any:
		if id := objectID(val); id != "" {
			return Reference{Kind: KindAttached, IDs: []string{id}}
		}
		if ids := operationIDs(val["connect"]); len(ids) > 0 {
			return Reference{Kind: KindConnect, IDs: ids}
		}
		if ids := operationIDs(val["set"]); len(ids) > 0 {
			return Reference{Kind: KindSet, IDs: ids}
		}
	}
	return Reference{Kind: KindNone}
}

// Resolve returns the canonical asset ID for a media field value. When the
// reference names several assets the first one wins: every field maps to
// exactly one primary image and one variant set, so later entries are
// deliberately ignored. The second return value is false when there is
// nothing to resolve.
func Resolve(v any) (string, bool) {
	ref := Classify(v)
	if len(ref.IDs) == 0 {
		return "", false
	}
	return ref.IDs[0], true
}

// objectID extracts an ID carried directly on an object.
func objectID(obj map[string]any) string {
	if id, ok := obj["documentId"].(string); ok && id != "" {
		return id
	}
	if id, ok := obj["id"].(string); ok && id != "" {
		return id
	}
	return ""
}

// operationIDs extracts the IDs named by a connect/set operation payload,
// which is a list of bare IDs or ID-carrying objects.
func operationIDs(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var ids []string
	for _, item := range items {
		switch entry := item.(type) {
		case string:
			if entry != "" {
				ids = append(ids, entry)
			}
		case map[string]any:
			if id := objectID(entry); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
