package document

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Serialization errors. A failed serialization is fatal to the single save
// attempt that triggered it; the document stays dirty in memory.
var (
	ErrUnknownKind = errors.New("document: unknown kind")
	ErrNilScene    = errors.New("document: structured document has no scene")
)

// canonicalScene is the persisted shape of a structured document. Field order
// is fixed and Assets is a map, which encoding/json marshals with sorted
// keys, so two semantically identical scenes produce byte-identical output
// regardless of insertion order. Viewport and payload bytes are excluded.
type canonicalScene struct {
	Elements []Element         `json:"elements"`
	View     ViewSettings      `json:"view"`
	Assets   map[string]string `json:"assets,omitempty"` // asset id -> mime type
}

// Canonical returns the deterministic serialized form of doc used for change
// detection and as the stored content. Pure: equal output iff the documents
// are persistence-equivalent.
func Canonical(doc *Document) (string, error) {
	switch doc.Kind {
	case KindPlain:
		return doc.Text, nil
	case KindStructured:
		if doc.Scene == nil {
			return "", ErrNilScene
		}
		return canonicalizeScene(doc.Scene)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, doc.Kind)
	}
}

func canonicalizeScene(scene *Scene) (string, error) {
	cs := canonicalScene{
		Elements: scene.Elements,
		View:     scene.View,
	}
	if cs.Elements == nil {
		cs.Elements = []Element{}
	}
	if len(scene.Files) > 0 {
		cs.Assets = make(map[string]string, len(scene.Files))
		for id, p := range scene.Files {
			cs.Assets[id] = p.MimeType
		}
	}
	raw, err := json.Marshal(cs)
	if err != nil {
		return "", fmt.Errorf("document: marshal scene: %w", err)
	}
	return string(raw), nil
}

// ParseScene decodes a stored canonical form back into a Scene. Files is left
// nil; the returned reference map tells the caller which asset payloads to
// resolve from asset storage.
func ParseScene(canonical string) (*Scene, map[string]AssetReference, error) {
	var cs canonicalScene
	if err := json.Unmarshal([]byte(canonical), &cs); err != nil {
		return nil, nil, fmt.Errorf("document: parse scene: %w", err)
	}
	scene := &Scene{
		Elements: cs.Elements,
		View:     cs.View,
	}
	refs := make(map[string]AssetReference, len(cs.Assets))
	for id, mime := range cs.Assets {
		refs[id] = AssetReference{AssetID: id, MimeType: mime}
	}
	return scene, refs, nil
}

// Hash returns the sha256 hex digest of a canonical form. This is the
// storage-level change-detection token.
func Hash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
