package document

import "time"

// Kind selects the serialization and asset path for a document.
type Kind string

const (
	KindPlain      Kind = "plain"      // Markdown / plain-text note
	KindStructured Kind = "structured" // whiteboard scene
)

// Valid reports whether k is a known document kind.
func (k Kind) Valid() bool {
	return k == KindPlain || k == KindStructured
}

// Document is a versionable unit of content. ID is immutable for the
// document's lifetime. Exactly one of Text/Scene is meaningful, per Kind.
type Document struct {
	ID    string
	Kind  Kind
	Title string
	Text  string // KindPlain
	Scene *Scene // KindStructured
}

// Payload is an in-memory binary asset belonging to a scene.
type Payload struct {
	MimeType string
	Data     []byte
}

// AssetReference stands in for a binary payload in persisted structured
// content. The payload itself lives in asset storage addressed by AssetID.
type AssetReference struct {
	AssetID   string
	MimeType  string
	CreatedAt time.Time
}

// Element is a single drawable item in a whiteboard scene. Order within
// Scene.Elements is z-order and is persistence-relevant.
type Element struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Angle       float64 `json:"angle,omitempty"`
	StrokeColor string  `json:"strokeColor,omitempty"`
	FillColor   string  `json:"fillColor,omitempty"`
	Text        string  `json:"text,omitempty"`
	// Points holds the stroke path for freedraw/line elements.
	Points [][2]float64 `json:"points,omitempty"`
	// AssetID links an image element to its binary payload.
	AssetID string `json:"assetId,omitempty"`
}

// ViewSettings is the persistence-relevant portion of a scene's appearance.
type ViewSettings struct {
	Background string `json:"background"`
	GridSize   int    `json:"gridSize"`
	FontFamily string `json:"fontFamily"`
}

// Viewport is per-session view state (scroll, zoom, selection). It is never
// part of the canonical form: two scenes that differ only in Viewport are
// persistence-equivalent.
type Viewport struct {
	ScrollX   float64
	ScrollY   float64
	Zoom      float64
	Selection []string
}

// Scene is the in-memory form of a structured document. Files maps asset id
// to the raw payload; persisted content carries references instead.
type Scene struct {
	Elements []Element
	View     ViewSettings
	Viewport Viewport
	Files    map[string]Payload
}
