// Package render derives the visual state of the active page from the field
// model. It never reads anything back from a view: every View is rebuilt from
// a Frame, with unchanged field boxes served from a per-field cache.
package render

import (
	"sync"

	"github.com/a3tai/pdf-field-builder/internal/fields"
	"github.com/a3tai/pdf-field-builder/internal/geometry"
)

// HandleSize is the on-screen edge length of a resize handle
const HandleSize = 8.0

const (
	emptyPageMessage  = "No fields on this page. Pick a field type and drag on the page to add one."
	noDocumentMessage = "No document loaded"
)

// Item is one field on the active page together with its view revision
type Item struct {
	Field    fields.Field
	Revision uint64
}

// Frame is everything needed to render the active page. Preview is the
// in-progress draw rectangle in document space.
type Frame struct {
	Page       int
	PageCount  int
	PageSize   geometry.Size
	Scale      float64
	Items      []Item
	SelectedID string
	Mode       string
	Tool       string
	Preview    *geometry.Rect
	Loaded     bool
	Dirty      bool
}

// HandleBox is a resize handle in screen space
type HandleBox struct {
	Handle string        `json:"handle"`
	Rect   geometry.Rect `json:"rect"`
}

// Box is the screen-space rendition of one field
type Box struct {
	FieldID   string        `json:"field_id"`
	Type      fields.Type   `json:"type"`
	Caption   string        `json:"caption"`
	Rect      geometry.Rect `json:"rect"`
	FontSize  float64       `json:"font_size"`
	Required  bool          `json:"required"`
	Temporary bool          `json:"temporary"`
	Selected  bool          `json:"selected"`
	Handles   []HandleBox   `json:"handles,omitempty"`
}

// View is the rendered state of the active page
type View struct {
	Page         int            `json:"page"`
	PageCount    int            `json:"page_count"`
	Scale        float64        `json:"scale"`
	Surface      geometry.Size  `json:"surface"`
	Boxes        []Box          `json:"boxes"`
	Preview      *geometry.Rect `json:"preview,omitempty"`
	Mode         string         `json:"mode"`
	Tool         string         `json:"tool,omitempty"`
	SelectedID   string         `json:"selected_id,omitempty"`
	EmptyMessage string         `json:"empty_message,omitempty"`
	Dirty        bool           `json:"dirty"`
}

type cached struct {
	revision uint64
	scale    float64
	box      Box
}

// Stats counts cache use across renders
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Renderer turns frames into views, reusing boxes whose field revision and
// scale did not change.
type Renderer struct {
	mu    sync.Mutex
	cache map[string]cached
	stats Stats
}

// NewRenderer creates a renderer with an empty cache
func NewRenderer() *Renderer {
	return &Renderer{cache: make(map[string]cached)}
}

// Render builds the view for a frame. Entries for fields that are no longer
// on the page are evicted.
func (r *Renderer) Render(f Frame) View {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := geometry.NewTransform(f.Scale)
	v := View{
		Page:       f.Page,
		PageCount:  f.PageCount,
		Scale:      t.Scale,
		Surface:    t.SizeToScreen(f.PageSize),
		Boxes:      make([]Box, 0, len(f.Items)),
		Mode:       f.Mode,
		Tool:       f.Tool,
		SelectedID: f.SelectedID,
		Dirty:      f.Dirty,
	}

	seen := make(map[string]struct{}, len(f.Items))
	for _, item := range f.Items {
		seen[item.Field.ID] = struct{}{}
		box := r.box(item, t)
		if item.Field.ID == f.SelectedID {
			box.Selected = true
			box.Handles = handles(box.Rect)
		}
		v.Boxes = append(v.Boxes, box)
	}
	for id := range r.cache {
		if _, ok := seen[id]; !ok {
			delete(r.cache, id)
		}
	}

	if f.Preview != nil {
		p := t.RectToScreen(*f.Preview)
		v.Preview = &p
	}

	switch {
	case !f.Loaded:
		v.EmptyMessage = noDocumentMessage
	case len(v.Boxes) == 0 && v.Preview == nil:
		v.EmptyMessage = emptyPageMessage
	}
	return v
}

func (r *Renderer) box(item Item, t geometry.Transform) Box {
	if c, ok := r.cache[item.Field.ID]; ok && c.revision == item.Revision && c.scale == t.Scale {
		r.stats.Hits++
		return c.box
	}
	r.stats.Misses++

	fld := item.Field
	caption := fld.Label
	if caption == "" {
		caption = fld.Name
	}
	box := Box{
		FieldID:   fld.ID,
		Type:      fld.Type,
		Caption:   caption,
		Rect:      t.RectToScreen(fld.Rect()),
		FontSize:  fld.FontSize * t.Scale,
		Required:  fld.Required,
		Temporary: fld.IsTemporary(),
	}
	r.cache[fld.ID] = cached{revision: item.Revision, scale: t.Scale, box: box}
	return box
}

func handles(rect geometry.Rect) []HandleBox {
	half := HandleSize / 2
	corners := []struct {
		name string
		at   geometry.Point
	}{
		{"nw", geometry.Point{X: rect.X, Y: rect.Y}},
		{"ne", geometry.Point{X: rect.X + rect.Width, Y: rect.Y}},
		{"sw", geometry.Point{X: rect.X, Y: rect.Y + rect.Height}},
		{"se", geometry.Point{X: rect.X + rect.Width, Y: rect.Y + rect.Height}},
	}
	out := make([]HandleBox, 0, len(corners))
	for _, c := range corners {
		out = append(out, HandleBox{
			Handle: c.name,
			Rect:   geometry.Rect{X: c.at.X - half, Y: c.at.Y - half, Width: HandleSize, Height: HandleSize},
		})
	}
	return out
}

// Stats returns the cache counters
func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Reset drops every cached box, e.g. after the collection was replaced
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]cached)
}
