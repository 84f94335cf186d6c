package editor

import (
	"errors"

	"github.com/a3tai/pdf-field-builder/internal/fields"
	"github.com/a3tai/pdf-field-builder/internal/geometry"
)

// Mode is the active interaction mode. At most one is active at a time.
type Mode string

const (
	ModeIdle          Mode = "idle"
	ModeDrawing       Mode = "drawing"
	ModeRepositioning Mode = "repositioning"
	ModeResizing      Mode = "resizing"
)

// Handle identifies a resize corner
type Handle string

const (
	HandleNW Handle = "nw"
	HandleNE Handle = "ne"
	HandleSW Handle = "sw"
	HandleSE Handle = "se"
)

// Handles lists the four corner handles
func Handles() []Handle {
	return []Handle{HandleNW, HandleNE, HandleSW, HandleSE}
}

// Valid reports whether h is a known corner
func (h Handle) Valid() bool {
	switch h {
	case HandleNW, HandleNE, HandleSW, HandleSE:
		return true
	}
	return false
}

func (h Handle) movesLeft() bool { return h == HandleNW || h == HandleSW }
func (h Handle) movesTop() bool  { return h == HandleNW || h == HandleNE }

// Button is the pointer button of an event
type Button int

const (
	ButtonPrimary   Button = 0
	ButtonAuxiliary Button = 1
	ButtonSecondary Button = 2
)

// Target is the metadata of the element under the pointer. An empty
// FieldID means the bare page surface.
type Target struct {
	FieldID string `json:"field_id,omitempty"`
	Handle  Handle `json:"handle,omitempty"`
}

// PointerEvent is one pointer event, positioned relative to the rendering
// surface in screen pixels.
type PointerEvent struct {
	Point  geometry.Point `json:"point"`
	Button Button         `json:"button"`
	Target Target         `json:"target"`
}

// PageBounds exposes the page geometry of the current document
type PageBounds interface {
	PageCount() int
	PageSize(page int) (geometry.Size, bool)
}

// Surface is the rendering surface that move/release listeners attach to.
// Capture is called when a gesture starts; the returned release func is
// called exactly once when that gesture ends, on every exit path.
type Surface interface {
	Capture() (release func())
}

type nopSurface struct{}

func (nopSurface) Capture() func() { return func() {} }

// State is a read-only snapshot of the editor
type State struct {
	Mode          Mode           `json:"mode"`
	Tool          fields.Type    `json:"tool,omitempty"`
	SelectedID    string         `json:"selected_id,omitempty"`
	Page          int            `json:"page"`
	Scale         float64        `json:"scale"`
	Preview       *geometry.Rect `json:"preview,omitempty"`
	Drawing       bool           `json:"drawing"`
	Repositioning bool           `json:"repositioning"`
	Resizing      bool           `json:"resizing"`
}

var (
	ErrGestureActive        = errors.New("another gesture is in progress")
	ErrConfirmationRequired = errors.New("destructive action requires confirmation")
	ErrNoSelection          = errors.New("no field is selected")
	ErrInvalidPage          = errors.New("page out of range")
	ErrUnknownHandle        = errors.New("unknown resize handle")
)

const (
	DefaultMinWidth  = 20.0
	DefaultMinHeight = 15.0
)
