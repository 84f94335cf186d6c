// Package editor implements the pointer-driven interaction state machine of
// the field builder: drawing new fields, repositioning and resizing existing
// ones, selection, drag-and-drop creation and zoom.
//
// An Editor is not safe for concurrent use. The owning session serializes
// every call, which gives the single-threaded event model the interaction
// rules depend on.
package editor

import (
	"fmt"
	"math"

	"github.com/a3tai/pdf-field-builder/internal/fields"
	"github.com/a3tai/pdf-field-builder/internal/geometry"
	"github.com/a3tai/pdf-field-builder/internal/notify"
)

// Options configures a new Editor
type Options struct {
	Fields    *fields.Collection
	Pages     PageBounds
	Zoom      geometry.ZoomPolicy
	Notifier  notify.Notifier
	Surface   Surface
	MinWidth  float64
	MinHeight float64
	Scale     float64
}

// Editor owns the interaction state for one template session
type Editor struct {
	fields    *fields.Collection
	pages     PageBounds
	zoom      geometry.ZoomPolicy
	notifier  notify.Notifier
	surface   Surface
	minWidth  float64
	minHeight float64

	page     int
	scale    float64
	tool     fields.Type
	selected string
	gesture  *gesture
}

// gesture is one pointer-down..pointer-up sequence. start is the screen
// position of the pointer-down, origin the field box at that moment.
type gesture struct {
	mode    Mode
	fieldID string
	handle  Handle
	tool    fields.Type
	start   geometry.Point
	origin  geometry.Rect
	anchor  geometry.Point
	current geometry.Point
	release func()
}

// New creates an editor on page 1
func New(opts Options) (*Editor, error) {
	if opts.Fields == nil {
		return nil, fmt.Errorf("editor requires a field collection")
	}
	if opts.Zoom.Min <= 0 || opts.Zoom.Max < opts.Zoom.Min || opts.Zoom.Step <= 1 {
		opts.Zoom = geometry.DefaultZoomPolicy()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.Surface == nil {
		opts.Surface = nopSurface{}
	}
	if opts.MinWidth <= 0 {
		opts.MinWidth = DefaultMinWidth
	}
	if opts.MinHeight <= 0 {
		opts.MinHeight = DefaultMinHeight
	}
	scale := 1.0
	if opts.Scale > 0 {
		scale = opts.Zoom.Clamp(opts.Scale)
	}

	return &Editor{
		fields:    opts.Fields,
		pages:     opts.Pages,
		zoom:      opts.Zoom,
		notifier:  opts.Notifier,
		surface:   opts.Surface,
		minWidth:  opts.MinWidth,
		minHeight: opts.MinHeight,
		page:      1,
		scale:     scale,
	}, nil
}

// Fields returns the collection the editor mutates
func (e *Editor) Fields() *fields.Collection {
	return e.fields
}

// Transform returns the current document/screen transform
func (e *Editor) Transform() geometry.Transform {
	return geometry.NewTransform(e.scale)
}

// SetPageBounds swaps the page geometry, e.g. after a document load
func (e *Editor) SetPageBounds(pages PageBounds) {
	e.pages = pages
}

// State returns a snapshot of the interaction state
func (e *Editor) State() State {
	s := State{
		Mode:       ModeIdle,
		Tool:       e.tool,
		SelectedID: e.selected,
		Page:       e.page,
		Scale:      e.scale,
	}
	if g := e.gesture; g != nil {
		s.Mode = g.mode
		if g.mode == ModeDrawing {
			r := geometry.RectFromCorners(g.anchor, g.current)
			if size, ok := e.pageSize(); ok {
				r = r.Intersect(size)
			}
			s.Preview = &r
		}
	}
	s.Drawing = s.Mode == ModeDrawing
	s.Repositioning = s.Mode == ModeRepositioning
	s.Resizing = s.Mode == ModeResizing
	return s
}

// Mode returns the active interaction mode
func (e *Editor) Mode() Mode {
	if e.gesture == nil {
		return ModeIdle
	}
	return e.gesture.mode
}

// Selected returns the selected field id, or ""
func (e *Editor) Selected() string {
	return e.selected
}

// Page returns the active page number
func (e *Editor) Page() int {
	return e.page
}

// Scale returns the current zoom scale
func (e *Editor) Scale() float64 {
	return e.scale
}

// Tool returns the armed field type, or ""
func (e *Editor) Tool() fields.Type {
	return e.tool
}

// SelectTool arms a field type for drawing. Arming a tool ends any gesture
// in progress.
func (e *Editor) SelectTool(t fields.Type) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", fields.ErrUnknownType, t)
	}
	e.end()
	e.tool = t
	return nil
}

// ClearTool disarms the drawing tool
func (e *Editor) ClearTool() {
	e.tool = ""
}

func (e *Editor) pageSize() (geometry.Size, bool) {
	if e.pages == nil {
		return geometry.Size{}, false
	}
	size, ok := e.pages.PageSize(e.page)
	if !ok || size.Empty() {
		return geometry.Size{}, false
	}
	return size, true
}

func (e *Editor) begin(g *gesture) {
	g.release = e.surface.Capture()
	e.gesture = g
}

// end drops the active gesture and releases its surface capture. A pending
// draw is discarded; moves and resizes keep what was already applied.
func (e *Editor) end() {
	g := e.gesture
	if g == nil {
		return
	}
	e.gesture = nil
	if g.release != nil {
		g.release()
		g.release = nil
	}
}

// PointerDown starts a gesture, changes the selection, or does nothing,
// depending on the target under the pointer and the armed tool.
func (e *Editor) PointerDown(ev PointerEvent) error {
	if e.gesture != nil {
		return ErrGestureActive
	}

	if id := ev.Target.FieldID; id != "" {
		f, ok := e.fields.Get(id)
		if !ok || f.PageNumber != e.page {
			return nil
		}
		if ev.Target.Handle != "" && !ev.Target.Handle.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownHandle, ev.Target.Handle)
		}
		e.selected = id
		if ev.Button != ButtonPrimary {
			return nil
		}
		mode := ModeRepositioning
		if ev.Target.Handle != "" {
			mode = ModeResizing
		}
		e.begin(&gesture{
			mode:    mode,
			fieldID: id,
			handle:  ev.Target.Handle,
			start:   ev.Point,
			origin:  f.Rect(),
		})
		return nil
	}

	if e.tool != "" && ev.Button == ButtonPrimary {
		anchor := e.Transform().ToDoc(ev.Point)
		e.selected = ""
		e.begin(&gesture{
			mode:    ModeDrawing,
			tool:    e.tool,
			start:   ev.Point,
			anchor:  anchor,
			current: anchor,
		})
		return nil
	}

	e.selected = ""
	return nil
}

// PointerMove updates the active gesture. Moves without a gesture are ignored.
func (e *Editor) PointerMove(ev PointerEvent) error {
	g := e.gesture
	if g == nil {
		return nil
	}

	switch g.mode {
	case ModeDrawing:
		g.current = e.Transform().ToDoc(ev.Point)
		return nil
	case ModeRepositioning:
		return e.applyMove(g, ev.Point)
	case ModeResizing:
		return e.applyResize(g, ev.Point)
	}
	return nil
}

// PointerUp completes the active gesture
func (e *Editor) PointerUp(ev PointerEvent) error {
	g := e.gesture
	if g == nil {
		return nil
	}

	switch g.mode {
	case ModeDrawing:
		g.current = e.Transform().ToDoc(ev.Point)
		e.end()
		return e.commitDraw(g)
	case ModeRepositioning:
		err := e.applyMove(g, ev.Point)
		e.end()
		if err != nil {
			return err
		}
		e.notifier.Notify(notify.LevelSuccess, "Field position updated")
	case ModeResizing:
		err := e.applyResize(g, ev.Point)
		e.end()
		if err != nil {
			return err
		}
		e.notifier.Notify(notify.LevelSuccess, "Field resized")
	}
	return nil
}

// Cancel ends any gesture, disarms the tool and clears the selection.
// Changes already applied by a move or resize stay in the model.
func (e *Editor) Cancel() {
	e.end()
	e.tool = ""
	e.selected = ""
}

// LostCapture is called when the surface loses pointer capture (pointer left
// the window, focus lost). The gesture ends without a commit; the selection
// is kept.
func (e *Editor) LostCapture() {
	e.end()
}

func (e *Editor) applyMove(g *gesture, p geometry.Point) error {
	f, ok := e.fields.Get(g.fieldID)
	if !ok {
		e.end()
		return nil
	}
	delta := e.Transform().DeltaToDoc(p.Sub(g.start))
	pos := g.origin.Origin().Add(delta)
	if size, ok := e.pageSize(); ok {
		pos = geometry.ClampPosition(pos, f.Size(), size)
	}
	if pos == f.Position() {
		return nil
	}
	_, err := e.fields.Update(g.fieldID, fields.MovePatch(pos))
	return err
}

func (e *Editor) applyResize(g *gesture, p geometry.Point) error {
	f, ok := e.fields.Get(g.fieldID)
	if !ok {
		e.end()
		return nil
	}
	delta := e.Transform().DeltaToDoc(p.Sub(g.start))
	r := e.resizeRect(g.origin, g.handle, delta)
	if r == f.Rect() {
		return nil
	}
	_, err := e.fields.Update(g.fieldID, fields.RectPatch(r))
	return err
}

// resizeRect moves the corner named by h by delta while the opposite corner
// stays put. The result never drops below the minimum on-screen size and is
// kept inside the page when its bounds are known.
func (e *Editor) resizeRect(origin geometry.Rect, h Handle, delta geometry.Point) geometry.Rect {
	left, top := origin.X, origin.Y
	right, bottom := origin.X+origin.Width, origin.Y+origin.Height

	if h.movesLeft() {
		left += delta.X
	} else {
		right += delta.X
	}
	if h.movesTop() {
		top += delta.Y
	} else {
		bottom += delta.Y
	}

	page, bounded := e.pageSize()
	if bounded {
		left = math.Max(left, 0)
		top = math.Max(top, 0)
		right = math.Min(right, page.Width)
		bottom = math.Min(bottom, page.Height)
	}

	minW := e.minWidth / e.scale
	minH := e.minHeight / e.scale
	if right-left < minW {
		if h.movesLeft() {
			left = right - minW
		} else {
			right = left + minW
		}
	}
	if bottom-top < minH {
		if h.movesTop() {
			top = bottom - minH
		} else {
			bottom = top + minH
		}
	}

	r := geometry.Rect{X: left, Y: top, Width: right - left, Height: bottom - top}
	if bounded {
		pos := geometry.ClampPosition(r.Origin(), r.Size(), page)
		r.X, r.Y = pos.X, pos.Y
	}
	return r
}

func (e *Editor) commitDraw(g *gesture) error {
	r := geometry.RectFromCorners(g.anchor, g.current)
	if size, ok := e.pageSize(); ok {
		r = r.Intersect(size)
	}

	screen := e.Transform().SizeToScreen(r.Size())
	if screen.Width < e.minWidth || screen.Height < e.minHeight {
		e.notifier.Notify(notify.LevelWarning, fmt.Sprintf(
			"Field is too small. Drag to draw an area of at least %gx%g pixels.", e.minWidth, e.minHeight))
		return nil
	}

	f, created, err := e.fields.Add(fields.Field{
		Type:       g.tool,
		PageNumber: e.page,
		X:          r.X,
		Y:          r.Y,
		Width:      r.Width,
		Height:     r.Height,
	})
	if err != nil {
		return err
	}
	e.tool = ""
	e.selected = f.ID
	if created {
		e.notifier.Notify(notify.LevelSuccess, "Field created")
	}
	return nil
}

// Select marks a field as selected, switching to its page if needed
func (e *Editor) Select(id string) error {
	if e.gesture != nil {
		return ErrGestureActive
	}
	f, ok := e.fields.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", fields.ErrFieldNotFound, id)
	}
	e.page = f.PageNumber
	e.selected = id
	return nil
}

// Deselect clears the selection. A gesture in progress continues.
func (e *Editor) Deselect() {
	e.selected = ""
}

// Delete removes a field. The caller must pass confirmed=true once the user
// has acknowledged the destructive action.
func (e *Editor) Delete(id string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	if g := e.gesture; g != nil && g.fieldID == id {
		e.end()
	}
	if err := e.fields.Remove(id); err != nil {
		return err
	}
	if e.selected == id {
		e.selected = ""
	}
	e.notifier.Notify(notify.LevelSuccess, "Field deleted")
	return nil
}

// DeleteSelected removes the selected field
func (e *Editor) DeleteSelected(confirmed bool) error {
	if e.selected == "" {
		return ErrNoSelection
	}
	return e.Delete(e.selected, confirmed)
}

// Drop creates a field of type t with its default size, top-left corner at
// the screen-relative drop point. An optional name is carried from the
// palette entry.
func (e *Editor) Drop(t fields.Type, p geometry.Point, name string) (fields.Field, error) {
	if e.gesture != nil {
		return fields.Field{}, ErrGestureActive
	}
	if !t.Valid() {
		return fields.Field{}, fmt.Errorf("%w: %q", fields.ErrUnknownType, t)
	}

	size := t.DefaultSize()
	pos := e.Transform().ToDoc(p)
	if page, ok := e.pageSize(); ok {
		pos = geometry.ClampPosition(pos, size, page)
	}

	f, created, err := e.fields.Add(fields.Field{
		Type:       t,
		Name:       name,
		PageNumber: e.page,
		X:          pos.X,
		Y:          pos.Y,
		Width:      size.Width,
		Height:     size.Height,
	})
	if err != nil {
		return fields.Field{}, err
	}
	e.selected = f.ID
	if created {
		e.notifier.Notify(notify.LevelSuccess, "Field created")
	}
	return f, nil
}

// UpdateField applies a property edit from the properties panel. Moving a
// field to another page drops it from the selection.
func (e *Editor) UpdateField(id string, p fields.Patch) (fields.Field, error) {
	f, err := e.fields.Update(id, p)
	if err != nil {
		return fields.Field{}, err
	}
	if e.selected == id && f.PageNumber != e.page {
		e.selected = ""
	}
	return f, nil
}

// SetPage switches the active page. Any gesture ends and the selection is
// cleared.
func (e *Editor) SetPage(page int) error {
	if page < 1 || (e.pages != nil && e.pages.PageCount() > 0 && page > e.pages.PageCount()) {
		return fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}
	e.end()
	e.page = page
	e.selected = ""
	return nil
}

// SetScale sets the zoom scale, clamped to the zoom policy
func (e *Editor) SetScale(scale float64) float64 {
	e.end()
	e.scale = e.zoom.Clamp(scale)
	return e.scale
}

// ZoomIn multiplies the scale by the zoom step
func (e *Editor) ZoomIn() float64 {
	return e.SetScale(e.zoom.ZoomIn(e.scale))
}

// ZoomOut divides the scale by the zoom step
func (e *Editor) ZoomOut() float64 {
	return e.SetScale(e.zoom.ZoomOut(e.scale))
}

// FitWidth scales the active page to the container width
func (e *Editor) FitWidth(containerWidth, padding float64) float64 {
	size, _ := e.pageSize()
	return e.SetScale(e.zoom.FitWidth(containerWidth, padding, size))
}

// FitPage scales the active page to fit entirely inside the container
func (e *Editor) FitPage(container geometry.Size, padding float64) float64 {
	size, _ := e.pageSize()
	return e.SetScale(e.zoom.FitPage(container, padding, size))
}

// Reset returns to idle after the collection has been replaced. The page is
// kept when it still exists.
func (e *Editor) Reset() {
	e.end()
	e.tool = ""
	e.selected = ""
	if e.pages != nil && e.pages.PageCount() > 0 && e.page > e.pages.PageCount() {
		e.page = 1
	}
}

// Reselect restores a selection after the collection was rebuilt, if the
// field still exists on the active page.
func (e *Editor) Reselect(id string) {
	if f, ok := e.fields.Get(id); ok && f.PageNumber == e.page {
		e.selected = id
		return
	}
	e.selected = ""
}

// Rename follows a field id change (temporary id replaced by a server id)
// in the selection and in a gesture in progress.
func (e *Editor) Rename(oldID, newID string) {
	if e.selected == oldID {
		e.selected = newID
	}
	if g := e.gesture; g != nil && g.fieldID == oldID {
		g.fieldID = newID
	}
}

// Capturing reports whether a gesture currently holds the surface
func (e *Editor) Capturing() bool {
	return e.gesture != nil
}
