// Package session ties one template editing session together: the field
// collection, the interaction editor, the renderer and the persistence
// backend. Every entry point takes the session lock, so the editor sees one
// event at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/a3tai/pdf-field-builder/internal/bridge"
	"github.com/a3tai/pdf-field-builder/internal/document"
	"github.com/a3tai/pdf-field-builder/internal/editor"
	"github.com/a3tai/pdf-field-builder/internal/fields"
	"github.com/a3tai/pdf-field-builder/internal/geometry"
	"github.com/a3tai/pdf-field-builder/internal/notify"
	"github.com/a3tai/pdf-field-builder/internal/render"
)

var (
	ErrNotLoaded    = errors.New("no template loaded")
	ErrSaveInFlight = errors.New("a save is already in progress")
	ErrStaleLoad    = errors.New("load superseded by a newer one")
	ErrNotFound     = errors.New("session not found")
	ErrNoBackend    = errors.New("session has no persistence backend")
)

// Backend loads and saves templates. *bridge.Bridge implements it.
type Backend interface {
	Load(ctx context.Context, templateID string) (bridge.Snapshot, error)
	Save(ctx context.Context, templateID string, list []fields.Field) (bridge.SaveResult, error)
	DetectWidgets(ctx context.Context, tpl bridge.Template) ([]fields.Field, error)
}

// PublishFunc receives the state of a session after every change
type PublishFunc func(sessionID string, st State)

// Options configures a session
type Options struct {
	Backend        Backend
	Logger         *zap.Logger
	Zoom           geometry.ZoomPolicy
	FitPadding     float64
	NotifyCapacity int
	Publish        PublishFunc
	IDGenerator    func() string
}

// State is what clients see of a session
type State struct {
	SessionID    string      `json:"session_id"`
	Seq          uint64      `json:"seq"`
	TemplateID   string      `json:"template_id,omitempty"`
	TemplateName string      `json:"template_name,omitempty"`
	Loaded       bool        `json:"loaded"`
	Loading      bool        `json:"loading"`
	Saving       bool        `json:"saving"`
	FieldCount   int         `json:"field_count"`
	Captures     int64       `json:"captures"`
	View         render.View `json:"view"`
}

// Session is one template being edited
type Session struct {
	id         string
	backend    Backend
	logger     *zap.Logger
	publish    PublishFunc
	fitPadding float64

	pubMu sync.Mutex

	mu       sync.Mutex
	seq      uint64
	fields   *fields.Collection
	editor   *editor.Editor
	renderer *render.Renderer
	notes    *notify.Queue
	surface  *captureCounter

	template   bridge.Template
	templateID string
	geometry   document.Geometry
	loaded     bool
	loading    bool
	saving     bool
	loadSeq    uint64
	lastActive time.Time
}

// captureCounter stands in for the pointer surface of a remote client
type captureCounter struct {
	active atomic.Int64
}

func (c *captureCounter) Capture() func() {
	c.active.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { c.active.Add(-1) })
	}
}

// New creates an empty session
func New(id string, opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.FitPadding <= 0 {
		opts.FitPadding = geometry.DefaultFitMargin
	}
	logger := opts.Logger.With(zap.String("session", id))

	var colOpts []fields.Option
	if opts.IDGenerator != nil {
		colOpts = append(colOpts, fields.WithIDGenerator(opts.IDGenerator))
	}
	col := fields.NewCollection(colOpts...)
	notes := notify.NewQueue(opts.NotifyCapacity, logger)
	surface := &captureCounter{}

	ed, err := editor.New(editor.Options{
		Fields:   col,
		Zoom:     opts.Zoom,
		Notifier: notes,
		Surface:  surface,
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		id:         id,
		backend:    opts.Backend,
		logger:     logger,
		publish:    opts.Publish,
		fitPadding: opts.FitPadding,
		fields:     col,
		editor:     ed,
		renderer:   render.NewRenderer(),
		notes:      notes,
		surface:    surface,
		lastActive: time.Now(),
	}, nil
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// LastActive returns the time of the last call into the session
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// stateLocked builds the client state. s.mu must be held.
func (s *Session) stateLocked() State {
	es := s.editor.State()

	page := s.fields.ListByPage(es.Page)
	items := make([]render.Item, 0, len(page))
	for _, f := range page {
		rev, _ := s.fields.Revision(f.ID)
		items = append(items, render.Item{Field: f, Revision: rev})
	}
	size, _ := s.geometry.PageSize(es.Page)

	view := s.renderer.Render(render.Frame{
		Page:       es.Page,
		PageCount:  s.geometry.PageCount(),
		PageSize:   size,
		Scale:      es.Scale,
		Items:      items,
		SelectedID: es.SelectedID,
		Mode:       string(es.Mode),
		Tool:       string(es.Tool),
		Preview:    es.Preview,
		Loaded:     s.loaded,
		Dirty:      s.fields.Dirty(),
	})

	return State{
		SessionID:    s.id,
		Seq:          s.seq,
		TemplateID:   s.templateID,
		TemplateName: s.template.Name,
		Loaded:       s.loaded,
		Loading:      s.loading,
		Saving:       s.saving,
		FieldCount:   s.fields.Len(),
		Captures:     s.surface.active.Load(),
		View:         view,
	}
}

// do runs fn under the session lock and publishes the resulting state.
// pubMu is taken before mu is released, so states are published in the
// order they were produced and the last one published is the current one.
func (s *Session) do(fn func() error) (State, error) {
	s.mu.Lock()
	s.lastActive = time.Now()
	err := fn()
	s.seq++
	st := s.stateLocked()
	s.pubMu.Lock()
	s.mu.Unlock()

	if s.publish != nil {
		s.publish(s.id, st)
	}
	s.pubMu.Unlock()
	return st, err
}

// Refresh publishes the current state again, for subscribers that just
// connected
func (s *Session) Refresh() State {
	st, _ := s.do(func() error { return nil })
	return st
}

// State returns the current state without changing anything
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Notifications drains the pending user notifications
func (s *Session) Notifications() []notify.Notification {
	return s.notes.Drain()
}

// Fields returns every field of the session
func (s *Session) Fields() []fields.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields.All()
}

// Field returns one field
func (s *Session) Field(id string) (fields.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields.Get(id)
	if !ok {
		return fields.Field{}, fmt.Errorf("%w: %s", fields.ErrFieldNotFound, id)
	}
	return f, nil
}

// Template returns the metadata of the loaded template
func (s *Session) Template() (bridge.Template, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.template, s.loaded
}

// SelectTool arms a field type; an empty type disarms
func (s *Session) SelectTool(t fields.Type) (State, error) {
	return s.do(func() error {
		if t == "" {
			s.editor.ClearTool()
			return nil
		}
		return s.editor.SelectTool(t)
	})
}

// PointerDown forwards a pointer-down event
func (s *Session) PointerDown(ev editor.PointerEvent) (State, error) {
	return s.do(func() error { return s.editor.PointerDown(ev) })
}

// PointerMove forwards a pointer-move event
func (s *Session) PointerMove(ev editor.PointerEvent) (State, error) {
	return s.do(func() error { return s.editor.PointerMove(ev) })
}

// PointerUp forwards a pointer-up event
func (s *Session) PointerUp(ev editor.PointerEvent) (State, error) {
	return s.do(func() error { return s.editor.PointerUp(ev) })
}

// LostCapture ends a gesture without committing it
func (s *Session) LostCapture() State {
	st, _ := s.do(func() error {
		s.editor.LostCapture()
		return nil
	})
	return st
}

// Cancel ends any gesture, disarms the tool and clears the selection
func (s *Session) Cancel() State {
	st, _ := s.do(func() error {
		s.editor.Cancel()
		return nil
	})
	return st
}

// Select selects a field; an empty id deselects
func (s *Session) Select(id string) (State, error) {
	return s.do(func() error {
		if id == "" {
			s.editor.Deselect()
			return nil
		}
		return s.editor.Select(id)
	})
}

// Drop creates a field of type t at a screen point of the active page
func (s *Session) Drop(t fields.Type, p geometry.Point, name string) (fields.Field, State, error) {
	var f fields.Field
	st, err := s.do(func() error {
		var err error
		f, err = s.editor.Drop(t, p, name)
		return err
	})
	return f, st, err
}

// UpdateField applies a property edit
func (s *Session) UpdateField(id string, p fields.Patch) (fields.Field, State, error) {
	var f fields.Field
	st, err := s.do(func() error {
		var err error
		f, err = s.editor.UpdateField(id, p)
		return err
	})
	return f, st, err
}

// Delete removes a field after confirmation
func (s *Session) Delete(id string, confirmed bool) (State, error) {
	return s.do(func() error { return s.editor.Delete(id, confirmed) })
}

// SetPage switches the active page
func (s *Session) SetPage(page int) (State, error) {
	return s.do(func() error { return s.editor.SetPage(page) })
}

// ZoomAction names a zoom operation
type ZoomAction string

const (
	ZoomIn       ZoomAction = "in"
	ZoomOut      ZoomAction = "out"
	ZoomSet      ZoomAction = "set"
	ZoomFitWidth ZoomAction = "fit_width"
	ZoomFitPage  ZoomAction = "fit_page"
)

// ZoomRequest describes a zoom change. Scale is used by ZoomSet, Container by
// the fit actions.
type ZoomRequest struct {
	Action    ZoomAction    `json:"action"`
	Scale     float64       `json:"scale,omitempty"`
	Container geometry.Size `json:"container,omitempty"`
}

// Zoom changes the scale
func (s *Session) Zoom(req ZoomRequest) (State, error) {
	return s.do(func() error {
		switch req.Action {
		case ZoomIn:
			s.editor.ZoomIn()
		case ZoomOut:
			s.editor.ZoomOut()
		case ZoomSet:
			if req.Scale <= 0 {
				return fmt.Errorf("invalid scale %g", req.Scale)
			}
			s.editor.SetScale(req.Scale)
		case ZoomFitWidth:
			s.editor.FitWidth(req.Container.Width, s.fitPadding)
		case ZoomFitPage:
			s.editor.FitPage(req.Container, s.fitPadding)
		default:
			return fmt.Errorf("unknown zoom action %q", req.Action)
		}
		return nil
	})
}

// Load fetches a template and replaces the session's model with it. A load
// that was overtaken by a newer one returns ErrStaleLoad and changes nothing;
// a failed load leaves the current model in place.
func (s *Session) Load(ctx context.Context, templateID string) (State, error) {
	if s.backend == nil {
		return s.State(), ErrNoBackend
	}

	var seq uint64
	s.do(func() error {
		s.loadSeq++
		seq = s.loadSeq
		s.loading = true
		return nil
	})

	snap, err := s.backend.Load(ctx, templateID)

	return s.do(func() error {
		if seq != s.loadSeq {
			s.logger.Debug("discarding stale load", zap.String("template", templateID))
			return ErrStaleLoad
		}
		s.loading = false
		if err != nil {
			s.notes.Notify(notify.LevelError, fmt.Sprintf("Failed to load template: %v", err))
			return err
		}

		switching := s.templateID != templateID
		s.template = snap.Template
		s.templateID = templateID
		s.geometry = snap.Geometry
		s.loaded = true
		s.fields.Replace(snap.Fields)
		s.editor.SetPageBounds(snap.Geometry)
		s.editor.Reset()
		if switching {
			_ = s.editor.SetPage(1)
		}
		s.renderer.Reset()

		s.logger.Info("template loaded",
			zap.String("template", templateID),
			zap.Int("pages", snap.Geometry.PageCount()),
			zap.Int("fields", s.fields.Len()))
		return nil
	})
}

// Save sends every field to the backend. When the model did not change while
// the save was in flight, it is replaced by the server's list and the
// selection is carried over; otherwise the local edits are kept, only the
// ids the server assigned are applied, and the session stays dirty.
func (s *Session) Save(ctx context.Context) (State, error) {
	if s.backend == nil {
		return s.State(), ErrNoBackend
	}

	var (
		templateID string
		list       []fields.Field
		version    uint64
	)
	st, err := s.do(func() error {
		if !s.loaded {
			return ErrNotLoaded
		}
		if s.saving {
			return ErrSaveInFlight
		}
		s.saving = true
		templateID = s.templateID
		list = s.fields.All()
		version = s.fields.Version()
		return nil
	})
	if err != nil {
		return st, err
	}

	res, err := s.backend.Save(ctx, templateID, list)

	return s.do(func() error {
		s.saving = false
		if err != nil {
			s.notes.Notify(notify.LevelError, fmt.Sprintf("Failed to save fields: %v", err))
			return err
		}
		if s.templateID != templateID {
			return nil
		}

		if s.fields.Version() == version {
			s.applySaved(res)
		} else {
			s.applyAssigned(res.Assigned)
		}

		msg := res.Message
		if msg == "" {
			msg = fmt.Sprintf("Saved %d fields", len(res.Fields))
		}
		s.notes.Notify(notify.LevelSuccess, msg)
		return nil
	})
}

func (s *Session) applySaved(res bridge.SaveResult) {
	var selected fields.Field
	if id := s.editor.Selected(); id != "" {
		selected, _ = s.fields.Get(id)
	}
	s.fields.Replace(res.Fields)
	for tmp, id := range res.Assigned {
		s.editor.Rename(tmp, id)
	}
	s.editor.Reselect(bridge.Reconcile(selected, res.Fields, res.Assigned))
}

func (s *Session) applyAssigned(assigned map[string]string) {
	for tmp, id := range assigned {
		if err := s.fields.Reassign(tmp, id); err != nil {
			s.logger.Debug("skipping id assignment",
				zap.String("temporary_id", tmp), zap.String("id", id), zap.Error(err))
			continue
		}
		s.editor.Rename(tmp, id)
	}
}

// ImportWidgets adds the form widgets found in the template PDF as fields.
// With replace set the current fields are dropped first, which needs
// confirmation. It returns the number of fields added.
func (s *Session) ImportWidgets(ctx context.Context, replace, confirmed bool) (int, State, error) {
	if s.backend == nil {
		return 0, s.State(), ErrNoBackend
	}
	if replace && !confirmed {
		return 0, s.State(), editor.ErrConfirmationRequired
	}

	tpl, loaded := s.Template()
	if !loaded {
		return 0, s.State(), ErrNotLoaded
	}

	detected, detectErr := s.backend.DetectWidgets(ctx, tpl)

	added := 0
	st, err := s.do(func() error {
		if detectErr != nil {
			s.notes.Notify(notify.LevelError, fmt.Sprintf("Failed to detect form fields: %v", detectErr))
			return detectErr
		}
		if s.template.ID != tpl.ID {
			return ErrStaleLoad
		}
		if replace {
			s.editor.Reset()
			for _, f := range s.fields.All() {
				_ = s.fields.Remove(f.ID)
			}
		}
		for _, f := range detected {
			if _, created, err := s.fields.Add(f); err == nil && created {
				added++
			}
		}
		s.notes.Notify(notify.LevelInfo, fmt.Sprintf("Imported %d form fields", added))
		return nil
	})
	return added, st, err
}
