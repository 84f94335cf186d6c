package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-field-builder/internal/bridge"
	"github.com/a3tai/pdf-field-builder/internal/document"
	"github.com/a3tai/pdf-field-builder/internal/editor"
	"github.com/a3tai/pdf-field-builder/internal/fields"
	"github.com/a3tai/pdf-field-builder/internal/geometry"
	"github.com/a3tai/pdf-field-builder/internal/notify"
)

type fakeBackend struct {
	mu        sync.Mutex
	snapshots map[string]bridge.Snapshot
	loadErr   error
	loadGate  map[string]chan struct{}
	started   chan string

	saveGate    chan struct{}
	saveStarted chan struct{}
	saveErr     error
	saves       int
	nextID      int

	widgets []fields.Field
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		snapshots: make(map[string]bridge.Snapshot),
		loadGate:  make(map[string]chan struct{}),
		started:   make(chan string, 8),
		nextID:    101,
	}
}

func (b *fakeBackend) Load(ctx context.Context, templateID string) (bridge.Snapshot, error) {
	b.mu.Lock()
	snap, ok := b.snapshots[templateID]
	gate := b.loadGate[templateID]
	err := b.loadErr
	b.mu.Unlock()

	b.started <- templateID
	if gate != nil {
		<-gate
	}
	if err != nil {
		return bridge.Snapshot{}, err
	}
	if !ok {
		return bridge.Snapshot{}, bridge.ErrNotFound
	}
	return snap, nil
}

func (b *fakeBackend) Save(ctx context.Context, templateID string, list []fields.Field) (bridge.SaveResult, error) {
	b.mu.Lock()
	gate, started, err := b.saveGate, b.saveStarted, b.saveErr
	b.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return bridge.SaveResult{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	res := bridge.SaveResult{Assigned: make(map[string]string)}
	for _, f := range list {
		if f.IsTemporary() {
			id := fmt.Sprint(b.nextID)
			b.nextID++
			res.Assigned[f.ID] = id
			f.ID = id
		}
		res.Fields = append(res.Fields, f)
	}
	return res, nil
}

func (b *fakeBackend) DetectWidgets(ctx context.Context, tpl bridge.Template) ([]fields.Field, error) {
	return b.widgets, nil
}

func (b *fakeBackend) setTemplate(id string, list ...fields.Field) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots[id] = bridge.Snapshot{
		Template: bridge.Template{ID: bridge.ID(id), Name: "Template " + id, PDFURL: "/files/" + id + ".pdf"},
		Geometry: document.Geometry{Pages: []geometry.Size{{Width: 600, Height: 800}, {Width: 600, Height: 800}}},
		Fields:   list,
	}
}

func newTestSession(t *testing.T, backend Backend) *Session {
	t.Helper()
	n := 0
	s, err := New("s1", Options{
		Backend: backend,
		IDGenerator: func() string {
			n++
			return fmt.Sprintf("%s%d", fields.TemporaryPrefix, n)
		},
	})
	require.NoError(t, err)
	return s
}

func pointer(x, y float64) editor.PointerEvent {
	return editor.PointerEvent{Point: geometry.Point{X: x, Y: y}}
}

func drawText(t *testing.T, s *Session, x1, y1, x2, y2 float64) State {
	t.Helper()
	_, err := s.SelectTool(fields.TypeText)
	require.NoError(t, err)
	_, err = s.PointerDown(pointer(x1, y1))
	require.NoError(t, err)
	_, err = s.PointerMove(pointer((x1+x2)/2, (y1+y2)/2))
	require.NoError(t, err)
	st, err := s.PointerUp(pointer(x2, y2))
	require.NoError(t, err)
	return st
}

func hasNotification(list []notify.Notification, level notify.Level, text string) bool {
	for _, n := range list {
		if n.Level == level && n.Message == text {
			return true
		}
	}
	return false
}

func TestSession_EmptyStates(t *testing.T) {
	backend := newFakeBackend()
	backend.setTemplate("7")
	s := newTestSession(t, backend)

	st := s.State()
	assert.False(t, st.Loaded)
	assert.Equal(t, "No document loaded", st.View.EmptyMessage)

	st, err := s.Load(context.Background(), "7")
	require.NoError(t, err)
	assert.True(t, st.Loaded)
	assert.False(t, st.Loading)
	assert.Equal(t, "Template 7", st.TemplateName)
	assert.Equal(t, 2, st.View.PageCount)
	assert.Equal(t, geometry.Size{Width: 600, Height: 800}, st.View.Surface)
	assert.Contains(t, st.View.EmptyMessage, "No fields on this page")
}

func TestSession_DrawScenario(t *testing.T) {
	backend := newFakeBackend()
	backend.setTemplate("7")
	s := newTestSession(t, backend)
	_, err := s.Load(context.Background(), "7")
	require.NoError(t, err)

	st := drawText(t, s, 50, 50, 150, 75)

	list := s.Fields()
	require.Len(t, list, 1)
	f := list[0]
	assert.Equal(t, geometry.Rect{X: 50, Y: 50, Width: 100, Height: 25}, f.Rect())
	assert.Equal(t, 1, f.PageNumber)
	assert.True(t, f.IsTemporary())

	assert.Equal(t, "idle", st.View.Mode)
	assert.Empty(t, st.View.Tool)
	assert.Equal(t, f.ID, st.View.SelectedID)
	assert.True(t, st.View.Dirty)
	assert.Empty(t, st.View.EmptyMessage)
	require.Len(t, st.View.Boxes, 1)
	assert.True(t, st.View.Boxes[0].Selected)
	assert.Len(t, st.View.Boxes[0].Handles, 4)
	assert.Zero(t, st.Captures)

	assert.True(t, hasNotification(s.Notifications(), notify.LevelSuccess, "Field created"))
}

func TestSession_PreviewWhileDrawing(t *testing.T) {
	backend := newFakeBackend()
	backend.setTemplate("7")
	s := newTestSession(t, backend)
	_, err := s.Load(context.Background(), "7")
	require.NoError(t, err)

	_, err = s.Zoom(ZoomRequest{Action: ZoomSet, Scale: 2})
	require.NoError(t, err)
	_, err = s.SelectTool(fields.TypeText)
	require.NoError(t, err)
	_, err = s.PointerDown(pointer(100, 100))
	require.NoError(t, err)
	st, err := s.PointerMove(pointer(300, 160))
	require.NoError(t, err)

	assert.Equal(t, "drawing", st.View.Mode)
	assert.Equal(t, int64(1), st.Captures)
	require.NotNil(t, st.View.Preview)
	assert.Equal(t, geometry.Rect{X: 100, Y: 100, Width: 200, Height: 60}, *st.View.Preview)

	st = s.LostCapture()
	assert.Nil(t, st.View.Preview)
	assert.Zero(t, st.Captures)
	assert.Zero(t, st.FieldCount)
}

func TestSession_StaleLoadDiscarded(t *testing.T) {
	backend := newFakeBackend()
	backend.setTemplate("a", fields.Field{ID: "1", Type: fields.TypeText, PageNumber: 1, Name: "from_a"})
	backend.setTemplate("b", fields.Field{ID: "2", Type: fields.TypeText, PageNumber: 1, Name: "from_b"})
	gate := make(chan struct{})
	backend.loadGate["a"] = gate
	s := newTestSession(t, backend)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Load(context.Background(), "a")
		errs <- err
	}()
	assert.Equal(t, "a", <-backend.started)
	assert.True(t, s.State().Loading)

	st, err := s.Load(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "b", st.TemplateID)

	close(gate)
	assert.ErrorIs(t, <-errs, ErrStaleLoad)

	st = s.State()
	assert.Equal(t, "b", st.TemplateID)
	list := s.Fields()
	require.Len(t, list, 1)
	assert.Equal(t, "from_b", list[0].Name)
}

func TestSession_LoadFailureKeepsModel(t *testing.T) {
	backend := newFakeBackend()
	backend.setTemplate("7", fields.Field{ID: "1", Type: fields.TypeText, PageNumber: 1, Name: "kept"})
	s := newTestSession(t, backend)
	_, err := s.Load(context.Background(), "7")
	require.NoError(t, err)
	s.Notifications()

	backend.mu.Lock()
	backend.loadErr = errors.New("connection refused")
	backend.mu.Unlock()

	st, err := s.Load(context.Background(), "7")
	require.Error(t, err)
	assert.True(t, st.Loaded)
	assert.False(t, st.Loading)
	assert.Equal(t, 1, st.FieldCount)

	notes := s.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelError, notes[0].Level)
	assert.Contains(t, notes[0].Message, "connection refused")
}

func TestSession_SaveRequiresTemplate(t *testing.T) {
	s := newTestSession(t, newFakeBackend())
	_, err := s.Save(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestSession_SaveReplacesAndReselects(t *testing.T) {
	backend := newFakeBackend()
	backend.setTemplate("7")
	s := newTestSession(t, backend)
	_, err := s.Load(context.Background(), "7")
	require.NoError(t, err)
	drawText(t, s, 50, 50, 150, 75)

	st, err := s.Save(context.Background())
	require.NoError(t, err)

	assert.False(t, st.View.Dirty)
	assert.False(t, st.Saving)
	assert.Equal(t, "101", st.View.SelectedID)
	f, err := s.Field("101")
	require.NoError(t, err)
	assert.False(t, f.IsTemporary())
	assert.Equal(t, 50.0, f.X)

	st, err = s.Load(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, 0, st.FieldCount, "fake backend does not persist saves")
}

func TestSession_SaveInFlight(t *testing.T) {
	backend := newFakeBackend()
	backend.setTemplate("7")
	backend.saveGate = make(chan struct{})
	backend.saveStarted = make(chan struct{}, 1)
	s := newTestSession(t, backend)
	_, err := s.Load(context.Background(), "7")
	require.NoError(t, err)
	drawText(t, s, 50, 50, 150, 75)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Save(context.Background())
		errs <- err
	}()
	<-backend.saveStarted

	assert.True(t, s.State().Saving)
	_, err = s.Save(context.Background())
	assert.ErrorIs(t, err, ErrSaveInFlight)

	close(backend.saveGate)
	require.NoError(t, <-errs)
	assert.False(t, s.State().Saving)
}

func TestSession_EditDuringSaveKeepsLocalChanges(t *testing.T) {
	backend := newFakeBackend()
	backend.setTemplate("7")
	backend.saveGate = make(chan struct{})
	backend.saveStarted = make(chan struct{}, 1)
	s := newTestSession(t, backend)
	_, err := s.Load(context.Background(), "7")
	require.NoError(t, err)
	drawText(t, s, 50, 50, 150, 75)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Save(context.Background())
		errs <- err
	}()
	<-backend.saveStarted

	_, _, err = s.UpdateField("tmp_1", fields.MovePatch(geometry.Point{X: 60, Y: 70}))
	require.NoError(t, err)

	close(backend.saveGate)
	require.NoError(t, <-errs)

	st := s.State()
	assert.True(t, st.View.Dirty)
	assert.Equal(t, "101", st.View.SelectedID)
	f, err := s.Field("101")
	require.NoError(t, err)
	assert.Equal(t, 60.0, f.X)
	assert.Equal(t, 70.0, f.Y)
}

func TestSession_SaveFailureKeepsDirty(t *testing.T) {
	backend := newFakeBackend()
	backend.setTemplate("7")
	backend.saveErr = errors.New("boom")
	s := newTestSession(t, backend)
	_, err := s.Load(context.Background(), "7")
	require.NoError(t, err)
	drawText(t, s, 50, 50, 150, 75)
	s.Notifications()

	st, err := s.Save(context.Background())
	require.Error(t, err)
	assert.True(t, st.View.Dirty)
	assert.False(t, st.Saving)
	assert.Equal(t, 1, st.FieldCount)
	assert.True(t, hasNotification(s.Notifications(), notify.LevelError, "Failed to save fields: boom"))
}

func TestSession_ImportWidgets(t *testing.T) {
	backend := newFakeBackend()
	backend.setTemplate("7", fields.Field{ID: "1", Type: fields.TypeText, PageNumber: 1, Name: "existing", X: 300, Y: 300})
	backend.widgets = []fields.Field{
		{Type: fields.TypeEmail, PageNumber: 1, Name: "email", X: 72, Y: 72, Width: 200, Height: 20},
		{Type: fields.TypeCheckbox, PageNumber: 2, Name: "agree", X: 72, Y: 128, Width: 14, Height: 14},
	}
	s := newTestSession(t, backend)
	_, err := s.Load(context.Background(), "7")
	require.NoError(t, err)

	_, _, err = s.ImportWidgets(context.Background(), true, false)
	assert.ErrorIs(t, err, editor.ErrConfirmationRequired)

	n, st, err := s.ImportWidgets(context.Background(), false, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, st.FieldCount)

	n, _, err = s.ImportWidgets(context.Background(), false, false)
	require.NoError(t, err)
	assert.Zero(t, n, "widgets already present are coalesced")

	n, st, err = s.ImportWidgets(context.Background(), true, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, st.FieldCount)
	assert.True(t, st.View.Dirty)
}

func TestSession_ZoomAndPages(t *testing.T) {
	backend := newFakeBackend()
	backend.setTemplate("7")
	s := newTestSession(t, backend)
	_, err := s.Load(context.Background(), "7")
	require.NoError(t, err)

	st, err := s.Zoom(ZoomRequest{Action: ZoomIn})
	require.NoError(t, err)
	assert.InDelta(t, 1.25, st.View.Scale, 1e-9)

	st, err = s.Zoom(ZoomRequest{Action: ZoomFitWidth, Container: geometry.Size{Width: 1000}})
	require.NoError(t, err)
	assert.InDelta(t, 1.6, st.View.Scale, 1e-9)

	_, err = s.Zoom(ZoomRequest{Action: "sideways"})
	assert.Error(t, err)

	st, err = s.SetPage(2)
	require.NoError(t, err)
	assert.Equal(t, 2, st.View.Page)

	_, err = s.SetPage(3)
	assert.ErrorIs(t, err, editor.ErrInvalidPage)
}

func TestSession_Publishes(t *testing.T) {
	var mu sync.Mutex
	var got []State
	s, err := New("s1", Options{Publish: func(id string, st State) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "s1", id)
		got = append(got, st)
	}})
	require.NoError(t, err)

	_, err = s.SelectTool(fields.TypeDate)
	require.NoError(t, err)
	s.Cancel()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "date", got[0].View.Tool)
	assert.Empty(t, got[1].View.Tool)
}

func TestSession_PublishOrderMatchesState(t *testing.T) {
	var mu sync.Mutex
	var got []State
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	s, err := New("s1", Options{Publish: func(id string, st State) {
		if st.View.Tool == string(fields.TypeDate) {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		mu.Lock()
		defer mu.Unlock()
		got = append(got, st)
	}})
	require.NoError(t, err)

	first := make(chan struct{})
	go func() {
		defer close(first)
		_, err := s.SelectTool(fields.TypeDate)
		assert.NoError(t, err)
	}()
	<-entered

	second := make(chan struct{})
	go func() {
		defer close(second)
		s.Cancel()
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-first
	<-second

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	last := got[len(got)-1]
	assert.Equal(t, s.State().View.Tool, last.View.Tool)
	assert.Empty(t, last.View.Tool)
	assert.Less(t, got[0].Seq, got[1].Seq)
}

func TestSession_SaveFollowsGestureInProgress(t *testing.T) {
	backend := newFakeBackend()
	backend.setTemplate("7")
	s := newTestSession(t, backend)
	_, err := s.Load(context.Background(), "7")
	require.NoError(t, err)
	drawText(t, s, 50, 50, 150, 75)

	down := pointer(60, 60)
	down.Target.FieldID = "tmp_1"
	_, err = s.PointerDown(down)
	require.NoError(t, err)

	st, err := s.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "101", st.View.SelectedID)
	assert.Equal(t, "repositioning", st.View.Mode)

	_, err = s.PointerMove(pointer(70, 80))
	require.NoError(t, err)
	st, err = s.PointerUp(pointer(70, 80))
	require.NoError(t, err)

	f, err := s.Field("101")
	require.NoError(t, err)
	assert.Equal(t, 60.0, f.X)
	assert.Equal(t, 70.0, f.Y)
	assert.Zero(t, st.Captures)
	assert.True(t, hasNotification(s.Notifications(), notify.LevelSuccess, "Field position updated"))
}

func TestManager_OnClose(t *testing.T) {
	m := NewManager(Options{}, time.Minute)
	var mu sync.Mutex
	var closed []string
	m.OnClose(func(id string) {
		mu.Lock()
		defer mu.Unlock()
		closed = append(closed, id)
	})

	a, err := m.Create()
	require.NoError(t, err)
	b, err := m.Create()
	require.NoError(t, err)

	require.NoError(t, m.Close(a.ID()))
	assert.Error(t, m.Close(a.ID()))

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, 1, m.Sweep())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{a.ID(), b.ID()}, closed)
}

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(Options{}, time.Minute)

	a, err := m.Create()
	require.NoError(t, err)
	b, err := m.Create()
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, m.Len())

	got, err := m.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)
	assert.Len(t, m.List(), 2)

	require.NoError(t, m.Close(a.ID()))
	_, err = m.Get(a.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Close(a.ID()), ErrNotFound)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, 1, m.Sweep())
	assert.Zero(t, m.Len())
}
