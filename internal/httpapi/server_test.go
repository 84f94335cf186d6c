package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/a3tai/pdf-field-builder/internal/bridge"
	"github.com/a3tai/pdf-field-builder/internal/document"
	"github.com/a3tai/pdf-field-builder/internal/fields"
	"github.com/a3tai/pdf-field-builder/internal/geometry"
	"github.com/a3tai/pdf-field-builder/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubBackend struct{}

func (stubBackend) Load(ctx context.Context, templateID string) (bridge.Snapshot, error) {
	if templateID != "42" {
		return bridge.Snapshot{}, &bridge.APIError{Op: "fetch_template", Status: 404, Err: bridge.ErrNotFound}
	}
	return bridge.Snapshot{
		Template: bridge.Template{ID: "42", Name: "Barangay Clearance", PDFURL: "/files/42.pdf"},
		Geometry: document.Geometry{Pages: []geometry.Size{{Width: 612, Height: 792}}},
		Fields: []fields.Field{
			{ID: "7", PageNumber: 1, Type: fields.TypeText, Name: "full_name", X: 72, Y: 100, Width: 200, Height: 20},
		},
	}, nil
}

func (stubBackend) Save(ctx context.Context, templateID string, list []fields.Field) (bridge.SaveResult, error) {
	return bridge.SaveResult{Fields: list, Assigned: map[string]string{}}, nil
}

func (stubBackend) DetectWidgets(ctx context.Context, tpl bridge.Template) ([]fields.Field, error) {
	return nil, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	manager := session.NewManager(session.Options{Backend: stubBackend{}}, time.Hour)
	return New(manager, NewHub(nil), nil)
}

func call(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	w, env := call(t, s, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	st := decode[session.State](t, env.Data)
	require.NotEmpty(t, st.SessionID)
	return st.SessionID
}

func TestHealthAndFieldTypes(t *testing.T) {
	s := newTestServer(t)

	w, _ := call(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, env := call(t, s, http.MethodGet, "/api/v1/field-types", nil)
	require.Equal(t, http.StatusOK, w.Code)
	types := decode[[]FieldTypeInfo](t, env.Data)
	assert.Len(t, types, len(fields.AllTypes()))
}

func TestUnknownSession(t *testing.T) {
	s := newTestServer(t)
	w, env := call(t, s, http.MethodGet, "/api/v1/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40400, env.Code)
}

func TestDrawSaveExportFlow(t *testing.T) {
	s := newTestServer(t)
	id := createSession(t, s)
	base := "/api/v1/sessions/" + id

	w, env := call(t, s, http.MethodPost, base+"/load", gin.H{"template_id": "42"})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	st := decode[session.State](t, env.Data)
	assert.True(t, st.Loaded)
	assert.Equal(t, "Barangay Clearance", st.TemplateName)
	require.Len(t, st.View.Boxes, 1)

	w, _ = call(t, s, http.MethodPost, base+"/tool", gin.H{"type": "date"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = call(t, s, http.MethodPost, base+"/pointer/down", gin.H{"point": gin.H{"x": 300, "y": 400}})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = call(t, s, http.MethodPost, base+"/pointer/move", gin.H{"point": gin.H{"x": 350, "y": 420}})
	require.Equal(t, http.StatusOK, w.Code)
	w, env = call(t, s, http.MethodPost, base+"/pointer/up", gin.H{"point": gin.H{"x": 400, "y": 430}})
	require.Equal(t, http.StatusOK, w.Code)
	st = decode[session.State](t, env.Data)
	assert.Equal(t, 2, st.FieldCount)
	assert.True(t, st.View.Dirty)

	w, env = call(t, s, http.MethodGet, base+"/fields?page=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]fields.Field](t, env.Data)
	require.Len(t, list, 2)

	w, env = call(t, s, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	st = decode[session.State](t, env.Data)
	assert.False(t, st.View.Dirty)

	w, env = call(t, s, http.MethodGet, base+"/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "Field created")

	w, _ = call(t, s, http.MethodGet, base+"/export.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Barangay_Clearance_fields.xlsx")
	book, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Fields")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestPointerErrors(t *testing.T) {
	s := newTestServer(t)
	id := createSession(t, s)
	base := "/api/v1/sessions/" + id

	w, _ := call(t, s, http.MethodPost, base+"/pointer/sideways", gin.H{"point": gin.H{"x": 1, "y": 1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = call(t, s, http.MethodPost, base+"/tool", gin.H{"type": "hologram"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = call(t, s, http.MethodPost, base+"/tool", gin.H{"type": "text"})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = call(t, s, http.MethodPost, base+"/pointer/down", gin.H{"point": gin.H{"x": 10, "y": 10}})
	require.Equal(t, http.StatusOK, w.Code)
	w, env := call(t, s, http.MethodPost, base+"/drop", gin.H{"type": "text", "x": 50, "y": 50})
	assert.Equal(t, http.StatusConflict, w.Code, env.Message)

	w, env = call(t, s, http.MethodPost, base+"/lost-capture", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[session.State](t, env.Data)
	assert.Equal(t, "idle", st.View.Mode)
	assert.Zero(t, st.Captures)
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	s := newTestServer(t)
	id := createSession(t, s)
	base := "/api/v1/sessions/" + id

	w, _ := call(t, s, http.MethodPost, base+"/load", gin.H{"template_id": "42"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = call(t, s, http.MethodDelete, base+"/fields/7", nil)
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)

	w, env := call(t, s, http.MethodDelete, base+"/fields/7?confirm=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[session.State](t, env.Data)
	assert.Zero(t, st.FieldCount)

	w, _ = call(t, s, http.MethodDelete, base+"/fields/7?confirm=true", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateFieldAndZoom(t *testing.T) {
	s := newTestServer(t)
	id := createSession(t, s)
	base := "/api/v1/sessions/" + id

	w, _ := call(t, s, http.MethodPost, base+"/load", gin.H{"template_id": "42"})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := call(t, s, http.MethodPatch, base+"/fields/7", gin.H{"label": "Full name", "required": true})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[fieldResponse](t, env.Data)
	assert.Equal(t, "Full name", resp.Field.Label)
	assert.True(t, resp.Field.Required)

	w, _ = call(t, s, http.MethodPatch, base+"/fields/7", gin.H{"width": -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = call(t, s, http.MethodPost, base+"/zoom", gin.H{"action": "set", "scale": 2})
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[session.State](t, env.Data)
	assert.Equal(t, 2.0, st.View.Scale)
	require.Len(t, st.View.Boxes, 1)
	assert.Equal(t, geometry.Rect{X: 144, Y: 200, Width: 400, Height: 40}, st.View.Boxes[0].Rect)

	w, _ = call(t, s, http.MethodPost, base+"/page", gin.H{"page": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoadFailure(t *testing.T) {
	s := newTestServer(t)
	id := createSession(t, s)

	w, env := call(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/load", gin.H{"template_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, env.Message, "not found")

	w, _ = call(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/load", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCloseSession(t *testing.T) {
	s := newTestServer(t)
	id := createSession(t, s)

	w, _ := call(t, s, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = call(t, s, http.MethodGet, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventStream(t *testing.T) {
	s := newTestServer(t)
	id := createSession(t, s)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/sessions/"+id+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 32)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	next := func(prefix string) string {
		t.Helper()
		timeout := time.After(5 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream closed")
				if strings.HasPrefix(line, prefix) {
					return strings.TrimPrefix(line, prefix)
				}
			case <-timeout:
				t.Fatalf("no %q line received", prefix)
			}
		}
	}

	assert.Equal(t, "connected", next("event: "))
	assert.Equal(t, "state", next("event: "))
	var st session.State
	require.NoError(t, json.Unmarshal([]byte(next("data: ")), &st))
	assert.Equal(t, id, st.SessionID)
	assert.Empty(t, st.View.Tool)

	w, _ := call(t, s, http.MethodPost, "/api/v1/sessions/"+id+"/tool", gin.H{"type": "signature"})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "state", next("event: "))
	require.NoError(t, json.Unmarshal([]byte(next("data: ")), &st))
	assert.Equal(t, "signature", st.View.Tool)
}

func TestEventStreamEndsWhenSessionCloses(t *testing.T) {
	s := newTestServer(t)
	id := createSession(t, s)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/sessions/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
		}
	}()

	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	w, _ := call(t, s, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event stream still open after the session closed")
	}
	assert.Zero(t, s.hub.Len())
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	manager := session.NewManager(session.Options{Backend: stubBackend{}}, time.Hour)
	s := New(manager, NewHub(nil), zap.New(core))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/nope/fields/7", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	logged := entry.ContextMap()
	assert.Equal(t, "req-1", logged["request_id"])
	assert.Equal(t, "/api/v1/sessions/:id/fields/:fieldId", logged["route"])
	assert.Equal(t, "nope", logged["session"])
	assert.Equal(t, "7", logged["field"])
	assert.EqualValues(t, http.StatusNotFound, logged["status"])

	w, _ = call(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries = logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.NotEmpty(t, entries[1].ContextMap()["request_id"])
}
