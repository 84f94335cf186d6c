package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/a3tai/pdf-field-builder/internal/editor"
	"github.com/a3tai/pdf-field-builder/internal/export"
	"github.com/a3tai/pdf-field-builder/internal/fields"
	"github.com/a3tai/pdf-field-builder/internal/geometry"
	"github.com/a3tai/pdf-field-builder/internal/session"
)

// FieldTypeInfo describes a palette entry
type FieldTypeInfo struct {
	Type        fields.Type   `json:"type"`
	DefaultSize geometry.Size `json:"default_size"`
	Address     bool          `json:"address_component"`
}

type loadRequest struct {
	TemplateID string `json:"template_id" binding:"required"`
}

type detectRequest struct {
	Replace bool `json:"replace"`
	Confirm bool `json:"confirm"`
}

type toolRequest struct {
	Type fields.Type `json:"type"`
}

type selectRequest struct {
	FieldID string `json:"field_id"`
}

type dropRequest struct {
	Type fields.Type `json:"type" binding:"required"`
	X    float64     `json:"x"`
	Y    float64     `json:"y"`
	Name string      `json:"name"`
}

type pageRequest struct {
	Page int `json:"page" binding:"required"`
}

type fieldResponse struct {
	Field fields.Field  `json:"field"`
	State session.State `json:"state"`
}

type detectResponse struct {
	Imported int           `json:"imported"`
	State    session.State `json:"state"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.manager.Len(),
		"streams":  s.hub.Len(),
	})
}

func (s *Server) fieldTypes(c *gin.Context) {
	types := fields.AllTypes()
	out := make([]FieldTypeInfo, 0, len(types))
	for _, t := range types {
		out = append(out, FieldTypeInfo{Type: t, DefaultSize: t.DefaultSize(), Address: t.IsAddressComponent()})
	}
	success(c, out)
}

func (s *Server) listSessions(c *gin.Context) {
	success(c, s.manager.List())
}

func (s *Server) createSession(c *gin.Context) {
	sess, err := s.manager.Create()
	if err != nil {
		s.fail(c, err)
		return
	}
	created(c, sess.State())
}

// session resolves the :id parameter, answering 404 itself when it fails
func (s *Server) session(c *gin.Context) (*session.Session, bool) {
	sess, err := s.manager.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return sess, true
}

// reply answers with the session state, or with err when set
func (s *Server) reply(c *gin.Context, st session.State, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, st)
}

func (s *Server) getSession(c *gin.Context) {
	if sess, ok := s.session(c); ok {
		success(c, sess.State())
	}
}

func (s *Server) closeSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.manager.Close(id); err != nil {
		s.fail(c, err)
		return
	}
	success(c, gin.H{"closed": id})
}

func (s *Server) notifications(c *gin.Context) {
	if sess, ok := s.session(c); ok {
		success(c, sess.Notifications())
	}
}

// events streams the session state as server-sent events, starting with
// the current state
func (s *Server) events(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	client := &Client{
		ID:        uuid.NewString(),
		SessionID: sess.ID(),
		Events:    make(chan Event, eventBuffer),
	}
	s.hub.Register(client)
	defer s.hub.Unregister(client.ID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"client_id\":%q}\n\n", client.ID)
	sess.Refresh()
	c.Writer.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Type, event.Data)
			c.Writer.Flush()
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}

func (s *Server) load(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "template_id is required")
		return
	}
	st, err := sess.Load(c.Request.Context(), req.TemplateID)
	s.reply(c, st, err)
}

func (s *Server) save(c *gin.Context) {
	if sess, ok := s.session(c); ok {
		st, err := sess.Save(c.Request.Context())
		s.reply(c, st, err)
	}
}

func (s *Server) detect(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, err.Error())
		return
	}
	n, st, err := sess.ImportWidgets(c.Request.Context(), req.Replace, req.Confirm)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, detectResponse{Imported: n, State: st})
}

func (s *Server) exportXLSX(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	f, err := export.Fields(sess.Fields())
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()

	tpl, _ := sess.Template()
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+export.Filename(tpl.Name)+"\"")
	c.Header("Content-Transfer-Encoding", "binary")
	if err := f.Write(c.Writer); err != nil {
		_ = c.Error(fmt.Errorf("write xlsx: %w", err))
	}
}

func (s *Server) selectTool(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req toolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	st, err := sess.SelectTool(req.Type)
	s.reply(c, st, err)
}

func (s *Server) pointer(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var ev editor.PointerEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		badRequest(c, err.Error())
		return
	}

	var (
		st  session.State
		err error
	)
	switch c.Param("phase") {
	case "down":
		st, err = sess.PointerDown(ev)
	case "move":
		st, err = sess.PointerMove(ev)
	case "up":
		st, err = sess.PointerUp(ev)
	default:
		badRequest(c, "pointer phase must be down, move or up")
		return
	}
	s.reply(c, st, err)
}

func (s *Server) lostCapture(c *gin.Context) {
	if sess, ok := s.session(c); ok {
		success(c, sess.LostCapture())
	}
}

func (s *Server) cancel(c *gin.Context) {
	if sess, ok := s.session(c); ok {
		success(c, sess.Cancel())
	}
}

func (s *Server) selectField(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	st, err := sess.Select(req.FieldID)
	s.reply(c, st, err)
}

func (s *Server) drop(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req dropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	f, st, err := sess.Drop(req.Type, geometry.Point{X: req.X, Y: req.Y}, req.Name)
	if err != nil {
		s.fail(c, err)
		return
	}
	created(c, fieldResponse{Field: f, State: st})
}

func (s *Server) setPage(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "page is required")
		return
	}
	st, err := sess.SetPage(req.Page)
	s.reply(c, st, err)
}

func (s *Server) zoom(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req session.ZoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	st, err := sess.Zoom(req)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	success(c, st)
}

func (s *Server) listFields(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	list := sess.Fields()
	if p := c.Query("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil {
			badRequest(c, "page must be a number")
			return
		}
		filtered := make([]fields.Field, 0, len(list))
		for _, f := range list {
			if f.PageNumber == page {
				filtered = append(filtered, f)
			}
		}
		list = filtered
	}
	success(c, list)
}

func (s *Server) getField(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	f, err := sess.Field(c.Param("fieldId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, f)
}

func (s *Server) updateField(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var patch fields.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}
	f, st, err := sess.UpdateField(c.Param("fieldId"), patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	success(c, fieldResponse{Field: f, State: st})
}

func (s *Server) deleteField(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	confirmed, _ := strconv.ParseBool(c.Query("confirm"))
	st, err := sess.Delete(c.Param("fieldId"), confirmed)
	s.reply(c, st, err)
}
