package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-field-builder/internal/config"
	"github.com/a3tai/pdf-field-builder/internal/descriptions"
	"github.com/a3tai/pdf-field-builder/internal/editor"
	"github.com/a3tai/pdf-field-builder/internal/fields"
	"github.com/a3tai/pdf-field-builder/internal/geometry"
	"github.com/a3tai/pdf-field-builder/internal/session"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	manager   *session.Manager
	mcpServer *server.MCPServer
	logger    *zap.Logger

	tools []string

	mu      sync.Mutex
	current string // session used by tools called without session_id
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, manager *session.Manager, logger *zap.Logger) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("session manager cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		manager:   manager,
		mcpServer: mcpServer,
		logger:    logger,
	}
	s.registerTools()
	sort.Strings(s.tools)
	return s, nil
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.tools = append(s.tools, tool.Name)
	s.mcpServer.AddTool(tool, handler)
}

func sessionParam() mcp.ToolOption {
	return mcp.WithString("session_id",
		mcp.Description("Editing session (defaults to the session of the last opened template)"),
	)
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	typeNames := make([]string, 0, len(fields.AllTypes()))
	for _, t := range fields.AllTypes() {
		typeNames = append(typeNames, string(t))
	}

	s.addTool(mcp.NewTool("builder_open_template",
		mcp.WithDescription(descriptions.OpenTemplateDescription),
		mcp.WithString("template_id", mcp.Required(), mcp.Description("Template id")),
		sessionParam(),
	), s.handleOpenTemplate)

	s.addTool(mcp.NewTool("builder_view",
		mcp.WithDescription(descriptions.ViewDescription),
		sessionParam(),
	), s.handleView)

	s.addTool(mcp.NewTool("builder_list_fields",
		mcp.WithDescription(descriptions.ListFieldsDescription),
		mcp.WithNumber("page", mcp.Description("Only fields of this page")),
		sessionParam(),
	), s.handleListFields)

	s.addTool(mcp.NewTool("builder_draw_field",
		mcp.WithDescription(descriptions.DrawFieldDescription),
		mcp.WithString("type", mcp.Required(), mcp.Enum(typeNames...), mcp.Description("Field type")),
		mcp.WithNumber("page", mcp.Description("Page number (defaults to the active page)")),
		mcp.WithNumber("x1", mcp.Required(), mcp.Description("Drag start x")),
		mcp.WithNumber("y1", mcp.Required(), mcp.Description("Drag start y")),
		mcp.WithNumber("x2", mcp.Required(), mcp.Description("Drag end x")),
		mcp.WithNumber("y2", mcp.Required(), mcp.Description("Drag end y")),
		sessionParam(),
	), s.handleDrawField)

	s.addTool(mcp.NewTool("builder_add_field",
		mcp.WithDescription(descriptions.AddFieldDescription),
		mcp.WithString("type", mcp.Required(), mcp.Enum(typeNames...), mcp.Description("Field type")),
		mcp.WithNumber("page", mcp.Description("Page number (defaults to the active page)")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Left edge")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Top edge")),
		mcp.WithString("name", mcp.Description("Field name (generated when empty)")),
		sessionParam(),
	), s.handleAddField)

	s.addTool(mcp.NewTool("builder_move_field",
		mcp.WithDescription(descriptions.MoveFieldDescription),
		mcp.WithString("field_id", mcp.Required(), mcp.Description("Field to move")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("New left edge")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("New top edge")),
		sessionParam(),
	), s.handleMoveField)

	s.addTool(mcp.NewTool("builder_resize_field",
		mcp.WithDescription(descriptions.ResizeFieldDescription),
		mcp.WithString("field_id", mcp.Required(), mcp.Description("Field to resize")),
		mcp.WithString("handle", mcp.Required(), mcp.Enum("nw", "ne", "sw", "se"), mcp.Description("Corner to drag")),
		mcp.WithNumber("dx", mcp.Required(), mcp.Description("Horizontal drag distance")),
		mcp.WithNumber("dy", mcp.Required(), mcp.Description("Vertical drag distance")),
		sessionParam(),
	), s.handleResizeField)

	s.addTool(mcp.NewTool("builder_update_field",
		mcp.WithDescription(descriptions.UpdateFieldDescription),
		mcp.WithString("field_id", mcp.Required(), mcp.Description("Field to change")),
		mcp.WithString("name", mcp.Description("Field name")),
		mcp.WithString("label", mcp.Description("Label shown to people filling the form")),
		mcp.WithString("type", mcp.Enum(typeNames...), mcp.Description("Field type")),
		mcp.WithBoolean("required", mcp.Description("Whether the field must be filled")),
		mcp.WithString("default_value", mcp.Description("Default value")),
		mcp.WithNumber("font_size", mcp.Description("Font size in points")),
		mcp.WithString("font_family", mcp.Description("Font family")),
		mcp.WithString("font_color", mcp.Description("Font colour, e.g. #000000")),
		sessionParam(),
	), s.handleUpdateField)

	s.addTool(mcp.NewTool("builder_delete_field",
		mcp.WithDescription(descriptions.DeleteFieldDescription),
		mcp.WithString("field_id", mcp.Required(), mcp.Description("Field to delete")),
		mcp.WithBoolean("confirm", mcp.Description("Must be true to delete")),
		sessionParam(),
	), s.handleDeleteField)

	s.addTool(mcp.NewTool("builder_detect_fields",
		mcp.WithDescription(descriptions.DetectFieldsDescription),
		mcp.WithBoolean("replace", mcp.Description("Remove current fields first")),
		mcp.WithBoolean("confirm", mcp.Description("Must be true when replace is true")),
		sessionParam(),
	), s.handleDetectFields)

	s.addTool(mcp.NewTool("builder_set_page",
		mcp.WithDescription(descriptions.SetPageDescription),
		mcp.WithNumber("page", mcp.Required(), mcp.Description("Page number, starting at 1")),
		sessionParam(),
	), s.handleSetPage)

	s.addTool(mcp.NewTool("builder_zoom",
		mcp.WithDescription(descriptions.ZoomDescription),
		mcp.WithString("action", mcp.Required(), mcp.Enum("in", "out", "set", "fit_width", "fit_page")),
		mcp.WithNumber("scale", mcp.Description("Scale for action=set")),
		mcp.WithNumber("container_width", mcp.Description("Viewport width in pixels for fit actions")),
		mcp.WithNumber("container_height", mcp.Description("Viewport height in pixels for fit_page")),
		sessionParam(),
	), s.handleZoom)

	s.addTool(mcp.NewTool("builder_save",
		mcp.WithDescription(descriptions.SaveDescription),
		sessionParam(),
	), s.handleSave)

	s.addTool(mcp.NewTool("builder_server_info",
		mcp.WithDescription(descriptions.ServerInfoDescription),
	), s.handleServerInfo)
}

// session returns the session named by the request, or the current one.
// create allows opening a fresh session when there is none yet.
func (s *Server) session(request mcp.CallToolRequest, create bool) (*session.Session, error) {
	if id := request.GetString("session_id", ""); id != "" {
		return s.manager.Get(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != "" {
		sess, err := s.manager.Get(s.current)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrNotFound) {
			return nil, err
		}
		s.current = ""
	}
	if !create {
		return nil, errors.New("no template is open; call builder_open_template first")
	}
	sess, err := s.manager.Create()
	if err != nil {
		return nil, err
	}
	s.current = sess.ID()
	return sess, nil
}

func (s *Server) handleOpenTemplate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templateID, err := request.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(request, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	st, err := sess.Load(ctx, templateID)
	if err != nil {
		return s.errorResult(sess, err), nil
	}
	s.mu.Lock()
	s.current = sess.ID()
	s.mu.Unlock()

	return mcp.NewToolResultText(s.formatState(sess, st)), nil
}

func (s *Server) handleView(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.formatState(sess, sess.State())), nil
}

func (s *Server) handleListFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page := request.GetInt("page", 0)

	var b strings.Builder
	count := 0
	for _, f := range sortFields(sess.Fields()) {
		if page > 0 && f.PageNumber != page {
			continue
		}
		count++
		b.WriteString(formatField(f, ""))
	}
	if count == 0 {
		return mcp.NewToolResultText("No fields found"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%d field(s):\n%s", count, b.String())), nil
}

// goToPage switches to page when given and different from the active one
func goToPage(sess *session.Session, page int) (session.State, error) {
	st := sess.State()
	if page <= 0 || page == st.View.Page {
		return st, nil
	}
	return sess.SetPage(page)
}

func (s *Server) handleDrawField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ, err := fields.ParseType(request.GetString("type", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var coords [4]float64
	for i, key := range []string{"x1", "y1", "x2", "y2"} {
		if coords[i], err = request.RequireFloat(key); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	st, err := goToPage(sess, request.GetInt("page", 0))
	if err != nil {
		return s.errorResult(sess, err), nil
	}

	before := st.FieldCount
	t := geometry.NewTransform(st.View.Scale)
	from := t.ToScreen(geometry.Point{X: coords[0], Y: coords[1]})
	to := t.ToScreen(geometry.Point{X: coords[2], Y: coords[3]})

	if _, err := sess.SelectTool(typ); err != nil {
		return s.errorResult(sess, err), nil
	}
	steps := []func() (session.State, error){
		func() (session.State, error) { return sess.PointerDown(editor.PointerEvent{Point: from}) },
		func() (session.State, error) { return sess.PointerMove(editor.PointerEvent{Point: to}) },
		func() (session.State, error) { return sess.PointerUp(editor.PointerEvent{Point: to}) },
	}
	for _, step := range steps {
		if st, err = step(); err != nil {
			sess.LostCapture()
			return s.errorResult(sess, err), nil
		}
	}

	// A committed draw selects its field; an undersized one selects nothing
	if st.View.SelectedID == "" {
		sess.SelectTool("")
		return s.notesResult(sess, "No field was created."), nil
	}
	f, err := sess.Field(st.View.SelectedID)
	if err != nil {
		return s.errorResult(sess, err), nil
	}
	// A draw over a same-type field at the same spot selects that field
	heading := "Created field:\n"
	if st.FieldCount == before {
		heading = "Matched existing field (no new field created):\n"
	}
	return mcp.NewToolResultText(heading + formatField(f, "") + s.drainNotes(sess)), nil
}

func (s *Server) handleAddField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ, err := fields.ParseType(request.GetString("type", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	x, err := request.RequireFloat("x")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	y, err := request.RequireFloat("y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	st, err := goToPage(sess, request.GetInt("page", 0))
	if err != nil {
		return s.errorResult(sess, err), nil
	}
	at := geometry.NewTransform(st.View.Scale).ToScreen(geometry.Point{X: x, Y: y})
	f, _, err := sess.Drop(typ, at, request.GetString("name", ""))
	if err != nil {
		return s.errorResult(sess, err), nil
	}
	return mcp.NewToolResultText("Field:\n" + formatField(f, "") + s.drainNotes(sess)), nil
}

// drag moves the pointer from one document point to another on the field,
// optionally on one of its handles
func drag(sess *session.Session, f fields.Field, handle editor.Handle, from, to geometry.Point) (session.State, error) {
	// Selecting also switches to the field's page
	if _, err := sess.Select(f.ID); err != nil {
		return session.State{}, err
	}
	t := geometry.NewTransform(sess.State().View.Scale)
	target := editor.Target{FieldID: f.ID, Handle: handle}

	if _, err := sess.PointerDown(editor.PointerEvent{Point: t.ToScreen(from), Target: target}); err != nil {
		return session.State{}, err
	}
	if _, err := sess.PointerMove(editor.PointerEvent{Point: t.ToScreen(to), Target: target}); err != nil {
		sess.LostCapture()
		return session.State{}, err
	}
	st, err := sess.PointerUp(editor.PointerEvent{Point: t.ToScreen(to), Target: target})
	if err != nil {
		sess.LostCapture()
	}
	return st, err
}

func (s *Server) handleMoveField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	x, err := request.RequireFloat("x")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	y, err := request.RequireFloat("y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	f, err := sess.Field(id)
	if err != nil {
		return s.errorResult(sess, err), nil
	}
	if _, err := drag(sess, f, "", f.Position(), geometry.Point{X: x, Y: y}); err != nil {
		return s.errorResult(sess, err), nil
	}
	if f, err = sess.Field(id); err != nil {
		return s.errorResult(sess, err), nil
	}
	return mcp.NewToolResultText("Field:\n" + formatField(f, "") + s.drainNotes(sess)), nil
}

func (s *Server) handleResizeField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	handle := editor.Handle(request.GetString("handle", ""))
	if !handle.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("%v: %q", editor.ErrUnknownHandle, handle)), nil
	}
	dx, err := request.RequireFloat("dx")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dy, err := request.RequireFloat("dy")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	f, err := sess.Field(id)
	if err != nil {
		return s.errorResult(sess, err), nil
	}
	from := f.Position()
	if _, err := drag(sess, f, handle, from, geometry.Point{X: from.X + dx, Y: from.Y + dy}); err != nil {
		return s.errorResult(sess, err), nil
	}
	if f, err = sess.Field(id); err != nil {
		return s.errorResult(sess, err), nil
	}
	return mcp.NewToolResultText("Field:\n" + formatField(f, "") + s.drainNotes(sess)), nil
}

func (s *Server) handleUpdateField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	var patch fields.Patch
	if v, ok := args["name"].(string); ok {
		patch.Name = &v
	}
	if v, ok := args["label"].(string); ok {
		patch.Label = &v
	}
	if v, ok := args["type"].(string); ok {
		typ, err := fields.ParseType(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		patch.Type = &typ
	}
	if v, ok := args["required"].(bool); ok {
		patch.Required = &v
	}
	if v, ok := args["default_value"].(string); ok {
		patch.DefaultValue = &v
	}
	if v, ok := args["font_size"].(float64); ok {
		patch.FontSize = &v
	}
	if v, ok := args["font_family"].(string); ok {
		patch.FontFamily = &v
	}
	if v, ok := args["font_color"].(string); ok {
		patch.FontColor = &v
	}

	f, _, err := sess.UpdateField(id, patch)
	if err != nil {
		return s.errorResult(sess, err), nil
	}
	return mcp.NewToolResultText("Field:\n" + formatField(f, "")), nil
}

func (s *Server) handleDeleteField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := sess.Delete(id, request.GetBool("confirm", false)); err != nil {
		if errors.Is(err, editor.ErrConfirmationRequired) {
			return mcp.NewToolResultError("Deleting a field cannot be undone. Ask the user, then call again with confirm=true."), nil
		}
		return s.errorResult(sess, err), nil
	}
	return s.notesResult(sess, fmt.Sprintf("Deleted field %s.", id)), nil
}

func (s *Server) handleDetectFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	replace := request.GetBool("replace", false)
	n, st, err := sess.ImportWidgets(ctx, replace, request.GetBool("confirm", false))
	if err != nil {
		if errors.Is(err, editor.ErrConfirmationRequired) {
			return mcp.NewToolResultError("Replacing removes every current field. Ask the user, then call again with confirm=true."), nil
		}
		return s.errorResult(sess, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Imported %d form field(s); the template now has %d field(s).%s",
		n, st.FieldCount, s.drainNotes(sess))), nil
}

func (s *Server) handleSetPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := request.RequireInt("page")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := sess.SetPage(page)
	if err != nil {
		return s.errorResult(sess, err), nil
	}
	return mcp.NewToolResultText(s.formatState(sess, st)), nil
}

func (s *Server) handleZoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := sess.Zoom(session.ZoomRequest{
		Action: session.ZoomAction(action),
		Scale:  request.GetFloat("scale", 0),
		Container: geometry.Size{
			Width:  request.GetFloat("container_width", 0),
			Height: request.GetFloat("container_height", 0),
		},
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Zoom: %.2f", st.View.Scale)), nil
}

func (s *Server) handleSave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := sess.Save(ctx)
	if err != nil {
		return s.errorResult(sess, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Saved %d field(s) of %s.%s",
		st.FieldCount, st.TemplateName, s.drainNotes(sess))), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 %s v%s - Server Information\n", s.config.ServerName, s.config.Version)
	fmt.Fprintf(&b, "🌐 Template API: %s\n", s.config.APIURL)
	fmt.Fprintf(&b, "📏 Max PDF Size: %d MB\n", s.config.MaxFileSize/(1024*1024))
	fmt.Fprintf(&b, "🔍 Zoom: %.2f to %.2f, step %.2f\n\n", s.config.ZoomMin, s.config.ZoomMax, s.config.ZoomStep)

	b.WriteString("🧩 Field Types:\n")
	for _, t := range fields.AllTypes() {
		size := t.DefaultSize()
		fmt.Fprintf(&b, "  • %s (%gx%g)\n", t, size.Width, size.Height)
	}

	b.WriteString("\n🗂️  Sessions:\n")
	infos := s.manager.List()
	if len(infos) == 0 {
		b.WriteString("  none\n")
	}
	for _, info := range infos {
		dirty := ""
		if info.Dirty {
			dirty = ", unsaved changes"
		}
		fmt.Fprintf(&b, "  • %s template=%s fields=%d%s\n", info.ID, info.TemplateID, info.FieldCount, dirty)
	}

	b.WriteString("\n🛠️  Available Tools:\n")
	for _, name := range s.tools {
		fmt.Fprintf(&b, "  • %s\n", name)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// errorResult reports err together with any notifications it produced
func (s *Server) errorResult(sess *session.Session, err error) *mcp.CallToolResult {
	s.logger.Debug("tool failed", zap.String("session", sess.ID()), zap.Error(err))
	return mcp.NewToolResultError(err.Error() + s.drainNotes(sess))
}

func (s *Server) notesResult(sess *session.Session, text string) *mcp.CallToolResult {
	return mcp.NewToolResultText(text + s.drainNotes(sess))
}

func (s *Server) drainNotes(sess *session.Session) string {
	notes := sess.Notifications()
	if len(notes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nNotifications:\n")
	for _, n := range notes {
		fmt.Fprintf(&b, "  [%s] %s\n", n.Level, n.Message)
	}
	return b.String()
}

func sortFields(list []fields.Field) []fields.Field {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.PageNumber != b.PageNumber {
			return a.PageNumber < b.PageNumber
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return list
}

func formatField(f fields.Field, selected string) string {
	text := fmt.Sprintf("  - %s [%s] %q page %d at (%g, %g) size %gx%g",
		f.ID, f.Type, f.Name, f.PageNumber, f.X, f.Y, f.Width, f.Height)
	if f.Label != "" {
		text += fmt.Sprintf(" label %q", f.Label)
	}
	if f.Required {
		text += " required"
	}
	if f.ID == selected && selected != "" {
		text += " (selected)"
	}
	return text + "\n"
}

// formatState renders a session state for an agent, in document units
func (s *Server) formatState(sess *session.Session, st session.State) string {
	if !st.Loaded {
		return "No template is open." + s.drainNotes(sess)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Template: %s (id %s)\n", st.TemplateName, st.TemplateID)
	fmt.Fprintf(&b, "Session: %s\n", st.SessionID)
	fmt.Fprintf(&b, "Page %d of %d, zoom %.2f\n", st.View.Page, st.View.PageCount, st.View.Scale)
	if st.View.Dirty {
		b.WriteString("Unsaved changes\n")
	}
	if st.View.Tool != "" {
		fmt.Fprintf(&b, "Armed tool: %s\n", st.View.Tool)
	}

	onPage := make([]fields.Field, 0)
	for _, f := range sess.Fields() {
		if f.PageNumber == st.View.Page {
			onPage = append(onPage, f)
		}
	}
	if len(onPage) == 0 {
		fmt.Fprintf(&b, "\n%s\n", st.View.EmptyMessage)
	} else {
		fmt.Fprintf(&b, "\nFields on this page (%d of %d):\n", len(onPage), st.FieldCount)
		for _, f := range sortFields(onPage) {
			b.WriteString(formatField(f, st.View.SelectedID))
		}
	}
	return b.String() + s.drainNotes(sess)
}

// Run serves MCP over stdio until the client disconnects
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio",
		zap.String("name", s.config.ServerName), zap.String("api", s.config.APIURL))

	stdio := server.NewStdioServer(s.mcpServer)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
