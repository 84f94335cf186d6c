// Package bridge loads templates and their fields from the remote template
// API and saves the field set back. It never mutates editor state itself:
// loads return snapshots and saves return the authoritative list, and the
// owning session decides how to apply them.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/a3tai/pdf-field-builder/internal/document"
	"github.com/a3tai/pdf-field-builder/internal/fields"
)

// ErrNoDocument is returned when a template has no PDF attached
var ErrNoDocument = errors.New("template has no PDF document")

// Snapshot is everything a load fetched
type Snapshot struct {
	Template Template
	Geometry document.Geometry
	Fields   []fields.Field
}

// SaveResult is the outcome of a successful save. Assigned maps the
// temporary ids that were sent to the ids the server gave those fields.
type SaveResult struct {
	Message  string
	Fields   []fields.Field
	Assigned map[string]string
}

// Bridge combines the template API with document inspection
type Bridge struct {
	api       API
	inspector *document.Inspector
	cache     document.Cache
	logger    *zap.Logger
}

// New creates a bridge. cache may be nil.
func New(api API, inspector *document.Inspector, cache document.Cache, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if inspector == nil {
		inspector = document.NewInspector(0, logger)
	}
	return &Bridge{api: api, inspector: inspector, cache: cache, logger: logger}
}

// Load fetches template metadata, the page geometry of its PDF and the saved
// fields.
func (b *Bridge) Load(ctx context.Context, templateID string) (Snapshot, error) {
	tpl, err := b.api.FetchTemplate(ctx, templateID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load template %s: %w", templateID, err)
	}
	if tpl.PDFURL == "" {
		return Snapshot{}, fmt.Errorf("load template %s: %w", templateID, ErrNoDocument)
	}

	geo, err := b.geometry(ctx, tpl.PDFURL)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load template %s: %w", templateID, err)
	}

	records, err := b.api.FetchFields(ctx, templateID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load fields of template %s: %w", templateID, err)
	}

	return Snapshot{Template: tpl, Geometry: geo, Fields: b.toFields(records)}, nil
}

func (b *Bridge) geometry(ctx context.Context, ref string) (document.Geometry, error) {
	key := document.CacheKey(ref)
	if b.cache != nil {
		geo, ok, err := b.cache.Get(ctx, key)
		if err != nil {
			b.logger.Warn("geometry cache read failed", zap.Error(err))
		} else if ok && geo.PageCount() > 0 {
			return geo, nil
		}
	}

	data, err := b.api.FetchDocument(ctx, ref)
	if err != nil {
		return document.Geometry{}, err
	}
	geo, err := b.inspector.Inspect(data)
	if err != nil {
		return document.Geometry{}, err
	}

	if b.cache != nil {
		if err := b.cache.Set(ctx, key, geo); err != nil {
			b.logger.Warn("geometry cache write failed", zap.Error(err))
		}
	}
	return geo, nil
}

// DetectWidgets downloads the template PDF and returns its AcroForm widgets
// as new fields
func (b *Bridge) DetectWidgets(ctx context.Context, tpl Template) ([]fields.Field, error) {
	if tpl.PDFURL == "" {
		return nil, ErrNoDocument
	}
	data, err := b.api.FetchDocument(ctx, tpl.PDFURL)
	if err != nil {
		return nil, err
	}
	return b.inspector.DetectWidgets(data)
}

func (b *Bridge) toFields(records []FieldRecord) []fields.Field {
	out := make([]fields.Field, 0, len(records))
	for _, r := range records {
		f, ok := r.Field()
		if !ok {
			b.logger.Warn("unknown field type, treating as text",
				zap.String("field", r.FieldName), zap.String("type", r.FieldType))
		}
		out = append(out, f)
	}
	return out
}

// Save sends the complete field set. The server must answer with
// success=true; when its answer carries no field list the list is fetched
// again.
func (b *Bridge) Save(ctx context.Context, templateID string, list []fields.Field) (SaveResult, error) {
	records := make([]FieldRecord, 0, len(list))
	for _, f := range list {
		records = append(records, RecordFromField(f))
	}

	resp, err := b.api.SaveFields(ctx, templateID, records)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save fields of template %s: %w", templateID, err)
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "no reason given"
		}
		return SaveResult{}, &APIError{Op: "save_fields", Err: fmt.Errorf("%w: %s", ErrRejected, msg)}
	}

	saved := resp.Fields
	if len(saved) == 0 && len(records) > 0 {
		saved, err = b.api.FetchFields(ctx, templateID)
		if err != nil {
			return SaveResult{}, fmt.Errorf("refetch fields of template %s: %w", templateID, err)
		}
	}

	result := SaveResult{
		Message:  resp.Message,
		Fields:   b.toFields(saved),
		Assigned: assignIDs(list, saved),
	}
	b.logger.Info("fields saved",
		zap.String("template", templateID),
		zap.Int("fields", len(result.Fields)),
		zap.Int("assigned", len(result.Assigned)))
	return result, nil
}

// assignIDs pairs each temporary field that was sent with the record the
// server returned for it: by echoed temporary_id first, then by name and page.
func assignIDs(sent []fields.Field, saved []FieldRecord) map[string]string {
	assigned := make(map[string]string)
	claimed := make(map[ID]bool)

	for _, r := range saved {
		if r.TemporaryID != "" && r.ID != "" && fields.IsTemporaryID(r.TemporaryID) {
			assigned[r.TemporaryID] = string(r.ID)
			claimed[r.ID] = true
		}
	}

	for _, f := range sent {
		if !f.IsTemporary() {
			claimed[ID(f.ID)] = true
		}
	}

	for _, f := range sent {
		if !f.IsTemporary() {
			continue
		}
		if _, done := assigned[f.ID]; done {
			continue
		}
		for _, r := range saved {
			if r.ID == "" || claimed[r.ID] {
				continue
			}
			if r.FieldName == f.Name && r.PageNumber == f.PageNumber {
				assigned[f.ID] = string(r.ID)
				claimed[r.ID] = true
				break
			}
		}
	}
	return assigned
}

// Reconcile finds the field in saved that continues the previously selected
// field: same id, then the server id assigned to its temporary id, then the
// same name on the same page within the duplicate tolerance. It returns "" when
// nothing matches.
func Reconcile(selected fields.Field, saved []fields.Field, assigned map[string]string) string {
	if selected.ID == "" {
		return ""
	}
	for _, f := range saved {
		if f.ID == selected.ID {
			return f.ID
		}
	}
	if id, ok := assigned[selected.ID]; ok {
		for _, f := range saved {
			if f.ID == id {
				return id
			}
		}
	}
	for _, f := range saved {
		if f.Name == selected.Name && f.PageNumber == selected.PageNumber &&
			math.Abs(f.X-selected.X) <= fields.DuplicateTolerance &&
			math.Abs(f.Y-selected.Y) <= fields.DuplicateTolerance {
			return f.ID
		}
	}
	return ""
}
