package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/a3tai/pdf-field-builder/internal/fields"
)

// ID is a server identifier. The template API sends ids as JSON numbers or
// strings; both decode to the same value.
type ID string

// UnmarshalJSON accepts a string, a number or null
func (id *ID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", b, err)
	}
	*id = ID(n.String())
	return nil
}

// Template is the metadata of a stored template
type Template struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PDFURL      string `json:"pdf_url"`
}

// FieldRecord is the wire form of a field
type FieldRecord struct {
	ID           ID      `json:"id,omitempty"`
	TemporaryID  string  `json:"temporary_id,omitempty"`
	PageNumber   int     `json:"page_number"`
	FieldType    string  `json:"field_type"`
	FieldName    string  `json:"field_name"`
	FieldLabel   string  `json:"field_label,omitempty"`
	XPosition    float64 `json:"x_position"`
	YPosition    float64 `json:"y_position"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	IsRequired   bool    `json:"is_required"`
	DefaultValue string  `json:"default_value,omitempty"`
	FontSize     float64 `json:"font_size,omitempty"`
	FontFamily   string  `json:"font_family,omitempty"`
	FontColor    string  `json:"font_color,omitempty"`
}

// RecordFromField converts a model field for saving. Locally created fields
// go out without a server id and carry their temporary id instead.
func RecordFromField(f fields.Field) FieldRecord {
	r := FieldRecord{
		PageNumber:   f.PageNumber,
		FieldType:    string(f.Type),
		FieldName:    f.Name,
		FieldLabel:   f.Label,
		XPosition:    f.X,
		YPosition:    f.Y,
		Width:        f.Width,
		Height:       f.Height,
		IsRequired:   f.Required,
		DefaultValue: f.DefaultValue,
		FontSize:     f.FontSize,
		FontFamily:   f.FontFamily,
		FontColor:    f.FontColor,
	}
	if f.IsTemporary() {
		r.TemporaryID = f.ID
	} else {
		r.ID = ID(f.ID)
	}
	return r
}

// Field converts a wire record into a model field. ok is false when the
// record's type is unknown; the field then falls back to a text field.
func (r FieldRecord) Field() (f fields.Field, ok bool) {
	typ, err := fields.ParseType(r.FieldType)
	ok = err == nil
	if !ok {
		typ = fields.TypeText
	}
	page := r.PageNumber
	if page < 1 {
		page = 1
	}

	f = fields.Field{
		ID:           string(r.ID),
		PageNumber:   page,
		Type:         typ,
		Name:         r.FieldName,
		Label:        r.FieldLabel,
		X:            r.XPosition,
		Y:            r.YPosition,
		Width:        r.Width,
		Height:       r.Height,
		Required:     r.IsRequired,
		DefaultValue: r.DefaultValue,
		FontSize:     r.FontSize,
		FontFamily:   r.FontFamily,
		FontColor:    r.FontColor,
	}
	size := typ.DefaultSize()
	if f.Width <= 0 {
		f.Width = size.Width
	}
	if f.Height <= 0 {
		f.Height = size.Height
	}
	if f.FontSize <= 0 {
		f.FontSize = fields.DefaultFontSize
	}
	if f.FontFamily == "" {
		f.FontFamily = fields.DefaultFontFamily
	}
	if f.FontColor == "" {
		f.FontColor = fields.DefaultFontColor
	}
	return f, ok
}
