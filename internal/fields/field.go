// Package fields holds the in-memory field collection of a template editing
// session. The collection is the single source of truth: every visual box is
// derived from it and nothing is ever read back from the view.
package fields

import (
	"errors"
	"strings"

	"github.com/a3tai/pdf-field-builder/internal/geometry"
)

// TemporaryPrefix marks ids assigned locally before the first save
const TemporaryPrefix = "tmp_"

var (
	ErrFieldNotFound   = errors.New("field not found")
	ErrUnknownType     = errors.New("unknown field type")
	ErrInvalidGeometry = errors.New("field width and height must be positive")
	ErrInvalidPage     = errors.New("page number must be 1 or greater")
	ErrDuplicateID     = errors.New("field id already in use")
)

// Field is a positioned, typed data-entry region on one page of a template.
// Position and size are always in document space.
type Field struct {
	ID           string  `json:"id"`
	PageNumber   int     `json:"page_number"`
	Type         Type    `json:"type"`
	Name         string  `json:"name"`
	Label        string  `json:"label,omitempty"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	Required     bool    `json:"required"`
	DefaultValue string  `json:"default_value,omitempty"`
	FontSize     float64 `json:"font_size"`
	FontFamily   string  `json:"font_family"`
	FontColor    string  `json:"font_color"`
}

// IsTemporary reports whether the field has not been saved yet
func (f Field) IsTemporary() bool {
	return IsTemporaryID(f.ID)
}

// Position returns the top-left corner in document space
func (f Field) Position() geometry.Point {
	return geometry.Point{X: f.X, Y: f.Y}
}

// Size returns the dimensions in document space
func (f Field) Size() geometry.Size {
	return geometry.Size{Width: f.Width, Height: f.Height}
}

// Rect returns the document-space bounding box
func (f Field) Rect() geometry.Rect {
	return geometry.Rect{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}
}

// IsTemporaryID reports whether id was assigned locally
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TemporaryPrefix)
}

// Patch describes a partial update; nil members are left untouched
type Patch struct {
	PageNumber   *int     `json:"page_number,omitempty"`
	Type         *Type    `json:"type,omitempty"`
	Name         *string  `json:"name,omitempty"`
	Label        *string  `json:"label,omitempty"`
	X            *float64 `json:"x,omitempty"`
	Y            *float64 `json:"y,omitempty"`
	Width        *float64 `json:"width,omitempty"`
	Height       *float64 `json:"height,omitempty"`
	Required     *bool    `json:"required,omitempty"`
	DefaultValue *string  `json:"default_value,omitempty"`
	FontSize     *float64 `json:"font_size,omitempty"`
	FontFamily   *string  `json:"font_family,omitempty"`
	FontColor    *string  `json:"font_color,omitempty"`
}

// MovePatch builds a patch that only changes the position
func MovePatch(p geometry.Point) Patch {
	return Patch{X: &p.X, Y: &p.Y}
}

// RectPatch builds a patch that changes position and size
func RectPatch(r geometry.Rect) Patch {
	return Patch{X: &r.X, Y: &r.Y, Width: &r.Width, Height: &r.Height}
}

// AffectsView reports whether applying the patch changes the field's box or caption
func (p Patch) AffectsView() bool {
	return p.PageNumber != nil || p.Type != nil || p.Name != nil ||
		p.X != nil || p.Y != nil || p.Width != nil || p.Height != nil
}

func (p Patch) validate() error {
	if p.Type != nil && !p.Type.Valid() {
		return ErrUnknownType
	}
	if (p.Width != nil && *p.Width <= 0) || (p.Height != nil && *p.Height <= 0) {
		return ErrInvalidGeometry
	}
	if p.PageNumber != nil && *p.PageNumber < 1 {
		return ErrInvalidPage
	}
	return nil
}

func (p Patch) apply(f *Field) {
	if p.PageNumber != nil {
		f.PageNumber = *p.PageNumber
	}
	if p.Type != nil {
		f.Type = *p.Type
	}
	if p.Name != nil {
		f.Name = *p.Name
	}
	if p.Label != nil {
		f.Label = *p.Label
	}
	if p.X != nil {
		f.X = *p.X
	}
	if p.Y != nil {
		f.Y = *p.Y
	}
	if p.Width != nil {
		f.Width = *p.Width
	}
	if p.Height != nil {
		f.Height = *p.Height
	}
	if p.Required != nil {
		f.Required = *p.Required
	}
	if p.DefaultValue != nil {
		f.DefaultValue = *p.DefaultValue
	}
	if p.FontSize != nil {
		f.FontSize = *p.FontSize
	}
	if p.FontFamily != nil {
		f.FontFamily = *p.FontFamily
	}
	if p.FontColor != nil {
		f.FontColor = *p.FontColor
	}
}
