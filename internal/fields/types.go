package fields

import (
	"fmt"
	"strings"

	"github.com/a3tai/pdf-field-builder/internal/geometry"
)

// Type is the kind of data-entry region a field represents
type Type string

const (
	TypeText      Type = "text"
	TypeNumber    Type = "number"
	TypeDate      Type = "date"
	TypeCheckbox  Type = "checkbox"
	TypeSignature Type = "signature"
	TypeRegion    Type = "region"
	TypeProvince  Type = "province"
	TypeCity      Type = "city"
	TypeBarangay  Type = "barangay"
	TypeEmail     Type = "email"
	TypePhone     Type = "phone"
	TypeTextarea  Type = "textarea"
)

// Defaults applied to newly created fields
const (
	DefaultFontSize   = 12.0
	DefaultFontFamily = "Helvetica"
	DefaultFontColor  = "#000000"
)

var defaultSizes = map[Type]geometry.Size{
	TypeText:      {Width: 120, Height: 25},
	TypeNumber:    {Width: 100, Height: 25},
	TypeDate:      {Width: 110, Height: 25},
	TypeCheckbox:  {Width: 20, Height: 20},
	TypeSignature: {Width: 160, Height: 50},
	TypeRegion:    {Width: 140, Height: 25},
	TypeProvince:  {Width: 140, Height: 25},
	TypeCity:      {Width: 140, Height: 25},
	TypeBarangay:  {Width: 140, Height: 25},
	TypeEmail:     {Width: 160, Height: 25},
	TypePhone:     {Width: 120, Height: 25},
	TypeTextarea:  {Width: 200, Height: 60},
}

// AllTypes lists every supported field type in palette order
func AllTypes() []Type {
	return []Type{
		TypeText, TypeNumber, TypeDate, TypeCheckbox, TypeSignature,
		TypeRegion, TypeProvince, TypeCity, TypeBarangay,
		TypeEmail, TypePhone, TypeTextarea,
	}
}

// Valid reports whether t is a known field type
func (t Type) Valid() bool {
	_, ok := defaultSizes[t]
	return ok
}

// DefaultSize returns the size a field of this type gets when none is given
func (t Type) DefaultSize() geometry.Size {
	if size, ok := defaultSizes[t]; ok {
		return size
	}
	return defaultSizes[TypeText]
}

// IsAddressComponent reports whether the type is part of an address cascade
func (t Type) IsAddressComponent() bool {
	switch t {
	case TypeRegion, TypeProvince, TypeCity, TypeBarangay:
		return true
	}
	return false
}

// ParseType normalizes and validates a type name
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}
