package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-field-builder/internal/document"
	"github.com/a3tai/pdf-field-builder/internal/fields"
	"github.com/a3tai/pdf-field-builder/internal/geometry"
)

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	writeText(&buf, Report{
		File:    "clearance.pdf",
		Library: "pdfcpu",
		Pages:   []geometry.Size{{Width: 612, Height: 792}},
		Widgets: []fields.Field{
			{PageNumber: 1, Type: fields.TypeEmail, Name: "email_address", X: 72, Y: 72, Width: 200, Height: 20},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Pages: 1 (read with pdfcpu)")
	assert.Contains(t, out, "1: 612 x 792 pt")
	assert.Contains(t, out, "Form widgets: 1")
	assert.Contains(t, out, "email_address")
	assert.Contains(t, out, "at (72, 72) size 200x20")
}

func TestWriteText_NoWidgets(t *testing.T) {
	var buf bytes.Buffer
	writeText(&buf, Report{File: "blank.pdf", Pages: []geometry.Size{{Width: 100, Height: 100}}})
	assert.Contains(t, buf.String(), "No form widgets found")
}

func TestScan_Errors(t *testing.T) {
	inspector := document.NewInspector(0, nil)

	_, err := scan(filepath.Join(t.TempDir(), "missing.pdf"), inspector)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "not.pdf")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))
	_, err = scan(path, inspector)
	assert.Error(t, err)
}
