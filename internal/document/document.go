// Package document inspects template PDFs: page count and page dimensions for
// the editor surface, and existing AcroForm widgets for field import.
package document

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-field-builder/internal/geometry"
)

// Library names the PDF backend that produced a result
type Library string

const (
	LibraryPDFCPU     Library = "pdfcpu"
	LibraryLedongthuc Library = "ledongthuc"
)

// US Letter, used when a page declares no usable MediaBox
var defaultPageSize = geometry.Size{Width: 612, Height: 792}

var (
	ErrEmptyDocument = errors.New("document is empty")
	ErrTooLarge      = errors.New("document exceeds maximum size")
	ErrNoPages       = errors.New("document has no pages")
)

// Error reports a failure inside one PDF backend
type Error struct {
	Library Library `json:"library"`
	Op      string  `json:"operation"`
	Err     error   `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("PDF %s library error in %s: %v", e.Library, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Geometry is the page layout of a document in PDF points
type Geometry struct {
	Pages   []geometry.Size `json:"pages"`
	Library Library         `json:"library,omitempty"`
}

// PageCount returns the number of pages
func (g Geometry) PageCount() int {
	return len(g.Pages)
}

// PageSize returns the size of a 1-based page
func (g Geometry) PageSize(page int) (geometry.Size, bool) {
	if page < 1 || page > len(g.Pages) {
		return geometry.Size{}, false
	}
	return g.Pages[page-1], true
}

// Inspector reads page geometry with pdfcpu and falls back to ledongthuc/pdf
// for files pdfcpu refuses.
type Inspector struct {
	maxSize int64
	logger  *zap.Logger
}

// NewInspector creates an inspector. maxSize <= 0 disables the size check.
func NewInspector(maxSize int64, logger *zap.Logger) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{maxSize: maxSize, logger: logger}
}

func (i *Inspector) check(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyDocument
	}
	if i.maxSize > 0 && int64(len(data)) > i.maxSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), i.maxSize)
	}
	return nil
}

// Inspect returns the page geometry of a PDF
func (i *Inspector) Inspect(data []byte) (Geometry, error) {
	if err := i.check(data); err != nil {
		return Geometry{}, err
	}

	g, err := inspectPDFCPU(data)
	if err == nil {
		return g, nil
	}
	i.logger.Debug("pdfcpu could not read document, falling back", zap.Error(err))

	g, fallbackErr := inspectLedongthuc(data)
	if fallbackErr != nil {
		return Geometry{}, errors.Join(err, fallbackErr)
	}
	return g, nil
}

func readContext(data []byte) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, &Error{Library: LibraryPDFCPU, Op: "read", Err: fmt.Errorf("failed to read PDF context: %w", err)}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &Error{Library: LibraryPDFCPU, Op: "read", Err: fmt.Errorf("failed to ensure page count: %w", err)}
	}
	return ctx, nil
}

func inspectPDFCPU(data []byte) (Geometry, error) {
	ctx, err := readContext(data)
	if err != nil {
		return Geometry{}, err
	}
	if ctx.PageCount < 1 {
		return Geometry{}, &Error{Library: LibraryPDFCPU, Op: "inspect", Err: ErrNoPages}
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return Geometry{}, &Error{Library: LibraryPDFCPU, Op: "page_dims", Err: err}
	}

	g := Geometry{Pages: make([]geometry.Size, 0, ctx.PageCount), Library: LibraryPDFCPU}
	for n := 0; n < ctx.PageCount; n++ {
		size := defaultPageSize
		if n < len(dims) && dims[n].Width > 0 && dims[n].Height > 0 {
			size = geometry.Size{Width: dims[n].Width, Height: dims[n].Height}
		}
		g.Pages = append(g.Pages, size)
	}
	return g, nil
}

func inspectLedongthuc(data []byte) (Geometry, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Geometry{}, &Error{Library: LibraryLedongthuc, Op: "read", Err: err}
	}
	count := r.NumPage()
	if count < 1 {
		return Geometry{}, &Error{Library: LibraryLedongthuc, Op: "inspect", Err: ErrNoPages}
	}

	g := Geometry{Pages: make([]geometry.Size, 0, count), Library: LibraryLedongthuc}
	for n := 1; n <= count; n++ {
		g.Pages = append(g.Pages, mediaBox(r.Page(n).V))
	}
	return g, nil
}

// mediaBox reads a page's MediaBox, following the inherited attribute up the
// page tree.
func mediaBox(page pdf.Value) geometry.Size {
	for v := page; !v.IsNull(); v = v.Key("Parent") {
		box := v.Key("MediaBox")
		if box.IsNull() || box.Len() != 4 {
			continue
		}
		w := box.Index(2).Float64() - box.Index(0).Float64()
		h := box.Index(3).Float64() - box.Index(1).Float64()
		if w < 0 {
			w = -w
		}
		if h < 0 {
			h = -h
		}
		if w > 0 && h > 0 {
			return geometry.Size{Width: w, Height: h}
		}
	}
	return defaultPageSize
}
