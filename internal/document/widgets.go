package document

import (
	"math"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-field-builder/internal/fields"
	"github.com/a3tai/pdf-field-builder/internal/geometry"
)

// Field flag bits (Ff), PDF 32000-1 tables 221, 226 and 228
const (
	flagRequired   = 1 << 1
	flagMultiline  = 1 << 12
	flagPushbutton = 1 << 16
)

// Parent chains deeper than this are treated as malformed
const maxInheritDepth = 32

// DetectWidgets returns one field per AcroForm widget annotation, positioned
// on its page in top-left document space. Push buttons and widgets without a
// usable rectangle are skipped.
func (i *Inspector) DetectWidgets(data []byte) ([]fields.Field, error) {
	if err := i.check(data); err != nil {
		return nil, err
	}

	ctx, err := readContext(data)
	if err != nil {
		return nil, err
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, &Error{Library: LibraryPDFCPU, Op: "page_dims", Err: err}
	}

	out := make([]fields.Field, 0)
	for page := 1; page <= ctx.PageCount; page++ {
		pageDict, _, _, err := ctx.PageDict(page, false)
		if err != nil || pageDict == nil {
			i.logger.Debug("skipping unreadable page", zap.Int("page", page), zap.Error(err))
			continue
		}
		annotsObj, found := pageDict.Find("Annots")
		if !found {
			continue
		}
		annots, err := ctx.DereferenceArray(annotsObj)
		if err != nil {
			i.logger.Debug("skipping page annotations", zap.Int("page", page), zap.Error(err))
			continue
		}

		size := defaultPageSize
		if page-1 < len(dims) && dims[page-1].Height > 0 {
			size = geometry.Size{Width: dims[page-1].Width, Height: dims[page-1].Height}
		}

		for _, ref := range annots {
			annot, err := ctx.DereferenceDict(ref)
			if err != nil || annot == nil || !isWidget(ctx, annot) {
				continue
			}
			if f, ok := widgetField(ctx, annot, page, size); ok {
				out = append(out, f)
			}
		}
	}

	i.logger.Debug("detected widgets", zap.Int("count", len(out)), zap.Int("pages", ctx.PageCount))
	return out, nil
}

func isWidget(ctx *model.Context, d types.Dict) bool {
	obj, found := d.Find("Subtype")
	if !found {
		return false
	}
	name, err := ctx.DereferenceName(obj, model.V10, nil)
	return err == nil && name == "Widget"
}

// inherited looks a key up on the widget and then along its Parent chain
func inherited(ctx *model.Context, d types.Dict, key string) (types.Object, bool) {
	for depth := 0; d != nil && depth < maxInheritDepth; depth++ {
		if obj, found := d.Find(key); found {
			return obj, true
		}
		parent, found := d.Find("Parent")
		if !found {
			return nil, false
		}
		pd, err := ctx.DereferenceDict(parent)
		if err != nil {
			return nil, false
		}
		d = pd
	}
	return nil, false
}

func inheritedString(ctx *model.Context, d types.Dict, key string) string {
	obj, found := inherited(ctx, d, key)
	if !found {
		return ""
	}
	s, err := ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func widgetFlags(ctx *model.Context, d types.Dict) int {
	obj, found := inherited(ctx, d, "Ff")
	if !found {
		return 0
	}
	v, err := ctx.DereferenceInteger(obj)
	if err != nil || v == nil {
		return 0
	}
	return int(*v)
}

func widgetType(ctx *model.Context, d types.Dict, name string, flags int) (fields.Type, bool) {
	obj, found := inherited(ctx, d, "FT")
	if !found {
		return "", false
	}
	ft, err := ctx.DereferenceName(obj, model.V10, nil)
	if err != nil {
		return "", false
	}

	switch ft {
	case "Tx":
		if flags&flagMultiline != 0 {
			return fields.TypeTextarea, true
		}
		return typeFromName(name), true
	case "Btn":
		if flags&flagPushbutton != 0 {
			return "", false
		}
		return fields.TypeCheckbox, true
	case "Sig":
		return fields.TypeSignature, true
	case "Ch":
		return fields.TypeText, true
	}
	return "", false
}

// typeFromName refines a plain text widget using its field name
func typeFromName(name string) fields.Type {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "email"):
		return fields.TypeEmail
	case strings.Contains(n, "phone"), strings.Contains(n, "mobile"), strings.Contains(n, "telephone"):
		return fields.TypePhone
	case strings.Contains(n, "date"), strings.Contains(n, "dob"):
		return fields.TypeDate
	case strings.Contains(n, "barangay"):
		return fields.TypeBarangay
	case strings.Contains(n, "province"):
		return fields.TypeProvince
	case strings.Contains(n, "city"), strings.Contains(n, "municipality"):
		return fields.TypeCity
	case strings.Contains(n, "region"):
		return fields.TypeRegion
	}
	return fields.TypeText
}

func widgetRect(ctx *model.Context, d types.Dict) (llx, lly, urx, ury float64, ok bool) {
	obj, found := d.Find("Rect")
	if !found {
		return 0, 0, 0, 0, false
	}
	arr, err := ctx.DereferenceArray(obj)
	if err != nil || len(arr) != 4 {
		return 0, 0, 0, 0, false
	}
	var c [4]float64
	for n, o := range arr {
		v, err := ctx.DereferenceNumber(o)
		if err != nil {
			return 0, 0, 0, 0, false
		}
		c[n] = v
	}
	return math.Min(c[0], c[2]), math.Min(c[1], c[3]), math.Max(c[0], c[2]), math.Max(c[1], c[3]), true
}

func widgetField(ctx *model.Context, d types.Dict, page int, size geometry.Size) (fields.Field, bool) {
	llx, lly, urx, ury, ok := widgetRect(ctx, d)
	if !ok || urx-llx <= 0 || ury-lly <= 0 {
		return fields.Field{}, false
	}

	name := inheritedString(ctx, d, "T")
	flags := widgetFlags(ctx, d)
	typ, ok := widgetType(ctx, d, name, flags)
	if !ok {
		return fields.Field{}, false
	}

	f := fields.Field{
		PageNumber: page,
		Type:       typ,
		Name:       name,
		Label:      inheritedString(ctx, d, "TU"),
		Width:      urx - llx,
		Height:     ury - lly,
		Required:   flags&flagRequired != 0,
		FontSize:   fontSize(inheritedString(ctx, d, "DA")),
	}
	pos := geometry.ClampPosition(geometry.Point{X: llx, Y: size.Height - ury}, f.Size(), size)
	f.X, f.Y = pos.X, pos.Y
	return f, true
}

// fontSize extracts the size operand of the Tf operator from a default
// appearance string such as "/Helv 10 Tf 0 g". Auto size (0) yields 0.
func fontSize(da string) float64 {
	parts := strings.Fields(da)
	for n := 1; n < len(parts); n++ {
		if parts[n] != "Tf" {
			continue
		}
		if v, err := strconv.ParseFloat(parts[n-1], 64); err == nil && v > 0 {
			return v
		}
	}
	return 0
}
