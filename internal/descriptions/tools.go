package descriptions

// Tool descriptions shown to MCP clients. Coordinates in every tool are PDF
// points measured from the top-left corner of the page.

const (
	// Session tools
	OpenTemplateDescription = `Open a PDF template for field editing.

**When to use:** First step of every editing task. Loads the template metadata, the page sizes of its PDF and the fields saved so far.

**Examples:**
• "Open template 42 and show me the fields on page 1"
• "Load the barangay clearance template so we can add signature boxes"

**Best practices:** Opening another template replaces the current working set. Save first if builder_view reports unsaved changes.`

	ViewDescription = `Show the active page: template, page number, zoom, selection and every field on the page with its position and size.

**When to use:** After any change, or before placing fields to see what is already there.`

	ListFieldsDescription = `List the fields of the open template, optionally limited to one page.`

	// Editing tools
	DrawFieldDescription = `Create a field by dragging a rectangle on a page, exactly as a user would with the mouse.

**When to use:** You know the box the field should occupy (for example from the printed form lines).

**Examples:**
• "Draw a text field from (72,120) to (300,140) on page 1"
• "Draw a signature box from (350,700) to (550,750) on page 2"

**Best practices:** The rectangle is clipped to the page. Boxes smaller than the minimum size are rejected with a warning and nothing is created. The new field is selected.`

	AddFieldDescription = `Drop a field of the given type at a point. The field gets the default size of its type.

**Default sizes:** text 120x25, number 100x25, date 110x25, checkbox 20x20, signature 160x50, region/province/city/barangay 140x25, email 160x25, phone 120x25, textarea 200x60.

**Best practices:** Dropping the same type at (almost) the same spot again returns the existing field instead of creating a duplicate.`

	MoveFieldDescription = `Move a field so its top-left corner lands at a new position. The field stays inside its page.`

	ResizeFieldDescription = `Resize a field by dragging one of its corners (nw, ne, sw, se). The opposite corner stays fixed; the field never shrinks below the minimum size or grows past the page.`

	UpdateFieldDescription = `Change field properties: name, label, type, required flag, default value, font size, font family or font colour.`

	DeleteFieldDescription = `Delete a field. This is destructive: call it with confirm=true only after the user agreed.`

	DetectFieldsDescription = `Import the form widgets already present in the template PDF (AcroForm text boxes, checkboxes, signature fields) as builder fields.

**Best practices:** With replace=true every current field is removed first, which needs confirm=true. Without replace, widgets that match an existing field are skipped.`

	// Navigation tools
	SetPageDescription = `Switch the active page. Any drag in progress ends and the selection is cleared.`

	ZoomDescription = `Change the zoom: "in", "out", "set" (with scale), "fit_width" or "fit_page" (with the container size in pixels).`

	// Persistence tools
	SaveDescription = `Save every field of the open template to the template service. Temporary ids are replaced by the ids the service assigns.`

	ServerInfoDescription = `Show server information, the available tools, the field types and the open editing session.`
)
