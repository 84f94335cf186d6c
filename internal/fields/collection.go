package fields

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// DuplicateTolerance is how close (in document units) a new field may land
// to an existing one of the same page, type and name before it is coalesced.
const DuplicateTolerance = 5.0

type entry struct {
	field    Field
	revision uint64
}

// Collection is the field set of one editing session. It is not safe for
// concurrent use; callers serialize access.
type Collection struct {
	entries map[string]*entry
	order   []string
	version uint64
	dirty   bool
	newID   func() string
}

// Option configures a Collection
type Option func(*Collection)

// WithIDGenerator overrides temporary id generation
func WithIDGenerator(gen func() string) Option {
	return func(c *Collection) {
		c.newID = gen
	}
}

// NewCollection creates an empty collection
func NewCollection(opts ...Option) *Collection {
	c := &Collection{
		entries: make(map[string]*entry),
		newID: func() string {
			return TemporaryPrefix + uuid.NewString()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add appends a field with defaults applied and a fresh temporary id.
// If an equivalent field already exists at (nearly) the same spot, that field
// is returned instead and created is false.
func (c *Collection) Add(f Field) (Field, bool, error) {
	if !f.Type.Valid() {
		return Field{}, false, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
	if f.PageNumber < 1 {
		f.PageNumber = 1
	}

	if existing, ok := c.findDuplicate(f); ok {
		return existing, false, nil
	}

	size := f.Type.DefaultSize()
	if f.Width <= 0 {
		f.Width = size.Width
	}
	if f.Height <= 0 {
		f.Height = size.Height
	}
	if f.FontSize <= 0 {
		f.FontSize = DefaultFontSize
	}
	if f.FontFamily == "" {
		f.FontFamily = DefaultFontFamily
	}
	if f.FontColor == "" {
		f.FontColor = DefaultFontColor
	}
	if f.Name == "" {
		f.Name = c.nextName(f.Type)
	}

	f.ID = c.freshID()
	c.insert(f)
	c.dirty = true
	return f, true, nil
}

func (c *Collection) findDuplicate(f Field) (Field, bool) {
	for _, id := range c.order {
		e := c.entries[id]
		ex := e.field
		if ex.PageNumber != f.PageNumber || ex.Type != f.Type {
			continue
		}
		if f.Name != "" && ex.Name != f.Name {
			continue
		}
		if math.Abs(ex.X-f.X) <= DuplicateTolerance && math.Abs(ex.Y-f.Y) <= DuplicateTolerance {
			return ex, true
		}
	}
	return Field{}, false
}

func (c *Collection) nextName(t Type) string {
	n := 1
	for _, id := range c.order {
		if c.entries[id].field.Type == t {
			n++
		}
	}
	for {
		name := fmt.Sprintf("%s_%d", t, n)
		if !c.hasName(name) {
			return name
		}
		n++
	}
}

func (c *Collection) hasName(name string) bool {
	for _, e := range c.entries {
		if e.field.Name == name {
			return true
		}
	}
	return false
}

func (c *Collection) freshID() string {
	for {
		id := c.newID()
		if _, taken := c.entries[id]; !taken && id != "" {
			return id
		}
	}
}

func (c *Collection) insert(f Field) {
	c.version++
	c.entries[f.ID] = &entry{field: f, revision: c.version}
	c.order = append(c.order, f.ID)
}

// Get returns a copy of the field with the given id
func (c *Collection) Get(id string) (Field, bool) {
	e, ok := c.entries[id]
	if !ok {
		return Field{}, false
	}
	return e.field, true
}

// Update applies a patch to one field. Only changes that alter the field's
// box or caption bump its revision.
func (c *Collection) Update(id string, p Patch) (Field, error) {
	e, ok := c.entries[id]
	if !ok {
		return Field{}, fmt.Errorf("%w: %s", ErrFieldNotFound, id)
	}
	if err := p.validate(); err != nil {
		return Field{}, err
	}

	p.apply(&e.field)
	c.version++
	if p.AffectsView() {
		e.revision = c.version
	}
	c.dirty = true
	return e.field, nil
}

// Remove deletes a field by id
func (c *Collection) Remove(id string) error {
	if _, ok := c.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, id)
	}
	delete(c.entries, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.version++
	c.dirty = true
	return nil
}

// ListByPage returns the fields on one page. The order carries no meaning.
func (c *Collection) ListByPage(page int) []Field {
	out := make([]Field, 0)
	for _, id := range c.order {
		if f := c.entries[id].field; f.PageNumber == page {
			out = append(out, f)
		}
	}
	return out
}

// All returns every field
func (c *Collection) All() []Field {
	out := make([]Field, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id].field)
	}
	return out
}

// Len returns the number of fields
func (c *Collection) Len() int {
	return len(c.order)
}

// Replace overwrites the whole collection (no merge) and marks it clean.
// Fields without an id receive a temporary one.
func (c *Collection) Replace(list []Field) {
	c.entries = make(map[string]*entry, len(list))
	c.order = c.order[:0]
	for _, f := range list {
		if f.ID == "" {
			f.ID = c.freshID()
		}
		if _, dup := c.entries[f.ID]; dup {
			f.ID = c.freshID()
		}
		if f.PageNumber < 1 {
			f.PageNumber = 1
		}
		c.insert(f)
	}
	c.version++
	c.dirty = false
}

// Reassign moves a field to a new id, keeping everything else
func (c *Collection) Reassign(oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	e, ok := c.entries[oldID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, oldID)
	}
	if _, taken := c.entries[newID]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateID, newID)
	}
	delete(c.entries, oldID)
	e.field.ID = newID
	c.version++
	e.revision = c.version
	c.entries[newID] = e
	for i, id := range c.order {
		if id == oldID {
			c.order[i] = newID
			break
		}
	}
	return nil
}

// Revision returns the view revision of a field
func (c *Collection) Revision(id string) (uint64, bool) {
	e, ok := c.entries[id]
	if !ok {
		return 0, false
	}
	return e.revision, true
}

// Version increases on every mutation of the collection
func (c *Collection) Version() uint64 {
	return c.version
}

// Dirty reports whether there are unsaved changes
func (c *Collection) Dirty() bool {
	return c.dirty
}

// MarkClean clears the dirty flag
func (c *Collection) MarkClean() {
	c.dirty = false
}
