package entity

// DiffOp tags what a FieldDiff does to a field.
type DiffOp int

const (
	// DiffNone leaves the field untouched.
	DiffNone DiffOp = iota
	// DiffDelete sets the field to null.
	DiffDelete
	// DiffChange assigns the field to a new value.
	DiffChange
)

// FieldDiff is the explicit three-valued union used by EditCoto/EditIto:
// leave it, delete it, or assign it. Deliberately not collapsed into
// Option<Option<T>> at the public interface — the three states are named,
// not nested.
type FieldDiff[T any] struct {
	Op    DiffOp
	Value T
}

// None returns a FieldDiff that leaves the field untouched.
func None[T any]() FieldDiff[T] { return FieldDiff[T]{Op: DiffNone} }

// Delete returns a FieldDiff that nulls the field.
func Delete[T any]() FieldDiff[T] { return FieldDiff[T]{Op: DiffDelete} }

// Change returns a FieldDiff that assigns the field to v.
func Change[T any](v T) FieldDiff[T] { return FieldDiff[T]{Op: DiffChange, Value: v} }

// Apply mutates *field according to the diff: DiffNone leaves it, DiffDelete
// nils it, DiffChange points it at a copy of Value.
func (d FieldDiff[T]) Apply(field **T) {
	switch d.Op {
	case DiffDelete:
		*field = nil
	case DiffChange:
		v := d.Value
		*field = &v
	}
}

// CotoContentDiff is the field-level diff applied by EditCoto.
type CotoContentDiff struct {
	Content       FieldDiff[string]
	Summary       FieldDiff[string]
	Media         FieldDiff[MediaContent]
	Geolocation   FieldDiff[Geolocation]
	DatetimeRange FieldDiff[DatetimeRange]
}

// Apply mutates the given coto in place.
func (d *CotoContentDiff) Apply(c *Coto) {
	d.Content.Apply(&c.Content)
	d.Summary.Apply(&c.Summary)
	d.Media.Apply(&c.Media)
	d.Geolocation.Apply(&c.Geolocation)
	d.DatetimeRange.Apply(&c.DatetimeRange)
}

// ItoContentDiff is the field-level diff applied by EditIto.
type ItoContentDiff struct {
	Description FieldDiff[string]
	Details     FieldDiff[string]
}

// Apply mutates the given ito in place.
func (d *ItoContentDiff) Apply(i *Ito) {
	d.Description.Apply(&i.Description)
	d.Details.Apply(&i.Details)
}
