package typedesc

// FieldDescriptor describes one declared column of a table: its name, type
// descriptor and storage markers. Descriptors are derived once at
// schema-registration time and are immutable afterward.
type FieldDescriptor struct {
	Name       string
	Type       Type
	Nullable   bool
	HasDefault bool
	Unique     bool
	PrimaryKey bool
}

// Column returns the storage column name for the field. Foreign-reference
// fields store the referenced id, so their column carries the "_id" suffix.
func (f FieldDescriptor) Column() string {
	if f.IsForeignRef() {
		return f.Name + "_id"
	}
	return f.Name
}

// IsForeignRef reports whether the field is a foreign reference, unwrapping
// an Optional wrapper if present.
func (f FieldDescriptor) IsForeignRef() bool {
	_, ok := Base(f.Type).(ForeignRef)
	return ok
}

// Base unwraps Optional wrappers and returns the underlying descriptor.
func Base(t Type) Type {
	for {
		opt, ok := t.(Optional)
		if !ok {
			return t
		}
		t = opt.Inner
	}
}
