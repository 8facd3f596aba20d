package form

import "strings"

// allowedFieldTypes is the fixed set of type tags a client may declare.
var allowedFieldTypes = map[string]struct{}{
	"string":  {},
	"number":  {},
	"boolean": {},
	"date":    {},
	"email":   {},
	"phone":   {},
	"url":     {},
}

// Schema maps a form field name to its declared type tag. It is immutable
// once attached to a session.
type Schema map[string]string

// Valid reports whether the schema declares at least one field and every
// declared type is a recognized tag. Type tags match case-insensitively.
func (s Schema) Valid() bool {
	if len(s) == 0 {
		return false
	}
	for _, fieldType := range s {
		if _, ok := allowedFieldTypes[strings.ToLower(fieldType)]; !ok {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the schema.
func (s Schema) Clone() Schema {
	if s == nil {
		return nil
	}
	out := make(Schema, len(s))
	for name, fieldType := range s {
		out[name] = fieldType
	}
	return out
}
