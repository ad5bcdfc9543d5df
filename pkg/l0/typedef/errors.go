package typedef

import "fmt"

// UnknownTypeError indicates a name or code is not in the table.
type UnknownTypeError struct {
	Direction Direction
	Name      string
	Code      byte
}

// Error implements error.
func (e *UnknownTypeError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown %s type %q", e.Direction, e.Name)
	}
	return fmt.Sprintf("unknown type 0x%02x", e.Code)
}

// DuplicateTypeError indicates two records collide when loading a table.
type DuplicateTypeError struct {
	Direction Direction
	Name      string
	Code      byte
	// Field is what collides: "name", "code" or "length".
	Field string
}

// Error implements error.
func (e *DuplicateTypeError) Error() string {
	switch e.Field {
	case "length":
		return fmt.Sprintf("conflicting length for type 0x%02x", e.Code)
	case "name":
		return fmt.Sprintf("duplicate %s type name %q", e.Direction, e.Name)
	}
	return fmt.Sprintf("duplicate %s type code 0x%02x (%q)", e.Direction, e.Code, e.Name)
}
