package schema

// Type tags a column may carry.
const (
	TypeUnicode  = "unicode"
	TypeInt      = "int"
	TypeFloat    = "float"
	TypeBool     = "bool"
	TypeDate     = "date"
	TypeTime     = "time"
	TypeDatetime = "datetime"
)

var knownTypes = map[string]bool{
	TypeUnicode:  true,
	TypeInt:      true,
	TypeFloat:    true,
	TypeBool:     true,
	TypeDate:     true,
	TypeTime:     true,
	TypeDatetime: true,
}

// IsKnownType reports whether t is a recognized scalar type tag.
func IsKnownType(t string) bool {
	return knownTypes[t]
}
