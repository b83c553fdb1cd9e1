// Package schema derives and maintains the column catalog of a dataset.
package schema

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/kerem-kaynak/tablecat/internal/entity"
)

// ErrInvalidOverride is returned when reindex overrides do not fit the schema.
var ErrInvalidOverride = errors.New("invalid column override")

// FromUpload builds an unindexed schema from inferred column names and types.
func FromUpload(columns, guessedTypes []string) []entity.ColumnDescriptor {
	out := make([]entity.ColumnDescriptor, len(columns))
	for i, name := range columns {
		typ := TypeUnicode
		if i < len(guessedTypes) && guessedTypes[i] != "" {
			typ = guessedTypes[i]
		}
		out[i] = entity.ColumnDescriptor{Name: name, Type: typ}
	}
	return out
}

// DeriveIndexedNames assigns index field names to every indexed column, in
// schema order. Names have the form column_<type>_<slug>; a name already taken
// earlier in the schema gets a numeric suffix starting at 2. Unindexed columns
// have their indexed name cleared.
func DeriveIndexedNames(columns []entity.ColumnDescriptor) []entity.ColumnDescriptor {
	taken := make(map[string]bool, len(columns))

	for i := range columns {
		c := &columns[i]
		if !c.Indexed {
			c.IndexedName = nil
			continue
		}

		name := fmt.Sprintf("column_%s_%s", c.Type, ColumnSlug(c.Name))
		if taken[name] {
			n := 2
			for taken[name+strconv.Itoa(n)] {
				n++
			}
			name += strconv.Itoa(n)
		}

		taken[name] = true
		c.IndexedName = &name
	}

	return columns
}

// ApplyOverrides sets the indexed flag and type of columns by position. A nil
// entry, or a position past the end of an override list, leaves that column
// untouched. Lists longer than the schema and unknown types are rejected
// before anything is modified.
func ApplyOverrides(columns []entity.ColumnDescriptor, indexed []*bool, types []*string) error {
	if len(indexed) > len(columns) {
		return fmt.Errorf("%w: %d indexed flags for %d columns", ErrInvalidOverride, len(indexed), len(columns))
	}
	if len(types) > len(columns) {
		return fmt.Errorf("%w: %d column types for %d columns", ErrInvalidOverride, len(types), len(columns))
	}
	for i, t := range types {
		if t != nil && !IsKnownType(*t) {
			return fmt.Errorf("%w: unknown type %q for column %d", ErrInvalidOverride, *t, i)
		}
	}

	for i, flag := range indexed {
		if flag != nil {
			columns[i].Indexed = *flag
		}
	}
	for i, t := range types {
		if t != nil {
			columns[i].Type = *t
		}
	}
	return nil
}

// SameColumns reports whether names matches the schema's column names exactly,
// order included.
func SameColumns(columns []entity.ColumnDescriptor, names []string) bool {
	if len(columns) != len(names) {
		return false
	}
	for i, c := range columns {
		if c.Name != names[i] {
			return false
		}
	}
	return true
}
