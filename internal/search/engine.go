// Package search talks to the index engine. Rows of every dataset live in
// one collection and the dataset catalog in another; both are addressed
// through the Engine interface so the dataset layer never sees the engine's
// own query language.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Term is a single exact-match condition.
type Term struct {
	Field string
	Value string
}

// Filter is a conjunction of exact-match terms.
type Filter []Term

func Eq(field, value string) Filter {
	return Filter{{Field: field, Value: value}}
}

// And returns a new filter matching f and field=value.
func (f Filter) And(field, value string) Filter {
	out := make(Filter, 0, len(f)+1)
	out = append(out, f...)
	return append(out, Term{Field: field, Value: value})
}

func (f Filter) String() string {
	parts := make([]string, len(f))
	for i, t := range f {
		parts[i] = fmt.Sprintf("%s:%s", t.Field, t.Value)
	}
	return strings.Join(parts, " AND ")
}

// Query selects documents of one collection. A zero Limit only counts.
type Query struct {
	Text   string
	Filter Filter
	Limit  int
	Offset int
}

type Document map[string]interface{}

type Result struct {
	Docs     []Document
	NumFound int64
}

// Engine is the index engine contract. With commit set, a call returns only
// once the change is visible to queries.
type Engine interface {
	Add(ctx context.Context, collection string, docs []Document, commit bool) error
	Delete(ctx context.Context, collection string, filter Filter, commit bool) error
	Query(ctx context.Context, collection string, q Query) (*Result, error)
	// Facet counts the documents matching q per value of field.
	Facet(ctx context.Context, collection string, q Query, field string) (map[string]int64, error)
}
