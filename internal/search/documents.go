package search

import (
	"strings"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/entity"
)

// Document fields shared by the dataset layer and the engine setup.
const (
	FieldID          = "id"
	FieldDatasetSlug = "dataset_slug"
	FieldExternalID  = "external_id"
	FieldData        = "data"
	FieldFullText    = "full_text"

	FieldSlug         = "slug"
	FieldName         = "name"
	FieldCreationDate = "creation_date"
	FieldCategories   = "categories"
)

var rowNamespace = uuid.MustParse("6f1c2b8e-4d0a-4b5e-9c57-2a3e8f41d0c7")

// RowID is the document key of a row. It only depends on the dataset slug
// and the external id, so writing the same row twice overwrites it.
func RowID(slug, externalID string) string {
	return uuid.NewSHA1(rowNamespace, []byte(slug+"/"+externalID)).String()
}

// RowFilter matches a single row of a dataset.
func RowFilter(slug, externalID string) Filter {
	return Eq(FieldDatasetSlug, slug).And(FieldExternalID, externalID)
}

// DatasetRowsFilter matches every row of a dataset.
func DatasetRowsFilter(slug string) Filter {
	return Eq(FieldDatasetSlug, slug)
}

// CatalogFilter matches the catalog document of a dataset.
func CatalogFilter(slug string) Filter {
	return Eq(FieldSlug, slug)
}

// RowDocument builds the row document for data. Every indexed column adds a
// typed field under its indexed name; cells that do not coerce are left out.
func RowDocument(ds *entity.Dataset, externalID string, data []string) Document {
	doc := Document{
		FieldID:          RowID(ds.Slug, externalID),
		FieldDatasetSlug: ds.Slug,
		FieldExternalID:  externalID,
		FieldData:        data,
		FieldFullText:    strings.Join(data, "\n"),
	}

	for i, col := range ds.ColumnSchema {
		if !col.Indexed || col.IndexedName == nil || i >= len(data) {
			continue
		}
		if v, ok := Coerce(col.Type, data[i]); ok {
			doc[*col.IndexedName] = v
		}
	}
	return doc
}

// CatalogDocument builds the catalog entry of a dataset.
func CatalogDocument(ds *entity.Dataset, categories []string, fullText string) Document {
	return Document{
		FieldID:           ds.ID.String(),
		FieldSlug:         ds.Slug,
		FieldName:         ds.Name,
		FieldCreationDate: ds.CreationDate.UTC().Format("2006-01-02T15:04:05Z"),
		FieldCategories:   categories,
		FieldFullText:     fullText,
	}
}

// ExternalID returns the external id stored in a row document.
func (d Document) ExternalID() string {
	s, _ := d[FieldExternalID].(string)
	return s
}

// Data returns the raw cell values of a row document, whether they were
// built locally or decoded from the engine's JSON.
func (d Document) Data() []string {
	switch v := d[FieldData].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, len(v))
		for i, x := range v {
			if s, ok := x.(string); ok {
				out[i] = s
			}
		}
		return out
	}
	return nil
}
