package entity

// ColumnDescriptor describes one column of a dataset. It is stored inside the
// dataset's column_schema JSON document rather than in its own table.
type ColumnDescriptor struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Indexed     bool    `json:"indexed"`
	IndexedName *string `json:"indexed_name"`
	Min         any     `json:"min"`
	Max         any     `json:"max"`
}
