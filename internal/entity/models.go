package entity

// Models lists every persisted model, in migration order.
func Models() []any {
	return []any{&User{}, &Category{}, &TaskStatus{}, &DataUpload{}, &RelatedUpload{}, &Dataset{}}
}
