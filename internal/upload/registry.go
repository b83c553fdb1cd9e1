package upload

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/kerem-kaynak/tablecat/internal/entity"
)

// RowSource streams the data rows of an upload, header excluded.
type RowSource interface {
	Rows(ctx context.Context, u *entity.DataUpload, fn func(row []string) error) error
}

type format struct {
	task   string
	source RowSource
}

// Registry maps upload file extensions to the task that imports them.
type Registry struct {
	formats map[string]format
}

func NewRegistry() *Registry {
	return &Registry{formats: map[string]format{}}
}

// Register binds an extension such as ".csv" to a task name and row source.
func (r *Registry) Register(ext, task string, source RowSource) {
	r.formats[strings.ToLower(ext)] = format{task: task, source: source}
}

// TaskTypeFor returns the import task for u, or false when its format is
// not supported.
func (r *Registry) TaskTypeFor(u *entity.DataUpload) (string, bool) {
	f, ok := r.lookup(u)
	return f.task, ok
}

func (r *Registry) Source(u *entity.DataUpload) (RowSource, bool) {
	f, ok := r.lookup(u)
	return f.source, ok
}

func (r *Registry) lookup(u *entity.DataUpload) (format, bool) {
	name := u.OriginalFilename
	if name == "" {
		name = u.Filename
	}
	f, ok := r.formats[strings.ToLower(filepath.Ext(name))]
	return f, ok
}
