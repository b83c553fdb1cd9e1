package dataset

import (
	"errors"

	"github.com/kerem-kaynak/tablecat/internal/lock"
	"github.com/kerem-kaynak/tablecat/internal/schema"
)

var (
	ErrDatasetLocked          = lock.ErrDatasetLocked
	ErrAlreadyImported        = errors.New("upload has already been imported")
	ErrUnsupportedFileType    = errors.New("unsupported file type")
	ErrSchemaMismatch         = errors.New("columns do not match the dataset schema")
	ErrNotFound               = errors.New("dataset not found")
	ErrRowNotFound            = errors.New("row not found")
	ErrInvalidRow             = errors.New("invalid row")
	ErrInvalidOverride        = schema.ErrInvalidOverride
	ErrInvalidExternalIDField = errors.New("external id column out of range")
	ErrSlugTaken              = errors.New("slug is already in use")
	ErrInvalidSlug            = errors.New("slug may only contain lowercase letters, digits, underscores and single dashes")
	ErrUnknownCategory        = errors.New("unknown category")
)
