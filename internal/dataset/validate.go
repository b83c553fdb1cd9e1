package dataset

import (
	"fmt"
	"regexp"

	"github.com/kerem-kaynak/tablecat/internal/entity"
)

var externalIDPattern = regexp.MustCompile(`^[\w-]+$`)

// ValidExternalID reports whether id only holds letters, digits, underscores
// and dashes.
func ValidExternalID(id string) bool {
	return externalIDPattern.MatchString(id)
}

func validateRow(ds *entity.Dataset, data []string, externalID string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: data is required", ErrInvalidRow)
	}
	if externalID != "" && !ValidExternalID(externalID) {
		return fmt.Errorf("%w: external id %q may only contain letters, digits, underscores and dashes", ErrInvalidRow, externalID)
	}
	if !ds.HasSchema() {
		return fmt.Errorf("%w: dataset has no schema yet", ErrInvalidRow)
	}
	if ds.InitialUploadID != nil && ds.RowCount == nil {
		return fmt.Errorf("%w: initial import is still running", ErrInvalidRow)
	}
	if len(data) != len(ds.ColumnSchema) {
		return fmt.Errorf("%w: expected %d values, got %d", ErrInvalidRow, len(ds.ColumnSchema), len(data))
	}
	return nil
}
