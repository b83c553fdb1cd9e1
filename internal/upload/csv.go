package upload

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/schema"
	"github.com/kerem-kaynak/tablecat/internal/search"
	"github.com/kerem-kaynak/tablecat/internal/storage"
)

// inspectRows is how many data rows type guessing looks at.
const inspectRows = 200

// CSV reads comma separated uploads from object storage.
type CSV struct {
	storage storage.ObjectStorage
}

func NewCSV(s storage.ObjectStorage) *CSV {
	return &CSV{storage: s}
}

func (c *CSV) Rows(ctx context.Context, u *entity.DataUpload, fn func(row []string) error) error {
	f, err := c.storage.Open(ctx, u.Filename)
	if err != nil {
		return fmt.Errorf("failed to open upload %s: %w", u.Filename, err)
	}
	defer f.Close()

	r := newReader(f)
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to read header: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read row: %w", err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

// Inspection is what the upload endpoint learns about a file up front.
type Inspection struct {
	Columns      []string
	GuessedTypes []string
	SampleData   [][]string
}

// Inspect reads the header and the first rows of a CSV file and guesses a
// type per column.
func Inspect(src io.Reader) (*Inspection, error) {
	r := newReader(src)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var rows [][]string
	for len(rows) < inspectRows {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}

	in := &Inspection{Columns: header, GuessedTypes: make([]string, len(header))}
	for i := range header {
		in.GuessedTypes[i] = guessType(rows, i)
	}
	if len(rows) > entity.SampleSize {
		in.SampleData = rows[:entity.SampleSize]
	} else {
		in.SampleData = rows
	}
	return in, nil
}

var guessOrder = []string{
	schema.TypeInt,
	schema.TypeFloat,
	schema.TypeBool,
	schema.TypeDate,
	schema.TypeDatetime,
	schema.TypeTime,
}

// guessType picks the first type every non-empty cell of column i coerces
// to. Columns with no values are unicode.
func guessType(rows [][]string, i int) string {
	for _, typ := range guessOrder {
		seen := false
		fits := true
		for _, row := range rows {
			if i >= len(row) || row[i] == "" {
				continue
			}
			seen = true
			if _, ok := search.Coerce(typ, row[i]); !ok {
				fits = false
				break
			}
		}
		if seen && fits {
			return typ
		}
	}
	return schema.TypeUnicode
}

func newReader(src io.Reader) *csv.Reader {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r
}
