package jobs

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/kerem-kaynak/tablecat/internal/dataset"
	"github.com/kerem-kaynak/tablecat/internal/tasks"
	"go.uber.org/zap"
)

// Export writes every row of the dataset as CSV to object storage. The
// header is the schema's column names.
func (j *Jobs) Export(ctx context.Context, req tasks.Request) (msg string, err error) {
	ds, err := j.datasets.Get(ctx, req.DatasetID)
	if err != nil {
		return "", err
	}

	path := req.Filename
	if path == "" {
		path = fmt.Sprintf("exports/%s-%s.csv", ds.Slug, time.Now().UTC().Format("20060102T150405"))
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ds.ColumnNames()); err != nil {
		return "", err
	}

	n := 0
	err = j.eachRow(ctx, ds, func(r dataset.Row) error {
		if n%j.batchSize == 0 {
			if err := j.checkAbort(ctx, req); err != nil {
				return err
			}
		}
		n++
		return w.Write(r.Data)
	})
	if err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write csv: %w", err)
	}

	location, err := j.storage.Put(ctx, path, &buf)
	if err != nil {
		return "", err
	}

	j.logger.Info("Export finished", zap.String("dataset", ds.Slug), zap.Int("rows", n), zap.String("location", location))
	return fmt.Sprintf("%d rows exported to %s", n, location), nil
}
