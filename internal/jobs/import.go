package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/kerem-kaynak/tablecat/internal/dataset"
	"github.com/kerem-kaynak/tablecat/internal/tasks"
	"go.uber.org/zap"
)

var ErrMissingUpload = errors.New("import request has no upload")

// Import reads every row of the upload into the index, reconciles the row
// count and marks the upload imported.
func (j *Jobs) Import(ctx context.Context, req tasks.Request) (msg string, err error) {
	if req.UploadID == nil {
		return "", ErrMissingUpload
	}
	ds, err := j.datasets.Get(ctx, req.DatasetID)
	if err != nil {
		return "", err
	}
	u, err := j.uploads.Get(ctx, *req.UploadID)
	if err != nil {
		return "", err
	}
	src, ok := j.registry.Source(u)
	if !ok {
		return "", fmt.Errorf("%w: %s", dataset.ErrUnsupportedFileType, u.OriginalFilename)
	}

	logger := j.logger.With(zap.String("dataset", ds.Slug), zap.String("upload", u.OriginalFilename))
	logger.Info("Import started")

	b := &batcher{size: j.batchSize, flush: func(rows []dataset.Row) error {
		if err := j.checkAbort(ctx, req); err != nil {
			return err
		}
		return j.datasets.IndexRows(ctx, ds, rows, true)
	}}
	width := len(ds.ColumnSchema)
	line := 1

	err = src.Rows(ctx, u, func(cells []string) error {
		line++
		r := dataset.Row{Data: fit(cells, width)}
		if idx := req.ExternalIDFieldIndex; idx != nil && *idx < len(cells) {
			r.ExternalID = cells[*idx]
			if r.ExternalID != "" && !dataset.ValidExternalID(r.ExternalID) {
				return fmt.Errorf("line %d: %w: external id %q", line, dataset.ErrInvalidRow, r.ExternalID)
			}
		}
		return b.add(r)
	})
	if err != nil {
		return "", err
	}
	if err := b.drain(); err != nil {
		return "", err
	}

	count, err := j.datasets.CountRows(ctx, ds)
	if err != nil {
		return "", err
	}
	ds.RowCount = &count

	msg = fmt.Sprintf("%d rows imported from %s", b.total, u.OriginalFilename)
	j.datasets.RecordModification(ds, req.UserID, msg)
	if err := j.datasets.Save(ctx, ds); err != nil {
		return "", fmt.Errorf("failed to save dataset: %w", err)
	}
	if err := j.uploads.MarkImported(ctx, u.ID, ds.ID); err != nil {
		return "", fmt.Errorf("failed to mark upload imported: %w", err)
	}
	if err := j.datasets.UpdateFullTextIndex(ctx, ds.ID, true); err != nil {
		return "", err
	}

	logger.Info("Import finished", zap.Int("rows", b.total), zap.Int64("row_count", count))
	return msg, nil
}

// fit pads or cuts cells to the schema width.
func fit(cells []string, width int) []string {
	if len(cells) == width {
		return cells
	}
	out := make([]string, width)
	copy(out, cells)
	return out
}
