package jobs

import (
	"context"
	"fmt"

	"github.com/kerem-kaynak/tablecat/internal/dataset"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/tasks"
	"go.uber.org/zap"
)

// Reindex rewrites every row document so typed fields follow the current
// schema.
func (j *Jobs) Reindex(ctx context.Context, req tasks.Request) (msg string, err error) {
	ds, err := j.datasets.Get(ctx, req.DatasetID)
	if err != nil {
		return "", err
	}

	// Rows are read in full before any write so paging sees a stable set.
	var rows []dataset.Row
	err = j.eachRow(ctx, ds, func(r dataset.Row) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return "", err
	}

	b := &batcher{size: j.batchSize, flush: func(batch []dataset.Row) error {
		if err := j.checkAbort(ctx, req); err != nil {
			return err
		}
		return j.datasets.IndexRows(ctx, ds, batch, true)
	}}
	for _, r := range rows {
		if err := b.add(r); err != nil {
			return "", err
		}
	}
	if err := b.drain(); err != nil {
		return "", err
	}

	count, err := j.datasets.CountRows(ctx, ds)
	if err != nil {
		return "", err
	}
	ds.RowCount = &count
	if err := j.datasets.Save(ctx, ds); err != nil {
		return "", fmt.Errorf("failed to save dataset: %w", err)
	}

	j.logger.Info("Reindex finished", zap.String("dataset", ds.Slug), zap.Int("rows", b.total))
	return fmt.Sprintf("%d rows reindexed", b.total), nil
}

// eachRow pages through the stored rows of ds.
func (j *Jobs) eachRow(ctx context.Context, ds *entity.Dataset, fn func(dataset.Row) error) error {
	for offset := 0; ; offset += j.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := j.datasets.SearchRows(ctx, ds, "", j.batchSize, offset)
		if err != nil {
			return err
		}
		for _, doc := range res.Docs {
			if err := fn(dataset.Row{ExternalID: doc.ExternalID(), Data: doc.Data()}); err != nil {
				return err
			}
		}
		if len(res.Docs) < j.batchSize || int64(offset+len(res.Docs)) >= res.NumFound {
			return nil
		}
	}
}
