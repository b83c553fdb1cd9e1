package dataset

import (
	"context"
	"fmt"

	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/search"
	"go.uber.org/zap"
)

// IndexPurger removes a deleted dataset's rows and catalog entry from the
// index. Register AfterDelete with Store.OnDelete.
type IndexPurger struct {
	engine      search.Engine
	collections Collections
	logger      *zap.Logger
}

func NewIndexPurger(engine search.Engine, collections Collections, logger *zap.Logger) *IndexPurger {
	return &IndexPurger{engine: engine, collections: collections, logger: logger}
}

func (p *IndexPurger) AfterDelete(ctx context.Context, ds *entity.Dataset) error {
	if err := p.engine.Delete(ctx, p.collections.Rows, search.DatasetRowsFilter(ds.Slug), true); err != nil {
		p.logger.Error("Failed to purge dataset rows", zap.String("dataset", ds.Slug), zap.Error(err))
		return fmt.Errorf("failed to purge rows of %s: %w", ds.Slug, err)
	}
	if err := p.engine.Delete(ctx, p.collections.Catalog, search.CatalogFilter(ds.Slug), true); err != nil {
		p.logger.Error("Failed to purge catalog entry", zap.String("dataset", ds.Slug), zap.Error(err))
		return fmt.Errorf("failed to purge catalog entry of %s: %w", ds.Slug, err)
	}
	p.logger.Info("Dataset purged from index", zap.String("dataset", ds.Slug))
	return nil
}
