package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/search"
)

// UpdateFullTextIndex rebuilds the catalog document of a dataset.
func (s *Service) UpdateFullTextIndex(ctx context.Context, id uuid.UUID, commit bool) error {
	ds, err := s.store.GetForIndex(ctx, id)
	if err != nil {
		return err
	}

	doc := search.CatalogDocument(ds, s.categoryKeys(ds), s.fullText(ds))
	if err := s.engine.Add(ctx, s.collections.Catalog, []search.Document{doc}, commit); err != nil {
		return fmt.Errorf("failed to index catalog entry of %s: %w", ds.Slug, err)
	}
	return nil
}

func (s *Service) categoryKeys(ds *entity.Dataset) []string {
	if len(ds.Categories) == 0 {
		return []string{s.collections.Uncategorized}
	}
	keys := make([]string, len(ds.Categories))
	for i, c := range ds.Categories {
		keys[i] = c.ID.String()
	}
	return keys
}

func (s *Service) fullText(ds *entity.Dataset) string {
	parts := []string{ds.Name, ds.Description}

	if ds.Creator != nil {
		parts = append(parts, ds.Creator.DisplayName(), ds.Creator.Email)
	}

	if len(ds.Categories) == 0 {
		parts = append(parts, s.collections.Uncategorized)
	}
	for _, c := range ds.Categories {
		parts = append(parts, c.Name)
	}

	seen := map[uuid.UUID]bool{}
	for _, u := range ds.DataUploads {
		seen[u.ID] = true
		parts = append(parts, u.OriginalFilename)
	}
	if ds.InitialUpload != nil && !seen[ds.InitialUpload.ID] {
		parts = append(parts, ds.InitialUpload.OriginalFilename)
	}
	for _, u := range ds.RelatedUploads {
		parts = append(parts, u.OriginalFilename)
	}

	parts = append(parts, ds.ColumnNames()...)
	return strings.Join(parts, "\n")
}
