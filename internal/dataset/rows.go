package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/search"
)

// Row is one row to write. An empty ExternalID gets a generated one.
type Row struct {
	Data       []string
	ExternalID string
}

// GetRow returns the row document with the given external id.
func (s *Service) GetRow(ctx context.Context, ds *entity.Dataset, externalID string) (search.Document, error) {
	res, err := s.engine.Query(ctx, s.collections.Rows, search.Query{
		Filter: search.RowFilter(ds.Slug, externalID),
		Limit:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Docs) == 0 {
		return nil, ErrRowNotFound
	}
	return res.Docs[0], nil
}

// AddRow writes one row, overwriting any row with the same external id, and
// returns the external id used.
func (s *Service) AddRow(ctx context.Context, ds *entity.Dataset, user *entity.User, data []string, externalID string) (string, error) {
	if err := validateRow(ds, data, externalID); err != nil {
		return "", err
	}
	if externalID == "" {
		externalID = uuid.NewString()
	}

	doc := search.RowDocument(ds, externalID, data)
	if err := s.engine.Add(ctx, s.collections.Rows, []search.Document{doc}, true); err != nil {
		return "", err
	}

	if len(ds.SampleData) < entity.SampleSize {
		ds.SampleData = append(ds.SampleData, data)
	}

	before := ds.Count()
	after, err := s.refreshRowCount(ctx, ds)
	if err != nil {
		return "", err
	}

	summary := "1 row updated"
	if after > before {
		summary = "1 row added"
	}
	s.RecordModification(ds, userID(user), summary)

	if err := s.store.Save(ctx, ds); err != nil {
		return "", fmt.Errorf("failed to save dataset: %w", err)
	}
	return externalID, nil
}

// AddManyRows writes rows in one batch. Rows whose external id already
// exists are overwritten; the summary splits the batch into added and
// updated by the change in row count.
func (s *Service) AddManyRows(ctx context.Context, ds *entity.Dataset, user *entity.User, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	for i, r := range rows {
		if err := validateRow(ds, r.Data, r.ExternalID); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}

	docs := s.rowDocuments(ds, rows)
	if err := s.engine.Add(ctx, s.collections.Rows, docs, true); err != nil {
		return err
	}

	for _, r := range rows {
		if len(ds.SampleData) >= entity.SampleSize {
			break
		}
		ds.SampleData = append(ds.SampleData, r.Data)
	}

	before := ds.Count()
	after, err := s.refreshRowCount(ctx, ds)
	if err != nil {
		return err
	}

	added := int(after - before)
	if added < 0 {
		added = 0
	}
	if added > len(rows) {
		added = len(rows)
	}
	s.RecordModification(ds, userID(user), batchSummary(added, len(rows)-added))

	if err := s.store.Save(ctx, ds); err != nil {
		return fmt.Errorf("failed to save dataset: %w", err)
	}
	return nil
}

func batchSummary(added, updated int) string {
	switch {
	case added > 0 && updated > 0:
		return fmt.Sprintf("%s added and %d updated", rowsPhrase(added), updated)
	case updated > 0:
		return fmt.Sprintf("%s updated", rowsPhrase(updated))
	default:
		return fmt.Sprintf("%s added", rowsPhrase(added))
	}
}

func rowsPhrase(n int) string {
	if n == 1 {
		return "1 row"
	}
	return fmt.Sprintf("%d rows", n)
}

// DeleteRow removes the row with the given external id.
func (s *Service) DeleteRow(ctx context.Context, ds *entity.Dataset, user *entity.User, externalID string) error {
	if err := s.engine.Delete(ctx, s.collections.Rows, search.RowFilter(ds.Slug, externalID), true); err != nil {
		return err
	}
	if _, err := s.refreshRowCount(ctx, ds); err != nil {
		return err
	}
	s.RecordModification(ds, userID(user), "1 row deleted")

	if err := s.store.Save(ctx, ds); err != nil {
		return fmt.Errorf("failed to save dataset: %w", err)
	}
	return nil
}

// DeleteAllRows removes every row of the dataset.
func (s *Service) DeleteAllRows(ctx context.Context, ds *entity.Dataset, user *entity.User) error {
	prior := ds.Count()
	if err := s.engine.Delete(ctx, s.collections.Rows, search.DatasetRowsFilter(ds.Slug), true); err != nil {
		return err
	}

	var zero int64
	ds.RowCount = &zero
	s.RecordModification(ds, userID(user), fmt.Sprintf("All %d rows deleted", prior))

	if err := s.store.Save(ctx, ds); err != nil {
		return fmt.Errorf("failed to save dataset: %w", err)
	}
	return nil
}

// CountRows asks the index engine how many rows the dataset has.
func (s *Service) CountRows(ctx context.Context, ds *entity.Dataset) (int64, error) {
	res, err := s.engine.Query(ctx, s.collections.Rows, search.Query{Filter: search.DatasetRowsFilter(ds.Slug)})
	if err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", ds.Slug, err)
	}
	return res.NumFound, nil
}

func (s *Service) refreshRowCount(ctx context.Context, ds *entity.Dataset) (int64, error) {
	n, err := s.CountRows(ctx, ds)
	if err != nil {
		return 0, err
	}
	ds.RowCount = &n
	return n, nil
}

// SearchRows runs a text query over the rows of a dataset.
func (s *Service) SearchRows(ctx context.Context, ds *entity.Dataset, text string, limit, offset int) (*search.Result, error) {
	return s.engine.Query(ctx, s.collections.Rows, search.Query{
		Text:   text,
		Filter: search.DatasetRowsFilter(ds.Slug),
		Limit:  limit,
		Offset: offset,
	})
}

// RowGroup is one dataset's share of a search across all rows. Dataset is
// nil when the rows outlive their dataset.
type RowGroup struct {
	Slug     string
	Dataset  *entity.Dataset
	Rows     []search.Document
	NumFound int64
}

type GroupedRows struct {
	Groups    []RowGroup
	NumGroups int
}

// SearchAllRows runs a text query over the rows of every dataset and groups
// the hits by dataset, largest group first. limit and offset page through
// the groups, rowLimit and rowOffset through the rows of each group.
func (s *Service) SearchAllRows(ctx context.Context, text string, limit, offset, rowLimit, rowOffset int) (*GroupedRows, error) {
	counts, err := s.engine.Facet(ctx, s.collections.Rows, search.Query{Text: text}, search.FieldDatasetSlug)
	if err != nil {
		return nil, err
	}

	slugs := make([]string, 0, len(counts))
	for slug, n := range counts {
		if n > 0 {
			slugs = append(slugs, slug)
		}
	}
	sort.Slice(slugs, func(i, j int) bool {
		a, b := slugs[i], slugs[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return a < b
	})

	out := &GroupedRows{NumGroups: len(slugs), Groups: []RowGroup{}}
	if offset >= len(slugs) {
		return out, nil
	}
	end := len(slugs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	for _, slug := range slugs[offset:end] {
		ds, err := s.store.GetBySlug(ctx, slug)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		res, err := s.engine.Query(ctx, s.collections.Rows, search.Query{
			Text:   text,
			Filter: search.DatasetRowsFilter(slug),
			Limit:  rowLimit,
			Offset: rowOffset,
		})
		if err != nil {
			return nil, err
		}
		out.Groups = append(out.Groups, RowGroup{Slug: slug, Dataset: ds, Rows: res.Docs, NumFound: res.NumFound})
	}
	return out, nil
}

// IndexRows writes rows without validation or bookkeeping. Import and
// reindex runs use it and reconcile the row count themselves.
func (s *Service) IndexRows(ctx context.Context, ds *entity.Dataset, rows []Row, commit bool) error {
	if len(rows) == 0 {
		return nil
	}
	return s.engine.Add(ctx, s.collections.Rows, s.rowDocuments(ds, rows), commit)
}

func (s *Service) rowDocuments(ds *entity.Dataset, rows []Row) []search.Document {
	docs := make([]search.Document, len(rows))
	for i, r := range rows {
		id := r.ExternalID
		if id == "" {
			id = uuid.NewString()
		}
		docs[i] = search.RowDocument(ds, id, r.Data)
	}
	return docs
}
