package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kerem-kaynak/tablecat/internal/metrics"
	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

// maxTotalHits bounds exact hit counts; the engine default of 1000 would
// cap row counts.
const maxTotalHits = 1_000_000_000

// defaultMaxFacetValues is the engine's own default.
const defaultMaxFacetValues = 100

// Meilisearch implements Engine on a meilisearch server.
type Meilisearch struct {
	client       *meilisearch.Client
	logger       *zap.Logger
	pollInterval time.Duration
}

func NewMeilisearch(client *meilisearch.Client, logger *zap.Logger) *Meilisearch {
	return &Meilisearch{client: client, logger: logger, pollInterval: 50 * time.Millisecond}
}

// Collection describes the settings a collection needs.
type Collection struct {
	Name       string
	Filterable []string
	Searchable []string
	Sortable   []string
	// MaxFacetValues caps the distinct values a facet reports.
	MaxFacetValues int64
}

// Setup creates the collections if needed and applies their settings.
func (m *Meilisearch) Setup(ctx context.Context, collections ...Collection) error {
	for _, c := range collections {
		task, err := m.client.CreateIndex(&meilisearch.IndexConfig{Uid: c.Name, PrimaryKey: "id"})
		if err != nil {
			return fmt.Errorf("failed to create index %s: %w", c.Name, err)
		}
		// An existing index fails the task, which is fine.
		if _, err := m.client.WaitForTask(task.TaskUID, meilisearch.WaitParams{Context: ctx, Interval: m.pollInterval}); err != nil {
			return fmt.Errorf("failed to create index %s: %w", c.Name, err)
		}

		index := m.client.Index(c.Name)
		var pending []int64
		if len(c.Filterable) > 0 {
			t, err := index.UpdateFilterableAttributes(&c.Filterable)
			if err != nil {
				return fmt.Errorf("failed to update filterable attributes of %s: %w", c.Name, err)
			}
			pending = append(pending, t.TaskUID)
		}
		if len(c.Searchable) > 0 {
			t, err := index.UpdateSearchableAttributes(&c.Searchable)
			if err != nil {
				return fmt.Errorf("failed to update searchable attributes of %s: %w", c.Name, err)
			}
			pending = append(pending, t.TaskUID)
		}
		if len(c.Sortable) > 0 {
			t, err := index.UpdateSortableAttributes(&c.Sortable)
			if err != nil {
				return fmt.Errorf("failed to update sortable attributes of %s: %w", c.Name, err)
			}
			pending = append(pending, t.TaskUID)
		}
		t, err := index.UpdatePagination(&meilisearch.Pagination{MaxTotalHits: maxTotalHits})
		if err != nil {
			return fmt.Errorf("failed to update pagination of %s: %w", c.Name, err)
		}
		pending = append(pending, t.TaskUID)
		if c.MaxFacetValues > 0 && c.MaxFacetValues != defaultMaxFacetValues {
			t, err := index.UpdateFaceting(&meilisearch.Faceting{MaxValuesPerFacet: c.MaxFacetValues})
			if err != nil {
				return fmt.Errorf("failed to update faceting of %s: %w", c.Name, err)
			}
			pending = append(pending, t.TaskUID)
		}

		for _, uid := range pending {
			if err := m.wait(ctx, uid); err != nil {
				return fmt.Errorf("failed to configure index %s: %w", c.Name, err)
			}
		}
		m.logger.Info("Index ready", zap.String("index", c.Name))
	}
	return nil
}

func (m *Meilisearch) Add(ctx context.Context, collection string, docs []Document, commit bool) error {
	if len(docs) == 0 {
		return nil
	}
	metrics.IndexOperations.WithLabelValues(collection, "add").Inc()

	task, err := m.client.Index(collection).AddDocuments(docs, "id")
	if err != nil {
		metrics.IndexErrors.WithLabelValues(collection, "add").Inc()
		return fmt.Errorf("failed to add documents to %s: %w", collection, err)
	}
	if commit {
		if err := m.wait(ctx, task.TaskUID); err != nil {
			metrics.IndexErrors.WithLabelValues(collection, "add").Inc()
			return fmt.Errorf("failed to add documents to %s: %w", collection, err)
		}
	}
	return nil
}

func (m *Meilisearch) Delete(ctx context.Context, collection string, filter Filter, commit bool) error {
	metrics.IndexOperations.WithLabelValues(collection, "delete").Inc()

	task, err := m.client.Index(collection).DeleteDocumentsByFilter(filterExpression(filter))
	if err != nil {
		metrics.IndexErrors.WithLabelValues(collection, "delete").Inc()
		return fmt.Errorf("failed to delete documents from %s: %w", collection, err)
	}
	if commit {
		if err := m.wait(ctx, task.TaskUID); err != nil {
			metrics.IndexErrors.WithLabelValues(collection, "delete").Inc()
			return fmt.Errorf("failed to delete documents from %s: %w", collection, err)
		}
	}
	return nil
}

func (m *Meilisearch) Query(ctx context.Context, collection string, q Query) (*Result, error) {
	metrics.IndexOperations.WithLabelValues(collection, "query").Inc()

	req := &meilisearch.SearchRequest{}
	if len(q.Filter) > 0 {
		req.Filter = filterExpression(q.Filter)
	}
	switch {
	case q.Limit <= 0:
		// Exhaustive count: page mode reports exact totals.
		req.Page = 1
		req.HitsPerPage = 1
	case q.Offset%q.Limit == 0:
		req.Page = int64(q.Offset/q.Limit) + 1
		req.HitsPerPage = int64(q.Limit)
	default:
		req.Offset = int64(q.Offset)
		req.Limit = int64(q.Limit)
	}

	resp, err := m.client.Index(collection).Search(q.Text, req)
	if err != nil {
		metrics.IndexErrors.WithLabelValues(collection, "query").Inc()
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}

	result := &Result{NumFound: resp.TotalHits}
	if req.Page == 0 {
		result.NumFound = resp.EstimatedTotalHits
	}
	if q.Limit > 0 {
		result.Docs = make([]Document, 0, len(resp.Hits))
		for _, hit := range resp.Hits {
			if doc, ok := hit.(map[string]interface{}); ok {
				result.Docs = append(result.Docs, Document(doc))
			}
		}
	}
	return result, nil
}

func (m *Meilisearch) Facet(ctx context.Context, collection string, q Query, field string) (map[string]int64, error) {
	metrics.IndexOperations.WithLabelValues(collection, "facet").Inc()

	req := &meilisearch.SearchRequest{Facets: []string{field}, Page: 1, HitsPerPage: 1}
	if len(q.Filter) > 0 {
		req.Filter = filterExpression(q.Filter)
	}
	resp, err := m.client.Index(collection).Search(q.Text, req)
	if err != nil {
		metrics.IndexErrors.WithLabelValues(collection, "facet").Inc()
		return nil, fmt.Errorf("failed to facet %s on %s: %w", collection, field, err)
	}

	counts := map[string]int64{}
	dist, _ := resp.FacetDistribution.(map[string]interface{})
	values, _ := dist[field].(map[string]interface{})
	for value, n := range values {
		if f, ok := n.(float64); ok && f > 0 {
			counts[value] = int64(f)
		}
	}
	return counts, nil
}

func (m *Meilisearch) wait(ctx context.Context, taskUID int64) error {
	task, err := m.client.WaitForTask(taskUID, meilisearch.WaitParams{Context: ctx, Interval: m.pollInterval})
	if err != nil {
		return err
	}
	if task.Status == meilisearch.TaskStatusFailed {
		return errors.New(task.Error.Message)
	}
	return nil
}

func filterExpression(f Filter) string {
	parts := make([]string, len(f))
	for i, t := range f {
		parts[i] = fmt.Sprintf("%s = %s", t.Field, quote(t.Value))
	}
	return strings.Join(parts, " AND ")
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
