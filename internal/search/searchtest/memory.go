// Package searchtest provides an in-memory search.Engine for tests.
package searchtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kerem-kaynak/tablecat/internal/search"
)

// Memory keeps collections in maps. Text queries match case-insensitive
// substrings of full_text; results are ordered by id.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]search.Document

	// Fail, when set, is returned by every call naming that operation
	// ("add", "delete" or "query").
	Fail map[string]error
}

func NewMemory() *Memory {
	return &Memory{collections: map[string]map[string]search.Document{}, Fail: map[string]error{}}
}

func (m *Memory) Add(_ context.Context, collection string, docs []search.Document, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail["add"]; err != nil {
		return err
	}

	c := m.collection(collection)
	for _, doc := range docs {
		id := fmt.Sprint(doc[search.FieldID])
		copied := make(search.Document, len(doc))
		for k, v := range doc {
			copied[k] = v
		}
		c[id] = copied
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, collection string, filter search.Filter, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail["delete"]; err != nil {
		return err
	}

	c := m.collection(collection)
	for id, doc := range c {
		if matches(doc, filter) {
			delete(c, id)
		}
	}
	return nil
}

func (m *Memory) Query(_ context.Context, collection string, q search.Query) (*search.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail["query"]; err != nil {
		return nil, err
	}

	hits := m.match(collection, q)
	sort.Slice(hits, func(i, j int) bool {
		return fmt.Sprint(hits[i][search.FieldID]) < fmt.Sprint(hits[j][search.FieldID])
	})

	res := &search.Result{NumFound: int64(len(hits))}
	if q.Limit > 0 && q.Offset < len(hits) {
		end := q.Offset + q.Limit
		if end > len(hits) {
			end = len(hits)
		}
		res.Docs = hits[q.Offset:end]
	}
	return res, nil
}

func (m *Memory) Facet(_ context.Context, collection string, q search.Query, field string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail["facet"]; err != nil {
		return nil, err
	}

	counts := map[string]int64{}
	for _, doc := range m.match(collection, q) {
		if v, ok := doc[field]; ok {
			counts[fmt.Sprint(v)]++
		}
	}
	return counts, nil
}

// Count returns the number of documents in collection matching filter.
func (m *Memory) Count(collection string, filter search.Filter) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, doc := range m.collection(collection) {
		if matches(doc, filter) {
			n++
		}
	}
	return n
}

func (m *Memory) collection(name string) map[string]search.Document {
	c, ok := m.collections[name]
	if !ok {
		c = map[string]search.Document{}
		m.collections[name] = c
	}
	return c
}

// match returns the documents of collection that satisfy the filter and, when
// set, contain the query text.
func (m *Memory) match(collection string, q search.Query) []search.Document {
	var hits []search.Document
	for _, doc := range m.collection(collection) {
		if !matches(doc, q.Filter) {
			continue
		}
		if q.Text != "" {
			text, _ := doc[search.FieldFullText].(string)
			if !strings.Contains(strings.ToLower(text), strings.ToLower(q.Text)) {
				continue
			}
		}
		hits = append(hits, doc)
	}
	return hits
}

func matches(doc search.Document, filter search.Filter) bool {
	for _, t := range filter {
		v, ok := doc[t.Field]
		if !ok {
			return false
		}
		switch vv := v.(type) {
		case []string:
			found := false
			for _, s := range vv {
				if s == t.Value {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			if fmt.Sprint(v) != t.Value {
				return false
			}
		}
	}
	return true
}
