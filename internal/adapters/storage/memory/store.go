// Package memory provides an in-memory DocumentStore used in tests and
// local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sugarworks/sugar-agent/internal/domain"
)

type Store struct {
	mu   sync.Mutex
	docs map[string]map[string]any
}

func NewStore() *Store {
	return &Store{docs: make(map[string]map[string]any)}
}

func key(collection, id string) string {
	return collection + "/" + id
}

func (s *Store) GetDocument(_ context.Context, collection, id string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key(collection, id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return deepCopy(doc), nil
}

func (s *Store) SetDocument(_ context.Context, collection, id string, data map[string]any, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(collection, id)
	if !merge {
		s.docs[k] = deepCopy(data)
		return nil
	}
	doc, ok := s.docs[k]
	if !ok {
		doc = make(map[string]any)
		s.docs[k] = doc
	}
	for field, value := range data {
		doc[field] = clone(value)
	}
	return nil
}

func (s *Store) AppendUnique(_ context.Context, collection, id, field string, values ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(collection, id)
	doc, ok := s.docs[k]
	if !ok {
		doc = make(map[string]any)
		s.docs[k] = doc
	}
	existing, _ := doc[field].([]any)
	for _, v := range values {
		if !contains(existing, v) {
			existing = append(existing, clone(v))
		}
	}
	doc[field] = existing
	return nil
}

func (s *Store) ServerTimestamp() any {
	return time.Now().UTC()
}

func contains(list []any, v any) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func deepCopy(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = clone(v)
	}
	return out
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = clone(item)
		}
		return out
	default:
		return v
	}
}
