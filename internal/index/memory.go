package index

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used by tests.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]Document

	// FailBulk makes the next BulkIndex calls fail, for retry tests. Each
	// failure decrements the counter.
	FailBulk int
}

// NewMemory constructs an empty in-memory index.
func NewMemory() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (s *MemoryStore) BulkIndex(_ context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailBulk > 0 {
		s.FailBulk--
		return errIndexUnavailable
	}
	for _, doc := range docs {
		s.docs[doc.DocID] = doc
	}
	return nil
}

func (s *MemoryStore) ScanArtifact(_ context.Context, caseID, artifactID string, pageSize int, fn func([]Document) error) error {
	if pageSize <= 0 {
		pageSize = 500
	}
	s.mu.Lock()
	var matched []Document
	for _, doc := range s.docs {
		if doc.CaseID == caseID && doc.ArtifactID == artifactID {
			matched = append(matched, doc)
		}
	}
	s.mu.Unlock()
	sort.Slice(matched, func(i, j int) bool { return matched[i].Seq < matched[j].Seq })

	for start := 0; start < len(matched); start += pageSize {
		end := start + pageSize
		if end > len(matched) {
			end = len(matched)
		}
		if err := fn(matched[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) UpdateFlags(_ context.Context, updates []FlagUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, update := range updates {
		doc, ok := s.docs[update.DocID]
		if !ok {
			continue
		}
		doc.HasSigmaMatch = update.HasSigmaMatch
		doc.MatchedIndicators = update.MatchedIndicators
		s.docs[update.DocID] = doc
	}
	return nil
}

func (s *MemoryStore) PurgeArtifact(_ context.Context, caseID, artifactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, doc := range s.docs {
		if doc.CaseID == caseID && doc.ArtifactID == artifactID {
			delete(s.docs, id)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Count reports how many documents the store holds, for tests.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Get returns a stored document by id, for tests.
func (s *MemoryStore) Get(docID string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	return doc, ok
}
