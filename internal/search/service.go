package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to
// the Postgres scan.
type Service struct {
	meili *Meili
	pg    *Pg
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pg *Pg) *Service {
	return &Service{meili: meili, pg: pg}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.pg.Search(q)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexEntry indexes an entry (fire-and-forget to Meilisearch).
func (s *Service) IndexEntry(rec EntryRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexEntry(rec); err != nil {
			log.Printf("search: index entry %s: %v", rec.Key, err)
		}
	}()
}

// DeleteEntry removes an entry from the search index (fire-and-forget).
func (s *Service) DeleteEntry(key string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteEntry(key); err != nil {
			log.Printf("search: delete entry %s: %v", key, err)
		}
	}()
}

// ReindexAllFromPG reads every entry from Postgres and pushes it to
// Meilisearch. Called once at startup when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pg == nil {
		return
	}
	records, err := s.pg.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(records) == 0 {
		return
	}
	if err := s.meili.IndexEntries(records); err != nil {
		log.Printf("search: reindex entries: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
