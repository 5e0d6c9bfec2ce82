package search

import (
	"context"
	"log"
)

// Fallback is the Postgres-side search used when Meilisearch is down or
// not configured.
type Fallback interface {
	Search(ctx context.Context, query string, limit int) ([]Record, error)
}

// Service tries Meilisearch first and falls back to Postgres ILIKE.
type Service struct {
	meili    *Meili
	fallback Fallback
}

// NewService creates the search facade. meili may be nil when Meilisearch
// is not configured.
func NewService(meili *Meili, fallback Fallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, err := s.fallback.Search(ctx, q.Text, q.Limit)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return Response{Results: []Record{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: len(results), Query: q.Text}
}

// IndexProposal indexes one proposal, fire-and-forget.
func (s *Service) IndexProposal(record Record) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexProposal(record); err != nil {
			log.Printf("search: index proposal %s: %v", record.ID, err)
		}
	}()
}

// DeleteProposal removes one proposal from the index, fire-and-forget.
func (s *Service) DeleteProposal(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteProposal(id); err != nil {
			log.Printf("search: delete proposal %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes every proposal into Meilisearch, used on bootstrap.
func (s *Service) ReindexAll(records []Record) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexProposals(records); err != nil {
		log.Printf("search: reindex proposals: %v", err)
	}
}

func nonNil(r []Record) []Record {
	if r == nil {
		return []Record{}
	}
	return r
}
