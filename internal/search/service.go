package search

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"canopy/internal/domain"
)

// Service is the facade that tries the index first and falls back to Postgres.
type Service struct {
	index    Index
	fallback Fallback
	log      zerolog.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. index may be nil if Meilisearch is not configured.
func NewService(index Index, fallback Fallback, logger zerolog.Logger) *Service {
	return &Service{
		index:    index,
		fallback: fallback,
		log:      logger.With().Str("component", "search").Logger(),
	}
}

// Search tries the index if healthy, otherwise falls back to a title match.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.available() {
		hits, total, err := s.index.Search(q)
		if err == nil {
			return Response{Results: nonNil(hits), Total: total, Query: q.Text}
		}
		s.log.Warn().Err(err).Msg("index search failed, falling back to postgres")
	}

	if s.fallback == nil {
		return Response{Results: []domain.SearchHit{}, Query: q.Text}
	}
	hits, err := s.fallback.SearchTitles(ctx, q.WorkspaceID, q.Text, q.Kind, q.Limit)
	if err != nil {
		s.log.Error().Err(err).Msg("fallback search failed")
		return Response{Results: []domain.SearchHit{}, Query: q.Text}
	}
	return Response{Results: nonNil(hits), Total: len(hits), Query: q.Text}
}

// Index indexes an item (fire-and-forget).
func (s *Service) Index(record Record) {
	if !s.available() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.index.IndexItems([]Record{record}); err != nil {
			s.log.Warn().Err(err).Str("item_id", record.ID).Msg("index item")
		}
	}()
}

// Remove removes an item from the index (fire-and-forget).
func (s *Service) Remove(id string) {
	if !s.available() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.index.DeleteItem(id); err != nil {
			s.log.Warn().Err(err).Str("item_id", id).Msg("delete item from index")
		}
	}()
}

// Reindex pushes records synchronously.
func (s *Service) Reindex(records []Record) {
	if !s.available() || len(records) == 0 {
		return
	}
	if err := s.index.IndexItems(records); err != nil {
		s.log.Warn().Err(err).Int("records", len(records)).Msg("reindex items")
	}
}

// Wait blocks until every fire-and-forget index call has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// Ready reports whether an index is configured and healthy.
func (s *Service) Ready() bool {
	return s.available()
}

func (s *Service) available() bool {
	return s != nil && s.index != nil && s.index.Healthy()
}

func nonNil(r []domain.SearchHit) []domain.SearchHit {
	if r == nil {
		return []domain.SearchHit{}
	}
	return r
}
