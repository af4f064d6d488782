package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	apperrors "hybrid-memory/backend/pkg/errors"
)

// FileStore keeps the whole graph in memory and rewrites one JSON file on
// every mutation. Concurrent processes sharing the file are last-writer-wins.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	graph KnowledgeGraph
}

// NewFileStore creates a store backed by the JSON document at path
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger,
		graph:  KnowledgeGraph{Entities: []Entity{}, Relations: []Relation{}},
	}
}

// Initialize loads the file. A missing file means an empty graph.
func (s *FileStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("Memory file not found, starting with an empty graph", zap.String("path", s.path))
		return nil
	}
	if err != nil {
		return apperrors.NewStoreOperationFailed("read memory file", err)
	}

	var loaded KnowledgeGraph
	if len(data) > 0 {
		if err := json.Unmarshal(data, &loaded); err != nil {
			return apperrors.NewStoreOperationFailed("parse memory file", err)
		}
	}
	if loaded.Entities == nil {
		loaded.Entities = []Entity{}
	}
	if loaded.Relations == nil {
		loaded.Relations = []Relation{}
	}
	s.graph = loaded

	s.logger.Info("Memory file loaded",
		zap.String("path", s.path),
		zap.Int("entities", len(loaded.Entities)),
		zap.Int("relations", len(loaded.Relations)),
	)
	return nil
}

// mutate applies fn to a copy of the graph, persists the copy and only then
// swaps it in, so a failed write leaves the in-memory graph untouched
func (s *FileStore) mutate(ctx context.Context, op string, fn func(g *KnowledgeGraph) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.graph.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.save(next); err != nil {
		return apperrors.NewStoreOperationFailed(op, err)
	}
	s.graph = next
	return nil
}

func (s *FileStore) save(g KnowledgeGraph) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace memory file: %w", err)
	}
	return nil
}

func (s *FileStore) AddEntities(ctx context.Context, entities []Entity) ([]Entity, error) {
	created := []Entity{}
	err := s.mutate(ctx, "add entities", func(g *KnowledgeGraph) error {
		names := make(map[string]struct{}, len(g.Entities))
		for _, e := range g.Entities {
			names[e.Name] = struct{}{}
		}
		for _, e := range entities {
			if _, exists := names[e.Name]; exists {
				continue
			}
			names[e.Name] = struct{}{}
			g.Entities = append(g.Entities, e.Clone())
			created = append(created, e.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *FileStore) AddRelations(ctx context.Context, relations []Relation) ([]Relation, error) {
	stored := []Relation{}
	err := s.mutate(ctx, "add relations", func(g *KnowledgeGraph) error {
		names := make(map[string]struct{}, len(g.Entities))
		for _, e := range g.Entities {
			names[e.Name] = struct{}{}
		}
		for _, r := range relations {
			if _, ok := names[r.From]; !ok {
				return apperrors.NewEntityNotFound(r.From)
			}
			if _, ok := names[r.To]; !ok {
				return apperrors.NewEntityNotFound(r.To)
			}
		}
		for _, r := range relations {
			var saved Relation
			g.Relations, saved = upsertRelation(g.Relations, r)
			stored = append(stored, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *FileStore) AddObservations(ctx context.Context, name string, observations []string) ([]string, error) {
	var added []string
	err := s.mutate(ctx, "add observations", func(g *KnowledgeGraph) error {
		idx := indexOfEntity(g.Entities, name)
		if idx < 0 {
			return apperrors.NewEntityNotFound(name)
		}
		added = mergeObservations(g.Entities[idx].Observations, observations)
		g.Entities[idx].Observations = append(g.Entities[idx].Observations, added...)
		touch(&g.Entities[idx])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (s *FileStore) DeleteEntities(ctx context.Context, names []string) error {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	return s.mutate(ctx, "delete entities", func(g *KnowledgeGraph) error {
		entities := g.Entities[:0]
		for _, e := range g.Entities {
			if _, ok := drop[e.Name]; !ok {
				entities = append(entities, e)
			}
		}
		g.Entities = entities

		relations := g.Relations[:0]
		for _, r := range g.Relations {
			_, fromGone := drop[r.From]
			_, toGone := drop[r.To]
			if !fromGone && !toGone {
				relations = append(relations, r)
			}
		}
		g.Relations = relations
		return nil
	})
}

func (s *FileStore) DeleteObservations(ctx context.Context, name string, observations []string) error {
	return s.mutate(ctx, "delete observations", func(g *KnowledgeGraph) error {
		idx := indexOfEntity(g.Entities, name)
		if idx < 0 {
			return nil
		}
		g.Entities[idx].Observations = removeObservations(g.Entities[idx].Observations, observations)
		touch(&g.Entities[idx])
		return nil
	})
}

func (s *FileStore) DeleteRelations(ctx context.Context, relations []Relation) error {
	drop := make(map[RelationKey]struct{}, len(relations))
	for _, r := range relations {
		drop[r.Key()] = struct{}{}
	}
	return s.mutate(ctx, "delete relations", func(g *KnowledgeGraph) error {
		kept := g.Relations[:0]
		for _, r := range g.Relations {
			if _, ok := drop[r.Key()]; !ok {
				kept = append(kept, r)
			}
		}
		g.Relations = kept
		return nil
	})
}

func (s *FileStore) UpdateEntity(ctx context.Context, entity Entity) error {
	return s.mutate(ctx, "update entity", func(g *KnowledgeGraph) error {
		idx := indexOfEntity(g.Entities, entity.Name)
		if idx < 0 {
			return apperrors.NewEntityNotFound(entity.Name)
		}
		g.Entities[idx] = entity.Clone()
		return nil
	})
}

func (s *FileStore) ReadGraph(ctx context.Context) (KnowledgeGraph, error) {
	if err := ctx.Err(); err != nil {
		return KnowledgeGraph{}, apperrors.NewContextCancelled("read graph", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Clone(), nil
}

// Close is a no-op; every mutation is already on disk
func (s *FileStore) Close(ctx context.Context) error {
	return nil
}

func indexOfEntity(entities []Entity, name string) int {
	for i, e := range entities {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// upsertRelation replaces a relation with the same key in place, keeping the
// original id and creation time, or appends it
func upsertRelation(relations []Relation, r Relation) ([]Relation, Relation) {
	for i, existing := range relations {
		if existing.Key() != r.Key() {
			continue
		}
		replaced := r.Clone()
		if existing.Metadata != nil && replaced.Metadata != nil {
			if existing.Metadata.ID != "" {
				replaced.Metadata.ID = existing.Metadata.ID
			}
			if !existing.Metadata.CreatedAt.IsZero() {
				replaced.Metadata.CreatedAt = existing.Metadata.CreatedAt
			}
		}
		relations[i] = replaced
		return relations, replaced.Clone()
	}
	return append(relations, r.Clone()), r.Clone()
}

// touch bumps updated_at after an observation change
func touch(e *Entity) {
	if e.Metadata == nil {
		return
	}
	e.Metadata.UpdatedAt = SystemClock()
}
