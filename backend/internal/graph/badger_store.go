package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	apperrors "hybrid-memory/backend/pkg/errors"
)

// Key layout:
//
//	entity/<name>                          -> Entity JSON
//	relation/<from>\x00<type>\x00<to>      -> Relation JSON
var (
	entityPrefix   = []byte("entity/")
	relationPrefix = []byte("relation/")
)

const keySep = 0x00

var errStoreClosed = errors.New("badger store is closed")

// BadgerOptions configures the embedded key-value backend
type BadgerOptions struct {
	// Path is the data directory; ignored when InMemory is set
	Path string
	// InMemory keeps everything in RAM, used by tests
	InMemory bool
	// SyncWrites fsyncs after every commit
	SyncWrites bool
}

// BadgerStore persists the graph in an embedded badger database. Each
// mutating call runs in a single badger transaction.
type BadgerStore struct {
	opts   BadgerOptions
	logger *zap.Logger

	mu     sync.RWMutex
	db     *badger.DB
	closed bool
}

// NewBadgerStore creates a store; the database is opened by Initialize
func NewBadgerStore(opts BadgerOptions, logger *zap.Logger) *BadgerStore {
	return &BadgerStore{opts: opts, logger: logger}
}

func (s *BadgerStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	badgerOpts := badger.DefaultOptions(s.opts.Path).WithLogger(nil)
	if s.opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	if s.opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return apperrors.NewStoreOperationFailed("open badger database", err)
	}
	s.db = db
	s.closed = false

	s.logger.Info("Badger store opened",
		zap.String("path", s.opts.Path),
		zap.Bool("in_memory", s.opts.InMemory),
	)
	return nil
}

func entityKey(name string) []byte {
	return append(append([]byte{}, entityPrefix...), name...)
}

func relationKey(k RelationKey) []byte {
	key := append([]byte{}, relationPrefix...)
	key = append(key, k.From...)
	key = append(key, keySep)
	key = append(key, k.RelationType...)
	key = append(key, keySep)
	key = append(key, k.To...)
	return key
}

// parseRelationKey recovers the endpoints from a relation key
func parseRelationKey(key []byte) (RelationKey, bool) {
	parts := bytes.Split(bytes.TrimPrefix(key, relationPrefix), []byte{keySep})
	if len(parts) != 3 {
		return RelationKey{}, false
	}
	return RelationKey{From: string(parts[0]), RelationType: string(parts[1]), To: string(parts[2])}, true
}

// update runs fn in a read-write transaction after checking the store is open
func (s *BadgerStore) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled(op, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil || s.closed {
		return apperrors.NewStoreOperationFailed(op, errStoreClosed)
	}

	err := s.db.Update(fn)
	if err == nil {
		return nil
	}
	if apperrors.TypeOf(err) != "" {
		return err
	}
	return apperrors.NewStoreOperationFailed(op, err)
}

func (s *BadgerStore) view(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled(op, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil || s.closed {
		return apperrors.NewStoreOperationFailed(op, errStoreClosed)
	}
	if err := s.db.View(fn); err != nil {
		return apperrors.NewStoreOperationFailed(op, err)
	}
	return nil
}

func getEntity(txn *badger.Txn, name string) (Entity, bool, error) {
	item, err := txn.Get(entityKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entity{}, false, nil
	}
	if err != nil {
		return Entity{}, false, err
	}
	var e Entity
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	if err != nil {
		return Entity{}, false, fmt.Errorf("failed to decode entity %s: %w", name, err)
	}
	return e, true, nil
}

func putJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return txn.Set(key, data)
}

func (s *BadgerStore) AddEntities(ctx context.Context, entities []Entity) ([]Entity, error) {
	created := []Entity{}
	err := s.update(ctx, "add entities", func(txn *badger.Txn) error {
		created = created[:0]
		for _, e := range entities {
			_, exists, err := getEntity(txn, e.Name)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := putJSON(txn, entityKey(e.Name), e); err != nil {
				return err
			}
			created = append(created, e.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *BadgerStore) AddRelations(ctx context.Context, relations []Relation) ([]Relation, error) {
	stored := []Relation{}
	err := s.update(ctx, "add relations", func(txn *badger.Txn) error {
		stored = stored[:0]
		for _, r := range relations {
			for _, name := range []string{r.From, r.To} {
				_, exists, err := getEntity(txn, name)
				if err != nil {
					return err
				}
				if !exists {
					return apperrors.NewEntityNotFound(name)
				}
			}
		}
		for _, r := range relations {
			saved := r.Clone()
			key := relationKey(r.Key())
			if item, err := txn.Get(key); err == nil {
				var existing Relation
				if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &existing) }); err == nil {
					if existing.Metadata != nil && saved.Metadata != nil {
						if existing.Metadata.ID != "" {
							saved.Metadata.ID = existing.Metadata.ID
						}
						if !existing.Metadata.CreatedAt.IsZero() {
							saved.Metadata.CreatedAt = existing.Metadata.CreatedAt
						}
					}
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := putJSON(txn, key, saved); err != nil {
				return err
			}
			stored = append(stored, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *BadgerStore) AddObservations(ctx context.Context, name string, observations []string) ([]string, error) {
	var added []string
	err := s.update(ctx, "add observations", func(txn *badger.Txn) error {
		e, exists, err := getEntity(txn, name)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.NewEntityNotFound(name)
		}
		added = mergeObservations(e.Observations, observations)
		e.Observations = append(e.Observations, added...)
		touch(&e)
		return putJSON(txn, entityKey(name), e)
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (s *BadgerStore) DeleteEntities(ctx context.Context, names []string) error {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	return s.update(ctx, "delete entities", func(txn *badger.Txn) error {
		var doomed [][]byte
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		for it.Seek(relationPrefix); it.ValidForPrefix(relationPrefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			k, ok := parseRelationKey(key)
			if !ok {
				continue
			}
			_, fromGone := drop[k.From]
			_, toGone := drop[k.To]
			if fromGone || toGone {
				doomed = append(doomed, key)
			}
		}
		it.Close()

		for _, key := range doomed {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for name := range drop {
			if err := txn.Delete(entityKey(name)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) DeleteObservations(ctx context.Context, name string, observations []string) error {
	return s.update(ctx, "delete observations", func(txn *badger.Txn) error {
		e, exists, err := getEntity(txn, name)
		if err != nil || !exists {
			return err
		}
		e.Observations = removeObservations(e.Observations, observations)
		touch(&e)
		return putJSON(txn, entityKey(name), e)
	})
}

func (s *BadgerStore) DeleteRelations(ctx context.Context, relations []Relation) error {
	return s.update(ctx, "delete relations", func(txn *badger.Txn) error {
		for _, r := range relations {
			if err := txn.Delete(relationKey(r.Key())); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) UpdateEntity(ctx context.Context, entity Entity) error {
	return s.update(ctx, "update entity", func(txn *badger.Txn) error {
		_, exists, err := getEntity(txn, entity.Name)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.NewEntityNotFound(entity.Name)
		}
		return putJSON(txn, entityKey(entity.Name), entity)
	})
}

func (s *BadgerStore) ReadGraph(ctx context.Context) (KnowledgeGraph, error) {
	g := KnowledgeGraph{Entities: []Entity{}, Relations: []Relation{}}
	err := s.view(ctx, "read graph", func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(entityPrefix); it.ValidForPrefix(entityPrefix); it.Next() {
			var e Entity
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			g.Entities = append(g.Entities, e)
		}
		for it.Seek(relationPrefix); it.ValidForPrefix(relationPrefix); it.Next() {
			var r Relation
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &r) }); err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			g.Relations = append(g.Relations, r)
		}
		return nil
	})
	if err != nil {
		return KnowledgeGraph{}, err
	}
	return g, nil
}

func (s *BadgerStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil || s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return apperrors.NewStoreOperationFailed("close badger database", err)
	}
	return nil
}
