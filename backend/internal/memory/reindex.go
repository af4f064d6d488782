package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hybrid-memory/backend/internal/similarity"
	apperrors "hybrid-memory/backend/pkg/errors"
)

// ReindexFailure is one record that could not be mirrored
type ReindexFailure struct {
	Kind  string `json:"kind"`
	Key   string `json:"key"`
	Error string `json:"error"`
}

// ReindexReport summarizes a reconciliation run
type ReindexReport struct {
	Recreated bool             `json:"recreated"`
	Entities  int              `json:"entities"`
	Relations int              `json:"relations"`
	Failures  []ReindexFailure `json:"failures"`
	Duration  time.Duration    `json:"duration"`
}

// Reindex re-derives every index point from the canonical store. With
// recreate the collection is emptied first, dropping orphaned points too.
// Records that fail are reported and do not stop the run.
func (c *Coordinator) Reindex(ctx context.Context, recreate bool) (*ReindexReport, error) {
	started := time.Now()
	report := &ReindexReport{Failures: []ReindexFailure{}}

	if recreate {
		if err := c.index.Recreate(ctx); err != nil {
			return nil, err
		}
		report.Recreated = true
	}

	g, err := c.store.ReadGraph(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	fail := func(kind, key string, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Failures = append(report.Failures, ReindexFailure{Kind: kind, Key: key, Error: err.Error()})
	}
	succeed := func(kind string) {
		mu.Lock()
		defer mu.Unlock()
		if kind == similarity.KindEntity {
			report.Entities++
		} else {
			report.Relations++
		}
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.reindexConcurrency)

	for _, e := range g.Entities {
		entity := e
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			if err := c.index.PersistEntity(egctx, entity); err != nil {
				fail(similarity.KindEntity, entity.Name, err)
				return nil
			}
			succeed(similarity.KindEntity)
			return nil
		})
	}
	for _, r := range g.Relations {
		relation := r
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			if err := c.index.PersistRelation(egctx, relation); err != nil {
				fail(similarity.KindRelation, relation.Key().String(), err)
				return nil
			}
			succeed(similarity.KindRelation)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return report, apperrors.NewContextCancelled("reindex", err)
	}

	report.Duration = time.Since(started)
	c.logger.Info("Similarity index rebuilt from canonical store",
		zap.Bool("recreated", report.Recreated),
		zap.Int("entities", report.Entities),
		zap.Int("relations", report.Relations),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}
