// Package workers fans plan-and-apply jobs out over a bounded set of
// goroutines. Workers share no state; fairness coordination happens in the
// reservation gate, so the pool only bounds parallelism.
package workers

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/crosslink/internal/linkplan"
)

// Planner is the per-article planning operation a worker executes.
type Planner interface {
	PlanAndApply(ctx context.Context, articleUUID string) (*linkplan.PlanResult, error)
}

// Result pairs one article with its plan outcome. Err is per-article; one
// failed article does not abort the batch.
type Result struct {
	ArticleUUID string
	Plan        *linkplan.PlanResult
	Err         error
}

// Pool executes planning jobs with bounded concurrency.
type Pool struct {
	planner Planner
	size    int
	logger  zerolog.Logger
}

// NewPool returns a pool of the given size; sizes below 1 fall back to 2.
func NewPool(planner Planner, size int, logger zerolog.Logger) *Pool {
	if size < 1 {
		size = 2
	}
	return &Pool{
		planner: planner,
		size:    size,
		logger:  logger.With().Str("component", "workers").Logger(),
	}
}

// Run plans every article and returns results in input order. Context
// cancellation stops unstarted jobs; already-running jobs observe ctx
// through the planner.
func (p *Pool) Run(ctx context.Context, articleUUIDs []string) []Result {
	results := make([]Result, len(articleUUIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)

	for i, uuid := range articleUUIDs {
		results[i].ArticleUUID = uuid
		if gctx.Err() != nil {
			results[i].Err = gctx.Err()
			continue
		}
		g.Go(func() error {
			plan, err := p.planner.PlanAndApply(gctx, uuid)
			if err != nil {
				p.logger.Error().Err(err).Str("article_uuid", uuid).Msg("plan failed")
				results[i].Err = err
				return nil
			}
			results[i].Plan = plan
			return nil
		})
	}

	_ = g.Wait()
	return results
}
