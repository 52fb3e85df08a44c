package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/crosslink/internal/linkplan"
)

type countingPlanner struct {
	mu      sync.Mutex
	active  int32
	peak    int32
	failFor map[string]error
	delay   time.Duration
}

func (p *countingPlanner) PlanAndApply(ctx context.Context, articleUUID string) (*linkplan.PlanResult, error) {
	current := atomic.AddInt32(&p.active, 1)
	defer atomic.AddInt32(&p.active, -1)

	p.mu.Lock()
	if current > p.peak {
		p.peak = current
	}
	err := p.failFor[articleUUID]
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &linkplan.PlanResult{SourceUUID: articleUUID}, nil
}

func TestPool_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	planner := &countingPlanner{delay: 20 * time.Millisecond}
	pool := NewPool(planner, 2, zerolog.Nop())

	uuids := []string{"a", "b", "c", "d", "e", "f"}
	results := pool.Run(context.Background(), uuids)

	if len(results) != len(uuids) {
		t.Fatalf("expected %d results, got %d", len(uuids), len(results))
	}
	if planner.peak > 2 {
		t.Fatalf("pool exceeded its size: peak concurrency %d", planner.peak)
	}
	for i, r := range results {
		if r.ArticleUUID != uuids[i] {
			t.Fatalf("result order broken at %d: %q", i, r.ArticleUUID)
		}
		if r.Err != nil {
			t.Fatalf("unexpected error for %q: %v", r.ArticleUUID, r.Err)
		}
		if r.Plan == nil || r.Plan.SourceUUID != uuids[i] {
			t.Fatalf("missing plan for %q", uuids[i])
		}
	}
}

func TestPool_IsolatesPerArticleFailures(t *testing.T) {
	t.Parallel()

	planner := &countingPlanner{
		failFor: map[string]error{"b": fmt.Errorf("index unreachable")},
	}
	pool := NewPool(planner, 2, zerolog.Nop())

	results := pool.Run(context.Background(), []string{"a", "b", "c"})
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("healthy articles must not be affected: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil {
		t.Fatalf("expected error for article b")
	}
	if results[1].Plan != nil {
		t.Fatalf("failed article must not carry a plan")
	}
}

func TestNewPool_DefaultSize(t *testing.T) {
	t.Parallel()

	pool := NewPool(&countingPlanner{}, 0, zerolog.Nop())
	if pool.size != 2 {
		t.Fatalf("expected fallback size 2, got %d", pool.size)
	}
}
