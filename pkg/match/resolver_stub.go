package match

import (
	"context"
	"sync"
)

// ResolverStub is a canned Resolver for tests. Callers resolve lines
// concurrently, so recording the queries takes a lock.
type ResolverStub struct {
	Decision Decision
	Err      error

	mu      sync.Mutex
	Queries []Query
}

func (s *ResolverStub) Resolve(_ context.Context, q Query, _ []Match) (Decision, error) {
	s.mu.Lock()
	s.Queries = append(s.Queries, q)
	s.mu.Unlock()
	if s.Err != nil {
		return Decision{}, s.Err
	}
	return s.Decision, nil
}
