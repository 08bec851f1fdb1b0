package activity

import (
	"context"
	"sort"
)

// RepositoryStub is an in-memory Repository for service tests.
type RepositoryStub struct {
	entries []Entry
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{entries: make([]Entry, 0)}
}

func (r *RepositoryStub) Cleanup() {
	r.entries = make([]Entry, 0)
}

func (r *RepositoryStub) CreateEntry(_ context.Context, _ string, entry Entry) (Entry, error) {
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *RepositoryStub) ListEntries(_ context.Context, _ string, projectUid string, limit int) ([]Entry, error) {
	entries := make([]Entry, 0)
	// Walk backwards so entries sharing a timestamp come out newest first.
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].ProjectUid == projectUid {
			entries = append(entries, r.entries[i])
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OccurredAt.After(entries[j].OccurredAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
