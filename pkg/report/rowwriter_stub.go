package report

import (
	"context"
	"fmt"
	"sync"
)

// RowWriterStub keeps written grids in memory for tests.
type RowWriterStub struct {
	Err error

	mu     sync.Mutex
	Titles []string
	Grids  [][][]any
}

func NewRowWriterStub() *RowWriterStub {
	return &RowWriterStub{}
}

func (s *RowWriterStub) WriteRows(_ context.Context, title string, rows [][]any) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Titles = append(s.Titles, title)
	s.Grids = append(s.Grids, rows)
	return fmt.Sprintf("mem:%d", len(s.Grids)), nil
}
