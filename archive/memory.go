/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package archive

import (
	"context"
	"sync"
)

// Memory is a fixed size ring of records.
type Memory struct {
	mu      sync.Mutex
	records []Record
	next    int
	full    bool
}

// NewMemory retains the last size records. size must be positive.
func NewMemory(size int) *Memory {
	if size < 1 {
		size = 1
	}

	return &Memory{records: make([]Record, size)}
}

func (m *Memory) Record(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[m.next] = rec
	m.next = (m.next + 1) % len(m.records)
	if m.next == 0 {
		m.full = true
	}

	return nil
}

func (m *Memory) Recent(_ context.Context, n int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.next
	if m.full {
		count = len(m.records)
	}
	if n <= 0 || n > count {
		n = count
	}

	out := make([]Record, 0, n)
	for i := range n {
		idx := (m.next - 1 - i + len(m.records)) % len(m.records)
		out = append(out, m.records[idx])
	}

	return out, nil
}
