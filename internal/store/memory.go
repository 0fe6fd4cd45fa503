package store

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"reelscout/internal/media"
)

// Memory is a process-local backend.
type Memory struct {
	mu       sync.RWMutex
	failures map[media.Key]*Failures
	last     map[media.Key]string
}

var _ Backend = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		failures: make(map[media.Key]*Failures),
		last:     make(map[media.Key]string),
	}
}

func (m *Memory) Failures(_ context.Context, key media.Key) (Failures, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyOf(key), nil
}

func (m *Memory) copyOf(key media.Key) Failures {
	out := Failures{Embeds: map[string][]string{}}
	f, ok := m.failures[key]
	if !ok {
		return out
	}
	out.Sources = append([]string{}, f.Sources...)
	for src, ids := range f.Embeds {
		out.Embeds[src] = append([]string{}, ids...)
	}
	return out
}

func (m *Memory) AddFailure(_ context.Context, key media.Key, sourceID, embedID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.failures[key]
	if !ok {
		f = &Failures{Embeds: map[string][]string{}}
		m.failures[key] = f
	}
	if embedID == "" {
		if !lo.Contains(f.Sources, sourceID) {
			f.Sources = append(f.Sources, sourceID)
		}
		return nil
	}
	if !lo.Contains(f.Embeds[sourceID], embedID) {
		f.Embeds[sourceID] = append(f.Embeds[sourceID], embedID)
	}
	return nil
}

func (m *Memory) ClearFailures(_ context.Context, key media.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, key)
	return nil
}

func (m *Memory) ListFailures(_ context.Context) (map[media.Key]Failures, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[media.Key]Failures, len(m.failures))
	for key := range m.failures {
		out[key] = m.copyOf(key)
	}
	return out, nil
}

func (m *Memory) LastSuccessful(_ context.Context, key media.Key) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last[key], nil
}

func (m *Memory) SetLastSuccessful(_ context.Context, key media.Key, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[key] = sourceID
	return nil
}

func (m *Memory) Close() error { return nil }
