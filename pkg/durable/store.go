// Package durable implements the durable-step substrate consumed by the
// engine: replay-safe memoized steps and cancelable, resumable sleeps. Step
// results are persisted to a StepStore so a replayed invocation observes the
// first invocation's results instead of re-running its side effects.
package durable

import (
	"context"
	"sync"
)

// StepStore persists memoized step results keyed by chain id and step label.
type StepStore interface {
	Get(ctx context.Context, chainID, label string) ([]byte, bool, error)
	Set(ctx context.Context, chainID, label string, value []byte) error
	Clear(ctx context.Context, chainID string) error
}

// MemoryStore is an in-process StepStore for local development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	steps map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		steps: make(map[string]map[string][]byte),
	}
}

func (s *MemoryStore) Get(_ context.Context, chainID, label string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain, ok := s.steps[chainID]
	if !ok {
		return nil, false, nil
	}

	value, ok := chain[label]

	return value, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, chainID, label string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, ok := s.steps[chainID]
	if !ok {
		chain = make(map[string][]byte)
		s.steps[chainID] = chain
	}

	chain[label] = value

	return nil
}

func (s *MemoryStore) Clear(_ context.Context, chainID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.steps, chainID)

	return nil
}
