package store

import (
	"context"
	"sort"
	"sync"
)

type Memory struct {
	mu    sync.Mutex
	saves map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{saves: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, playerID string) ([]byte, error) {
	id, err := validPlayer(playerID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.saves[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Save(_ context.Context, playerID string, data []byte) error {
	id, err := validPlayer(playerID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.saves[id] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Update(_ context.Context, playerID string, fn UpdateFunc) error {
	id, err := validPlayer(playerID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var current []byte
	if data, ok := m.saves[id]; ok {
		current = append([]byte(nil), data...)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	m.saves[id] = append([]byte(nil), next...)
	return nil
}

func (m *Memory) Players(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.saves))
	for id := range m.saves {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
