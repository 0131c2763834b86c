package config

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/franksunye/fsoa-agent/internal/errs"
	"github.com/franksunye/fsoa-agent/internal/store"
)

// Store is the runtime-tunable key/value ConfigStore (C2). It keeps a
// single in-memory write-through cache to minimize round trips to the
// backing relational store; a write takes effect on the next read, there
// is no subscriber notification (per spec.md §4.2).
type Store struct {
	backend store.Store

	mu    sync.RWMutex
	cache map[string]string
}

// NewStore wraps a backend Store with the typed-accessor cache.
func NewStore(backend store.Store) *Store {
	return &Store{backend: backend, cache: make(map[string]string)}
}

// Seed writes each default that is not already present in the backend.
func (s *Store) Seed(ctx context.Context, defaults map[string]string) error {
	for k, v := range defaults {
		existing, err := s.backend.GetSystemConfig(ctx, k)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.backend.SetSystemConfig(ctx, &store.SystemConfigEntry{Key: k, Value: v}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) raw(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	v, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return v, true, nil
	}

	entry, err := s.backend.GetSystemConfig(ctx, key)
	if err != nil {
		return "", false, err
	}
	if entry == nil {
		return "", false, nil
	}

	s.mu.Lock()
	s.cache[key] = entry.Value
	s.mu.Unlock()
	return entry.Value, true, nil
}

// Set writes key=value to the backend and replaces the cached value with it.
func (s *Store) Set(ctx context.Context, key, value, description string) error {
	if err := s.backend.SetSystemConfig(ctx, &store.SystemConfigEntry{Key: key, Value: value, Description: description}); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return nil
}

// GetString returns the raw string value for key.
func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	v, ok, err := s.raw(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errs.New(errs.ConfigMissing, key)
	}
	return v, nil
}

// GetInt parses key as an integer.
func (s *Store) GetInt(ctx context.Context, key string) (int, error) {
	v, err := s.GetString(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errs.Wrap(errs.ConfigMissing, "key "+key+" is not an int", err)
	}
	return n, nil
}

// GetFloat parses key as a float64.
func (s *Store) GetFloat(ctx context.Context, key string) (float64, error) {
	v, err := s.GetString(ctx, key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, errs.Wrap(errs.ConfigMissing, "key "+key+" is not a float", err)
	}
	return f, nil
}

// GetCSVIntList parses key as a comma-separated list of integers, e.g.
// "1,2,3,4,5" for work_days.
func (s *Store) GetCSVIntList(ctx context.Context, key string) ([]int, error) {
	v, err := s.GetString(ctx, key)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, errs.Wrap(errs.ConfigMissing, "key "+key+" is not a CSV int list", err)
		}
		out = append(out, n)
	}
	return out, nil
}

// GetCSVStringList parses key as a comma-separated list of strings, e.g.
// escalation_mention_users.
func (s *Store) GetCSVStringList(ctx context.Context, key string) ([]string, error) {
	v, err := s.GetString(ctx, key)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}
