// Package kv is an in-memory key-value console service.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/tcpconsole/internal/services"
)

const Name = "kv"

var (
	ErrMissingKey    = errors.New("kv: missing key")
	ErrUnknownAction = errors.New("kv: unknown action")
)

// Store is process-local and lost on exit.
type Store struct {
	mu    sync.RWMutex
	items map[string]string
}

func New() *Store {
	return &Store{items: make(map[string]string)}
}

func (s *Store) Metadata() services.Metadata {
	return services.Metadata{
		Name:        Name,
		Description: "in-memory key-value state",
	}
}

func (s *Store) Operations() []services.OperationSpec {
	return []services.OperationSpec{
		{Name: "put", Description: "upsert key=value", Idempotent: true},
		{Name: "get", Description: "get value by key", Idempotent: true},
		{Name: "delete", Description: "delete key", Idempotent: true},
		{Name: "list", Description: "list keys (optional prefix)", Idempotent: true},
	}
}

func (s *Store) Execute(_ context.Context, action string, args map[string]string) (services.Result, error) {
	switch strings.TrimSpace(action) {
	case "put":
		key := strings.TrimSpace(args["key"])
		if key == "" {
			return services.Fail(1, "missing key"), ErrMissingKey
		}
		s.mu.Lock()
		s.items[key] = args["value"]
		s.mu.Unlock()
		return services.OK(fmt.Sprintf("ok put key=%s\n", key)), nil
	case "get":
		key := strings.TrimSpace(args["key"])
		if key == "" {
			return services.Fail(1, "missing key"), ErrMissingKey
		}
		s.mu.RLock()
		val, ok := s.items[key]
		s.mu.RUnlock()
		if !ok {
			return services.Fail(1, fmt.Sprintf("missing key=%s", key)), fmt.Errorf("%w: %s", ErrMissingKey, key)
		}
		return services.OK(val + "\n"), nil
	case "delete":
		key := strings.TrimSpace(args["key"])
		if key == "" {
			return services.Fail(1, "missing key"), ErrMissingKey
		}
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return services.OK(fmt.Sprintf("ok delete key=%s\n", key)), nil
	case "list":
		return services.OK(strings.Join(s.Keys(args["prefix"]), "\n") + "\n"), nil
	default:
		return services.Fail(2, fmt.Sprintf("unknown action %q", action)), fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// Keys returns sorted keys with the given prefix.
func (s *Store) Keys(prefix string) []string {
	prefix = strings.TrimSpace(prefix)
	s.mu.RLock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
