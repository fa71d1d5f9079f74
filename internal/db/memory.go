package db

import (
	"sort"
	"strings"
	"sync"

	"github.com/fedragon/feedme/internal/errs"
)

// MemoryRepository is a Store kept in memory, for tests.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewMemory() *MemoryRepository {
	return &MemoryRepository{records: make(map[string][]byte)}
}

func (r *MemoryRepository) Get(key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, ok := r.records[key]
	if !ok {
		return nil, errs.New(errs.NotFound, "record %s does not exist", key)
	}
	return append([]byte(nil), value...), nil
}

func (r *MemoryRepository) Put(key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[key] = append([]byte(nil), value...)
	return nil
}

func (r *MemoryRepository) PutNew(key string, value []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[key]; ok {
		return false, nil
	}
	r.records[key] = append([]byte(nil), value...)
	return true, nil
}

func (r *MemoryRepository) Keys(prefix, suffix string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var keys []string
	for k := range r.records {
		if strings.HasPrefix(k, prefix) && strings.HasSuffix(k, suffix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
