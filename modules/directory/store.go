package directory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	kvjetstream "github.com/go-monolith/mono/plugin/kv-jetstream"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	domain "github.com/example/realtime-gateway-demo/domain/directory"
	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// ErrServiceNotFound is returned for names with no record.
var ErrServiceNotFound = fmt.Errorf("service %w", broadcast.ErrNotFound)

// Store persists service records for the life of the process.
type Store interface {
	Put(ctx context.Context, rec domain.ServiceRecord) error
	Get(ctx context.Context, name string) (domain.ServiceRecord, error)
	List(ctx context.Context) ([]domain.ServiceRecord, error)
	Delete(ctx context.Context, name string) error
}

// MemoryStore keeps records in a mutex guarded map.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.ServiceRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.ServiceRecord)}
}

// Put replaces any record with the same name.
func (s *MemoryStore) Put(_ context.Context, rec domain.ServiceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Name] = rec
	return nil
}

// Get returns the record for name.
func (s *MemoryStore) Get(_ context.Context, name string) (domain.ServiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	if !ok {
		return domain.ServiceRecord{}, ErrServiceNotFound
	}
	return rec, nil
}

// List returns every record sorted by name.
func (s *MemoryStore) List(_ context.Context) ([]domain.ServiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ServiceRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sortByName(out)
	return out, nil
}

// Delete removes the record for name. Missing names are ignored.
func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, name)
	return nil
}

// KVStore keeps records in a JetStream KV bucket. Keys are base64url encoded
// names so any service name is a valid key.
type KVStore struct {
	bucket kvjetstream.KVStoragePort
}

// NewKVStore wraps bucket.
func NewKVStore(bucket kvjetstream.KVStoragePort) *KVStore {
	return &KVStore{bucket: bucket}
}

func recordKey(name string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(name))
}

// Put replaces any record with the same name.
func (s *KVStore) Put(_ context.Context, rec domain.ServiceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal service %s: %w", rec.Name, err)
	}
	if err := s.bucket.Set(recordKey(rec.Name), data, 0); err != nil {
		return fmt.Errorf("failed to store service %s: %w", rec.Name, err)
	}
	return nil
}

// Get returns the record for name.
func (s *KVStore) Get(_ context.Context, name string) (domain.ServiceRecord, error) {
	data, err := s.bucket.Get(recordKey(name))
	if err != nil {
		if errors.Is(err, kvjetstream.ErrKeyNotFound) {
			return domain.ServiceRecord{}, ErrServiceNotFound
		}
		return domain.ServiceRecord{}, fmt.Errorf("failed to get service %s: %w", name, err)
	}
	// The bucket reports a missing key as nil data with no error.
	if data == nil {
		return domain.ServiceRecord{}, ErrServiceNotFound
	}

	var rec domain.ServiceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.ServiceRecord{}, fmt.Errorf("failed to unmarshal service %s: %w", name, err)
	}
	return rec, nil
}

// List returns every record sorted by name.
func (s *KVStore) List(ctx context.Context) ([]domain.ServiceRecord, error) {
	keys, err := s.bucket.Keys()
	if err != nil {
		if isNoKeys(err) {
			return []domain.ServiceRecord{}, nil
		}
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	out := make([]domain.ServiceRecord, 0, len(keys))
	for _, key := range keys {
		// Keys deleted between Keys and Get are skipped.
		data, err := s.bucket.Get(key)
		if err != nil {
			if errors.Is(err, kvjetstream.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to read service key %s: %w", key, err)
		}
		if data == nil {
			continue
		}
		var rec domain.ServiceRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal service key %s: %w", key, err)
		}
		out = append(out, rec)
	}
	sortByName(out)
	return out, nil
}

// Delete removes the record for name. Missing names are ignored.
func (s *KVStore) Delete(_ context.Context, name string) error {
	if err := s.bucket.Delete(recordKey(name)); err != nil && !errors.Is(err, kvjetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete service %s: %w", name, err)
	}
	return nil
}

func isNoKeys(err error) bool {
	return errors.Is(err, kvjetstream.ErrKeyNotFound) ||
		errors.Is(err, nats.ErrNoKeysFound) ||
		errors.Is(err, jetstream.ErrNoKeysFound)
}

func sortByName(recs []domain.ServiceRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
}
