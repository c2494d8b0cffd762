package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"

	domain "github.com/example/realtime-gateway-demo/domain/directory"
	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// Validation errors
var (
	ErrNameRequired = fmt.Errorf("%w: service name is required", broadcast.ErrInvalidPayload)
	ErrTypeRequired = fmt.Errorf("%w: service type is required", broadcast.ErrInvalidPayload)
)

// Notifier announces directory changes to subscribers.
type Notifier interface {
	ServiceRegistered(ctx context.Context, rec domain.ServiceRecord) error
	ServiceEvicted(ctx context.Context, rec domain.ServiceRecord) error
}

// Service implements register, discover and heartbeat over a Store.
type Service struct {
	store    Store
	notifier Notifier
	ttl      time.Duration
	now      func() time.Time
	logger   types.Logger
	// mu serializes read-modify-write sequences against the store.
	mu sync.Mutex
}

// NewService creates a directory service. A zero ttl disables eviction.
func NewService(store Store, notifier Notifier, ttl time.Duration, logger types.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Register stores req, replacing any record with the same name, and
// announces the registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (domain.ServiceRecord, error) {
	if req.Name == "" {
		return domain.ServiceRecord{}, ErrNameRequired
	}
	if req.Type == "" {
		return domain.ServiceRecord{}, ErrTypeRequired
	}

	now := s.now()
	rec := domain.ServiceRecord{
		Name:          req.Name,
		Type:          req.Type,
		Metadata:      req.Metadata,
		RegisteredAt:  now,
		LastHeartbeat: now,
	}

	s.mu.Lock()
	err := s.store.Put(ctx, rec)
	s.mu.Unlock()
	if err != nil {
		return domain.ServiceRecord{}, err
	}

	if err := s.notifier.ServiceRegistered(ctx, rec); err != nil {
		s.logger.Warn("Failed to announce service registration", "service", rec.Name, "error", err)
	}
	s.logger.Info("Service registered", "service", rec.Name, "type", rec.Type)
	return rec, nil
}

// Discover returns every registered service.
func (s *Service) Discover(ctx context.Context) ([]domain.ServiceRecord, error) {
	return s.store.List(ctx)
}

// Heartbeat refreshes the liveness of name.
func (s *Service) Heartbeat(ctx context.Context, name string) (HeartbeatResponse, error) {
	if name == "" {
		return HeartbeatResponse{}, ErrNameRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			s.logger.Warn("Heartbeat for unknown service", "service", name)
			return HeartbeatResponse{}, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
		}
		return HeartbeatResponse{}, err
	}

	rec.LastHeartbeat = s.now()
	if err := s.store.Put(ctx, rec); err != nil {
		return HeartbeatResponse{}, err
	}
	return HeartbeatResponse{Success: true, Timestamp: rec.LastHeartbeat}, nil
}

// Sweep evicts records whose last heartbeat is older than the TTL and
// returns their names. It is a no-op when the TTL is zero.
func (s *Service) Sweep(ctx context.Context) ([]string, error) {
	if s.ttl <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	recs, err := s.store.List(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	now := s.now()
	var evicted []domain.ServiceRecord
	for _, rec := range recs {
		if !rec.Stale(now, s.ttl) {
			continue
		}
		if err := s.store.Delete(ctx, rec.Name); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		evicted = append(evicted, rec)
	}
	s.mu.Unlock()

	names := make([]string, 0, len(evicted))
	for _, rec := range evicted {
		names = append(names, rec.Name)
		if err := s.notifier.ServiceEvicted(ctx, rec); err != nil {
			s.logger.Warn("Failed to announce service eviction", "service", rec.Name, "error", err)
		}
		s.logger.Info("Service evicted", "service", rec.Name, "lastHeartbeat", rec.LastHeartbeat)
	}
	return names, nil
}

// RunSweeper sweeps every interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("Directory sweep failed", "error", err)
			}
		}
	}
}
