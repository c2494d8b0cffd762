package directory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	domain "github.com/example/realtime-gateway-demo/domain/directory"
	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// DirectoryPort defines the interface for directory operations.
type DirectoryPort interface {
	Register(ctx context.Context, req RegisterRequest) (domain.ServiceRecord, error)
	Discover(ctx context.Context) ([]domain.ServiceRecord, error)
	Heartbeat(ctx context.Context, name string) (HeartbeatResponse, error)
}

// DirectoryAdapter implements DirectoryPort using the service container.
type DirectoryAdapter struct {
	container mono.ServiceContainer
}

// NewDirectoryAdapter creates a new DirectoryAdapter.
func NewDirectoryAdapter(container mono.ServiceContainer) DirectoryPort {
	if container == nil {
		panic("directory: ServiceContainer is nil")
	}
	return &DirectoryAdapter{container: container}
}

// Register registers or replaces a service.
func (a *DirectoryAdapter) Register(ctx context.Context, req RegisterRequest) (domain.ServiceRecord, error) {
	var resp RegisterResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceRegister,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return domain.ServiceRecord{}, fmt.Errorf("failed to register service: %w", broadcast.RemoteError(err))
	}
	return resp.Service, nil
}

// Discover lists registered services.
func (a *DirectoryAdapter) Discover(ctx context.Context) ([]domain.ServiceRecord, error) {
	req := DiscoverRequest{}
	var resp DiscoverResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceDiscover,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", broadcast.RemoteError(err))
	}
	return resp.Services, nil
}

// Heartbeat refreshes a service.
func (a *DirectoryAdapter) Heartbeat(ctx context.Context, name string) (HeartbeatResponse, error) {
	req := HeartbeatRequest{Name: name}
	var resp HeartbeatResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceHeartbeat,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return HeartbeatResponse{}, fmt.Errorf("failed to send heartbeat: %w", broadcast.RemoteError(err))
	}
	return resp, nil
}
