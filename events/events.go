package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// ServiceRegisteredEvent is emitted when a service is registered or replaced
// in the directory.
type ServiceRegisteredEvent struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ServiceEvictedEvent is emitted when a service stops heartbeating past its TTL.
type ServiceEvictedEvent struct {
	Name          string    `json:"name"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Timestamp     time.Time `json:"timestamp"`
}

// TransferCompletedEvent is emitted after the last chunk and the completion
// marker of a transfer have been emitted.
type TransferCompletedEvent struct {
	TransferID  string    `json:"transfer_id"`
	TotalSize   int       `json:"total_size"`
	TotalChunks int       `json:"total_chunks"`
	Duration    string    `json:"duration"`
	Timestamp   time.Time `json:"timestamp"`
}

// Event definitions for the gateway.
var (
	ServiceRegisteredV1 = helper.EventDefinition[ServiceRegisteredEvent](
		"directory",
		"ServiceRegistered",
		"v1",
	)

	ServiceEvictedV1 = helper.EventDefinition[ServiceEvictedEvent](
		"directory",
		"ServiceEvicted",
		"v1",
	)

	TransferCompletedV1 = helper.EventDefinition[TransferCompletedEvent](
		"transfer",
		"TransferCompleted",
		"v1",
	)
)
