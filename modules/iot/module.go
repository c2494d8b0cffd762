// Package iot serves the sensor namespace: sensors register once and their
// readings are fanned out on a per-sensor event.
package iot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// Socket events.
const (
	EventRegisterSensor = "registerSensor"
	EventSensorData     = "sensorData"
	EventListSensors    = "listSensors"
)

// SensorEventPrefix prefixes the per-sensor reading event.
const SensorEventPrefix = "sensor."

// Errors
var (
	ErrSensorIDRequired = fmt.Errorf("%w: sensorId is required", broadcast.ErrInvalidPayload)
	ErrSensorNotFound   = fmt.Errorf("sensor %w", broadcast.ErrNotFound)
)

// Sensor is a registered sensor.
type Sensor struct {
	ID         string    `json:"sensorId"`
	Type       string    `json:"type"`
	ClientID   string    `json:"clientId"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// RegisterRequest is the registerSensor payload.
type RegisterRequest struct {
	SensorID string `json:"sensorId"`
	Type     string `json:"type"`
}

// DataRequest is the sensorData payload.
type DataRequest struct {
	SensorID string `json:"sensorId"`
	Value    any    `json:"value"`
}

// Reading is emitted as sensor.<id>.
type Reading struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

// SuccessResponse acknowledges a request.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// SensorList is the listSensors reply.
type SensorList struct {
	Sensors []Sensor `json:"sensors"`
}

// Module keeps the sensor table of the iot namespace.
type Module struct {
	hub     *broadcast.Hub
	now     func() time.Time
	mu      sync.RWMutex
	sensors map[string]*Sensor
	logger  types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ broadcast.Handler          = (*Module)(nil)
)

// NewModule creates the module on the iot hub.
func NewModule(hub *broadcast.Hub, logger types.Logger) *Module {
	return &Module{
		hub:     hub,
		now:     time.Now,
		sensors: make(map[string]*Sensor),
		logger:  logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "iot"
}

// Namespace returns the served namespace.
func (m *Module) Namespace() broadcast.Namespace {
	return broadcast.NamespaceIoT
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("IoT module started")
	return nil
}

// Stop gracefully shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("IoT module stopped", "sensors", len(m.Sensors()))
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connections": m.hub.ClientCount(),
			"sensors":     len(m.Sensors()),
		},
	}
}

// RegisterSensor records or replaces a sensor owned by clientID.
func (m *Module) RegisterSensor(clientID string, req RegisterRequest) error {
	if req.SensorID == "" {
		return ErrSensorIDRequired
	}
	m.mu.Lock()
	m.sensors[req.SensorID] = &Sensor{
		ID:         req.SensorID,
		Type:       req.Type,
		ClientID:   clientID,
		LastUpdate: m.now(),
	}
	m.mu.Unlock()
	m.logger.Info("Sensor registered", "sensor_id", req.SensorID, "type", req.Type, "client_id", clientID)
	return nil
}

// Report records a reading and broadcasts it to every client.
func (m *Module) Report(req DataRequest) (int, error) {
	if req.SensorID == "" {
		return 0, ErrSensorIDRequired
	}
	now := m.now()

	m.mu.Lock()
	var sensorType string
	sensor, ok := m.sensors[req.SensorID]
	if ok {
		sensor.LastUpdate = now
		sensorType = sensor.Type
	}
	m.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSensorNotFound, req.SensorID)
	}

	return m.hub.BroadcastAll(SensorEventPrefix+req.SensorID, Reading{
		Value:     req.Value,
		Timestamp: now,
		Type:      sensorType,
	}), nil
}

// Sensors returns the registered sensors sorted by ID.
func (m *Module) Sensors() []Sensor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Sensor, 0, len(m.sensors))
	for _, s := range m.sensors {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Connect admits every connection.
func (m *Module) Connect(_ context.Context, _ *broadcast.Client) error {
	return nil
}

// Disconnect keeps the sensors registered by the client; devices reconnect
// and keep reporting under the same ID.
func (m *Module) Disconnect(_ context.Context, client *broadcast.Client) {
	m.logger.Debug("IoT client disconnected", "client_id", client.ID)
}

// HandleEvent dispatches iot namespace events.
func (m *Module) HandleEvent(_ context.Context, client *broadcast.Client, ev broadcast.Event) (any, error) {
	switch ev.Name {
	case EventRegisterSensor:
		var req RegisterRequest
		if err := ev.Decode(&req); err != nil {
			return nil, err
		}
		if err := m.RegisterSensor(client.ID, req); err != nil {
			return nil, err
		}
		return SuccessResponse{Success: true}, nil

	case EventSensorData:
		var req DataRequest
		if err := ev.Decode(&req); err != nil {
			return nil, err
		}
		if _, err := m.Report(req); err != nil {
			return nil, err
		}
		return nil, nil

	case EventListSensors:
		return SensorList{Sensors: m.Sensors()}, nil

	default:
		return nil, fmt.Errorf("%w: %s", broadcast.ErrUnknownEvent, ev.Name)
	}
}
