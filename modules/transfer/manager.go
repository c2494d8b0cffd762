package transfer

import (
	"context"
	"fmt"
	"log"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
	"golang.org/x/sync/semaphore"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// Transfer limits. These are process-wide and not negotiable per caller.
const (
	MaxTransferSize      = 10_000_000
	ChunkSize            = 512 * 1024
	MaxStreamMessageSize = 1_000_000
	DefaultChunkInterval = 50 * time.Millisecond
	DefaultMaxTransfers  = 4
)

// Outbound events.
const (
	EventBinaryStart    = "binaryStart"
	EventBinaryChunk    = "binaryChunk"
	EventBinaryComplete = "binaryComplete"
	EventStreamData     = "streamData"
)

var (
	ErrPayloadTooLarge       = fmt.Errorf("binary payload exceeds %d bytes: %w", MaxTransferSize, broadcast.ErrTooLarge)
	ErrStreamMessageTooLarge = fmt.Errorf("stream message exceeds %d bytes: %w", MaxStreamMessageSize, broadcast.ErrTooLarge)
	ErrStreamNotFound        = fmt.Errorf("stream %w", broadcast.ErrNotFound)
	ErrTooManyTransfers      = fmt.Errorf("too many transfers in progress: %w", broadcast.ErrBusy)
)

// Emitter is the reliable emit side of a hub.
type Emitter interface {
	BroadcastAll(event string, payload any) int
}

// Plan describes how a payload is cut into chunks.
type Plan struct {
	TotalSize   int
	ChunkSize   int
	TotalChunks int
}

// NewPlan computes the chunk layout for size bytes.
func NewPlan(size, chunkSize int) Plan {
	return Plan{
		TotalSize:   size,
		ChunkSize:   chunkSize,
		TotalChunks: (size + chunkSize - 1) / chunkSize,
	}
}

// Bounds returns the byte range of chunk i.
func (p Plan) Bounds(i int) (start, end int) {
	start = i * p.ChunkSize
	end = min(start+p.ChunkSize, p.TotalSize)
	return start, end
}

// Manager emits binary payloads to the binary namespace as paced chunks.
type Manager struct {
	hub      Emitter
	interval time.Duration
	sem      *semaphore.Weighted
	suffix   func() string
	sleep    func(ctx context.Context, d time.Duration) error
	onDone   func(Result)
}

// Option configures a Manager.
type Option func(*Manager)

// WithChunkInterval sets the pause between chunks.
func WithChunkInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.interval = d
	}
}

// WithMaxConcurrent caps the number of transfers running at once.
func WithMaxConcurrent(n int64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithCompletionHook is called after every completed transfer.
func WithCompletionHook(fn func(Result)) Option {
	return func(m *Manager) {
		m.onDone = fn
	}
}

// NewManager creates a Manager emitting through hub.
func NewManager(hub Emitter, opts ...Option) (*Manager, error) {
	suffix, err := nanoid.CustomASCII("0123456789abcdefghijklmnopqrstuvwxyz", 9)
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer id generator: %w", err)
	}
	m := &Manager{
		hub:      hub,
		interval: DefaultChunkInterval,
		sem:      semaphore.NewWeighted(DefaultMaxTransfers),
		suffix:   suffix,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// SendBinary validates payload and emits it synchronously as a chunked
// transfer. Oversized payloads are rejected before anything is emitted.
func (m *Manager) SendBinary(ctx context.Context, payload []byte) (Result, error) {
	if len(payload) > MaxTransferSize {
		return Result{}, ErrPayloadTooLarge
	}
	if !m.sem.TryAcquire(1) {
		return Result{}, ErrTooManyTransfers
	}
	defer m.sem.Release(1)

	return m.run(ctx, payload)
}

// Go validates payload and runs the transfer on its own goroutine, calling
// done with the outcome. Validation failures are returned without starting.
func (m *Manager) Go(ctx context.Context, payload []byte, done func(Result, error)) error {
	if len(payload) > MaxTransferSize {
		return ErrPayloadTooLarge
	}
	if !m.sem.TryAcquire(1) {
		return ErrTooManyTransfers
	}

	go func() {
		defer m.sem.Release(1)
		res, err := m.run(ctx, payload)
		if done != nil {
			done(res, err)
		}
	}()
	return nil
}

func (m *Manager) run(ctx context.Context, payload []byte) (Result, error) {
	started := time.Now()
	plan := NewPlan(len(payload), ChunkSize)
	id := m.newTransferID()

	m.hub.BroadcastAll(EventBinaryStart, StartAnnouncement{
		TransferID:  id,
		TotalSize:   plan.TotalSize,
		TotalChunks: plan.TotalChunks,
		ChunkSize:   plan.ChunkSize,
	})

	for i := 0; i < plan.TotalChunks; i++ {
		if i > 0 {
			if err := m.sleep(ctx, m.interval); err != nil {
				return m.abort(id, plan, i, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return m.abort(id, plan, i, err)
		}

		start, end := plan.Bounds(i)
		m.hub.BroadcastAll(EventBinaryChunk, Chunk{
			TransferID: id,
			Index:      i,
			Data:       payload[start:end],
			IsLast:     i == plan.TotalChunks-1,
		})
	}

	m.hub.BroadcastAll(EventBinaryComplete, Completion{
		TransferID: id,
		TotalSize:  plan.TotalSize,
		Success:    true,
	})

	res := Result{
		Success:     true,
		TransferID:  id,
		TotalChunks: plan.TotalChunks,
		TotalSize:   plan.TotalSize,
		Duration:    time.Since(started),
	}
	log.Printf("[transfer] Transfer %s completed: %d bytes in %d chunks", id, plan.TotalSize, plan.TotalChunks)
	if m.onDone != nil {
		m.onDone(res)
	}
	return res, nil
}

func (m *Manager) abort(id string, plan Plan, index int, cause error) (Result, error) {
	m.hub.BroadcastAll(EventBinaryComplete, Completion{
		TransferID: id,
		TotalSize:  plan.TotalSize,
		Success:    false,
	})
	log.Printf("[transfer] Transfer %s stopped before chunk %d: %v", id, index, cause)
	return Result{}, fmt.Errorf("transfer %s stopped: %w", id, cause)
}

func (m *Manager) newTransferID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), m.suffix())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
