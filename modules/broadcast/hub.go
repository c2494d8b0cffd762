package broadcast

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// DefaultWriteTimeout bounds how long a reliable emit waits for a slow client.
const DefaultWriteTimeout = 5 * time.Second

// Hub routes events to the clients of one namespace, either to everyone or
// to the members of a topic.
type Hub struct {
	namespace    Namespace
	clients      map[string]*Client             // clientID -> Client
	topics       map[string]map[string]struct{} // topic -> set of clientIDs
	writeTimeout time.Duration
	done         chan struct{}
	mu           sync.RWMutex
	// emitMu serializes reliable emissions so delivery order matches call order.
	emitMu sync.Mutex
}

// NewHub creates a hub for namespace ns.
func NewHub(ns Namespace, writeTimeout time.Duration) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Hub{
		namespace:    ns,
		clients:      make(map[string]*Client),
		topics:       make(map[string]map[string]struct{}),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// Namespace returns the namespace served by the hub.
func (h *Hub) Namespace() Namespace {
	return h.namespace
}

// Run blocks until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	log.Printf("[hub:%s] Shutting down...", h.namespace)
	h.closeAllClients()
	close(h.done)
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.topics = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	log.Printf("[hub:%s] Client %s registered", h.namespace, client.ID)
}

// Unregister removes a client and all of its topic memberships.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; !ok {
		return
	}
	delete(h.clients, clientID)
	for topic := range h.topics {
		h.removeMemberLocked(topic, clientID)
	}
	log.Printf("[hub:%s] Client %s unregistered", h.namespace, clientID)
}

// Subscribe adds the client to topic. Returns false for unknown clients.
func (h *Hub) Subscribe(clientID, topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; !ok {
		return false
	}
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[string]struct{})
		h.topics[topic] = members
	}
	members[clientID] = struct{}{}
	return true
}

// Unsubscribe removes the client from topic. Empty topics are deleted.
func (h *Hub) Unsubscribe(clientID, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeMemberLocked(topic, clientID)
}

func (h *Hub) removeMemberLocked(topic, clientID string) {
	members, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(h.topics, topic)
	}
}

// Publish reliably delivers event to the members of topic at call time.
// It returns the number of clients the event was queued for.
func (h *Hub) Publish(topic, event string, payload any) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.topics[topic]))
	for clientID := range h.topics[topic] {
		if client, ok := h.clients[clientID]; ok {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, event, payload)
}

// BroadcastAll reliably delivers event to every client of the namespace.
func (h *Hub) BroadcastAll(event string, payload any) int {
	return h.deliver(h.snapshot(), event, payload)
}

// PublishVolatile delivers event to every client without waiting. Clients
// whose queue is full miss the event; nothing is retried.
func (h *Hub) PublishVolatile(event string, payload any) int {
	targets := h.snapshot()
	if len(targets) == 0 {
		return 0
	}
	data, err := encode(event, payload, nil)
	if err != nil {
		log.Printf("[hub:%s] %v", h.namespace, err)
		return 0
	}

	sent := 0
	for _, client := range targets {
		if client.tryEnqueue(data) {
			sent++
		}
	}
	return sent
}

// SendTo reliably delivers event to a single client.
func (h *Hub) SendTo(clientID, event string, payload any) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.deliver([]*Client{client}, event, payload) == 1
}

// Reply sends the acknowledgment for an inbound event. Without an ack id the
// reply is only sent when it reports a failure, as an error event.
func (h *Hub) Reply(client *Client, ack *int64, payload any) bool {
	event := EventAck
	if ack == nil {
		if res, ok := payload.(Result); !ok || res.Success {
			return false
		}
		event = EventError
	}
	data, err := encode(event, payload, ack)
	if err != nil {
		log.Printf("[hub:%s] %v", h.namespace, err)
		return false
	}
	return client.enqueue(data, h.writeTimeout)
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		targets = append(targets, client)
	}
	return targets
}

func (h *Hub) deliver(targets []*Client, event string, payload any) int {
	if len(targets) == 0 {
		return 0
	}
	data, err := encode(event, payload, nil)
	if err != nil {
		log.Printf("[hub:%s] %v", h.namespace, err)
		return 0
	}

	h.emitMu.Lock()
	var slow []*Client
	sent := 0
	for _, client := range targets {
		if client.enqueue(data, h.writeTimeout) {
			sent++
			continue
		}
		slow = append(slow, client)
	}
	h.emitMu.Unlock()

	for _, client := range slow {
		select {
		case <-client.Done():
		default:
			log.Printf("[hub:%s] Client %s too slow, disconnecting", h.namespace, client.ID)
		}
		h.Unregister(client.ID)
		client.Close()
	}
	return sent
}

// Members returns the sorted client IDs subscribed to topic.
func (h *Hub) Members(topic string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.topics[topic]))
	for clientID := range h.topics[topic] {
		ids = append(ids, clientID)
	}
	sort.Strings(ids)
	return ids
}

// HasTopic reports whether topic currently has members.
func (h *Hub) HasTopic(topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.topics[topic]
	return ok
}

// IsMember reports whether the client is subscribed to topic.
func (h *Hub) IsMember(clientID, topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.topics[topic][clientID]
	return ok
}

// GetClient returns a client by ID.
func (h *Hub) GetClient(clientID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientID]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TopicCount returns the number of non-empty topics.
func (h *Hub) TopicCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}
