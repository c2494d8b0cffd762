package api

import (
	"context"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
	"github.com/example/realtime-gateway-demo/modules/transfer"
)

const (
	localHandshake = "handshake"

	// readLimit admits a maximum-size transfer sent as base64 in a JSON envelope.
	readLimit = transfer.MaxTransferSize*4/3 + 64*1024
)

// upgradeMiddleware rejects unknown namespaces and plain HTTP requests,
// and captures the handshake credentials for the socket handler.
func (m *APIModule) upgradeMiddleware(c *fiber.Ctx) error {
	ns := broadcast.Namespace(c.Params("namespace"))
	if _, ok := m.handlers[ns]; !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown namespace: "+string(ns))
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	handshake := make(map[string]string)
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	}
	if token != "" {
		handshake["token"] = token
	}
	if username := c.Query("username"); username != "" {
		handshake["username"] = username
	}
	c.Locals(localHandshake, handshake)
	return c.Next()
}

// handleWebSocket runs one namespace connection until it closes.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	ns := broadcast.Namespace(c.Params("namespace"))
	h := m.handlers[ns]
	handshake, _ := c.Locals(localHandshake).(map[string]string)

	c.SetReadLimit(readLimit)

	client := broadcast.NewClient(uuid.New().String(), ns, c, handshake, broadcast.ClientOptions{
		SendBuffer: m.cfg.SendBuffer,
		RateLimit:  m.cfg.RateLimit,
		RateBurst:  m.cfg.RateBurst,
	})

	m.logger.Debug("WebSocket connected", "namespace", ns, "client_id", client.ID)
	broadcast.Serve(context.Background(), m.registry.Hub(ns), h, client, c)
	m.logger.Debug("WebSocket disconnected", "namespace", ns, "client_id", client.ID)
}
