package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/logger"
)

// Hub управляет WebSocket подключениями и доставляет уведомления о
// событиях контракта подключённым пользователям. Доставка best-effort:
// медленный клиент отключается, очередь не копится.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
}

// NewHub создаёт новый хаб.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*Client]struct{}),
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.userID)
		}
	}
}

// Push отправляет событие всем подключениям пользователя.
// Поле "type" содержит имя события, "data" — полезную нагрузку.
func (h *Hub) Push(userID uuid.UUID, event string, data any) {
	raw, err := json.Marshal(map[string]any{
		"type": event,
		"data": data,
	})
	if err != nil {
		if logger.Log != nil {
			logger.Log.WithError(err).WithField("event", event).
				Error("ws: не удалось сериализовать сообщение")
		}
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.send <- raw:
		default:
			// Очередь клиента заполнена, отключаем его.
			go client.Close()
		}
	}
}
