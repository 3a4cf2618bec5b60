package network

import (
	"context"
	"sync"
	"time"

	"hunt-server/pkg/api"
	"hunt-server/pkg/logger"
)

// Broadcaster занимается только рассылкой сообщений подписчикам ленты
type Broadcaster struct {
	mu sync.RWMutex
	// Мапа: SubscriberID -> Личный канал
	subscribers map[string]chan api.ServerMessage
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]chan api.ServerMessage),
	}
}

// Register создает личный канал подписчика
func (b *Broadcaster) Register(id string) chan api.ServerMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Если канал был, закрываем
	if old, ok := b.subscribers[id]; ok {
		close(old)
	}

	ch := make(chan api.ServerMessage, 100)
	b.subscribers[id] = ch
	return ch
}

// Unregister удаляет подписчика
func (b *Broadcaster) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// SendTo отправляет сообщение конкретному подписчику (Unicast)
func (b *Broadcaster) SendTo(id string, msg api.ServerMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if ch, ok := b.subscribers[id]; ok {
		select {
		case ch <- msg:
		default:
			logger.For("hub").WithField("subscriber", id).Debug("Channel full, message dropped")
		}
	}
}

// Broadcast отправляет всем. Медленные подписчики пропускают сообщения.
func (b *Broadcaster) Broadcast(msg api.ServerMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Notify публикует игровое событие в ленту (реализует engine.Notifier)
func (b *Broadcaster) Notify(_ context.Context, event string, data map[string]string) error {
	b.Broadcast(api.ServerMessage{
		Type:      api.MessageEvent,
		Timestamp: time.Now().UnixMilli(),
		Event:     &api.WebhookEvent{Event: event, Data: data},
	})
	return nil
}

// SubscriberCount возвращает количество активных подписчиков.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
