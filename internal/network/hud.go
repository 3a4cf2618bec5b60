package network

import (
	"context"
	"sync"
	"time"

	"hunt-server/internal/dispatch"
	"hunt-server/pkg/api"
	"hunt-server/pkg/logger"
)

// HUDProvider собирает текущую телеметрию. false - кадр пропускается.
type HUDProvider func(ctx context.Context) (api.HUDView, bool)

// HUDPublisher периодически рассылает телеметрию активных охот в ленту
type HUDPublisher struct {
	hub      *Broadcaster
	bg       *dispatch.Background
	interval time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewHUDPublisher(hub *Broadcaster, bg *dispatch.Background, interval time.Duration) *HUDPublisher {
	if interval <= 0 {
		interval = time.Second
	}
	return &HUDPublisher{
		hub:      hub,
		bg:       bg,
		interval: interval,
		running:  make(map[string]context.CancelFunc),
	}
}

// Start запускает рассылку для сессии. Повторный Start перезапускает ее.
func (p *HUDPublisher) Start(sessionID string, provider HUDProvider) {
	ctx, cancel := context.WithCancel(p.bg.Context())

	p.mu.Lock()
	if prev, ok := p.running[sessionID]; ok {
		prev()
	}
	p.running[sessionID] = cancel
	p.mu.Unlock()

	p.bg.Go("hud:"+sessionID, func(context.Context) error {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.publish(ctx, provider)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				p.publish(ctx, provider)
			}
		}
	})
	logger.For("hud").WithField("session", sessionID).Debug("HUD updates started")
}

func (p *HUDPublisher) publish(ctx context.Context, provider HUDProvider) {
	view, ok := provider(ctx)
	if !ok || ctx.Err() != nil {
		return
	}
	p.hub.Broadcast(api.ServerMessage{
		Type:      api.MessageHUD,
		Timestamp: time.Now().UnixMilli(),
		HUD:       &view,
	})
}

// Stop останавливает рассылку. Для неизвестной сессии ничего не делает.
func (p *HUDPublisher) Stop(sessionID string) {
	p.mu.Lock()
	cancel, ok := p.running[sessionID]
	delete(p.running, sessionID)
	p.mu.Unlock()

	if ok {
		cancel()
		logger.For("hud").WithField("session", sessionID).Debug("HUD updates stopped")
	}
}

// Active - число сессий с запущенным HUD
func (p *HUDPublisher) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}
