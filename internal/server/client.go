package server

import (
	"net/http"
	"time"

	"hunt-server/internal/network"
	"hunt-server/pkg/api"
	"hunt-server/pkg/logger"
	"hunt-server/pkg/utils"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Настройки WebSocket
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	handshakeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StatusSource отдает текущее состояние игры
type StatusSource interface {
	Status() api.StatusResponse
}

// Client - подписчик ленты событий поверх WebSocket
type Client struct {
	Hub    *network.Broadcaster
	Game   StatusSource
	Conn   *websocket.Conn
	ID     string
	ready  chan chan api.ServerMessage
	logger *logrus.Entry
}

func NewClient(hub *network.Broadcaster, game StatusSource, conn *websocket.Conn) *Client {
	return &Client{
		Hub:    hub,
		Game:   game,
		Conn:   conn,
		ready:  make(chan chan api.ServerMessage, 1),
		logger: logger.For("ws"),
	}
}

// readPump выполняет рукопожатие SUBSCRIBE и обрабатывает команды
func (c *Client) readPump() {
	defer func() {
		if c.ID != "" {
			c.Hub.Unregister(c.ID)
			c.logger.WithField("subscriber", c.ID).Info("Subscriber disconnected")
		} else {
			close(c.ready)
		}
		if err := c.Conn.Close(); err != nil {
			c.logger.WithError(err).Debug("Failed to close websocket connection")
		}
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(handshakeWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// 1. HANDSHAKE
	var hello api.ClientCommand
	if err := c.Conn.ReadJSON(&hello); err != nil {
		c.logger.WithError(err).Warn("Handshake failed")
		return
	}
	if hello.Action != api.ActionSubscribe {
		c.logger.WithField("action", hello.Action).Warn("First message must be SUBSCRIBE")
		return
	}

	c.ID = hello.Token
	if c.ID == "" {
		c.ID = utils.GenerateID()
	}

	// 2. ПОДПИСКА
	c.ready <- c.Hub.Register(c.ID)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.logger.WithField("subscriber", c.ID).Info("Subscriber connected")
	c.sendStatus()

	// 3. ЦИКЛ ЧТЕНИЯ КОМАНД
	for {
		var cmd api.ClientCommand
		if err := c.Conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("WebSocket read error")
			}
			return
		}
		if err := cmd.Validate(); err != nil {
			c.Hub.SendTo(c.ID, api.ServerMessage{
				Type:      api.MessageError,
				Timestamp: time.Now().UnixMilli(),
				Error:     err.Error(),
			})
			continue
		}
		if cmd.Action == api.ActionStatus {
			c.sendStatus()
		}
	}
}

func (c *Client) sendStatus() {
	status := c.Game.Status()
	c.Hub.SendTo(c.ID, api.ServerMessage{
		Type:      api.MessageStatus,
		Timestamp: time.Now().UnixMilli(),
		Status:    &status,
	})
}

// writePump пересылает сообщения ленты клиенту + Ping
func (c *Client) writePump() {
	send, ok := <-c.ready
	if !ok {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.Conn.Close(); err != nil {
			c.logger.WithError(err).Debug("Failed to close websocket connection in writePump")
		}
	}()

	for {
		select {
		case message, ok := <-send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				c.logger.WithError(err).Debug("Write failed")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.WithError(err).Debug("Ping failed")
				return
			}
		}
	}
}
