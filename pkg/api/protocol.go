package api

import (
	"encoding/json"
)

// Имена исходящих событий (webhook чат-бота и WebSocket-лента).
const (
	EventGameStarted             = "game-started"
	EventGamePaused              = "game-paused"
	EventGameResumed             = "game-resumed"
	EventGameEnded               = "game-ended"
	EventStreamerDied            = "streamer-died"
	EventStreamerVictory         = "streamer-victory"
	EventHunterJoined            = "hunter-joined"
	EventHunterLeft              = "hunter-left"
	EventNoShowImmediateReselect = "no-show-immediate-reselect"
)

// Типы сообщений сервер -> клиент
const (
	MessageEvent  = "EVENT"
	MessageHUD    = "HUD"
	MessageStatus = "STATUS"
	MessageError  = "ERROR"
)

// Действия клиент -> сервер
const (
	ActionSubscribe = "SUBSCRIBE"
	ActionStatus    = "STATUS"
)

// --- СЕРВЕР -> КЛИЕНТ ---

// WebhookEvent это тело POST-запроса к чат-боту.
// Data всегда плоская карта строк, даже для чисел.
type WebhookEvent struct {
	Event string            `json:"event"`
	Data  map[string]string `json:"data"`
}

// ServerMessage это корневой объект, который сервер отправляет подписчику
// WebSocket-ленты. Заполнено ровно одно из полей Event, HUD, Status.
type ServerMessage struct {
	// Type тип сообщения: EVENT, HUD, STATUS, ERROR.
	Type string `json:"type"`

	// Timestamp время отправки, Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	Event  *WebhookEvent   `json:"event,omitempty"`
	HUD    *HUDView        `json:"hud,omitempty"`
	Status *StatusResponse `json:"status,omitempty"`

	// Error текст ошибки для Type == ERROR.
	Error string `json:"error,omitempty"`
}

// HUDView это телеметрия активной охоты, рассылается раз в тик HUD.
type HUDView struct {
	AttemptNumber int    `json:"attemptNumber"`
	SessionID     string `json:"sessionId"`
	HunterName    string `json:"hunterName"`
	TargetName    string `json:"targetName"`

	// RemainingSeconds сколько осталось до истечения времени охоты.
	RemainingSeconds int64 `json:"remainingSeconds"`

	// DistanceBlocks расстояние охотник <-> цель.
	// Отсутствует, если кто-то из них оффлайн или они в разных мирах.
	DistanceBlocks *float64 `json:"distanceBlocks,omitempty"`
}

// StatusResponse это ответ GET /api/hunt/status и на действие STATUS.
type StatusResponse struct {
	CurrentAttempt *int `json:"currentAttempt"`
	GameActive     bool `json:"gameActive"`
	GamePaused     bool `json:"gamePaused"`
	WorldReady     bool `json:"worldReady"`
}

// SuccessResponse это тело успешного ответа на команду.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse это тело ответа с ошибкой.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// --- КЛИЕНТ -> СЕРВЕР ---

// SelectionRequest это запрос очереди на выбор охотника (POST /api/hunt/select).
type SelectionRequest struct {
	// MinecraftUsername имя персонажа в мире.
	MinecraftUsername string `json:"minecraftUsername"`

	// TwitchUsername имя в очереди (чате).
	TwitchUsername string `json:"twitchUsername"`
}

// ClientCommand это корневой объект сообщений от подписчика WebSocket.
type ClientCommand struct {
	// Token ID подписчика. Если пустой, сервер выдаст новый.
	// Учитывается только в первом сообщении SUBSCRIBE.
	Token string `json:"token,omitempty"`

	// Action название действия: SUBSCRIBE или STATUS.
	Action string `json:"action"`

	// Payload JSON-объект с данными для действия. Его структура зависит от Action.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Debug ---

// DebugAttemptRequest управляет попыткой (POST /debug/attempt).
type DebugAttemptRequest struct {
	// Action: START, END, PAUSE, RESUME.
	Action string `json:"action"`

	// Initiator игрок, запустивший попытку (для START).
	Initiator string `json:"initiator,omitempty"`

	// Outcome итог для END: DEATH, VICTORY, CANCELLED.
	Outcome string `json:"outcome,omitempty"`
}

// DebugEventRequest симулирует событие движка (POST /debug/events).
type DebugEventRequest struct {
	// Type: JOIN, QUIT, DEATH, DRAGON, MOVE.
	Type string `json:"type"`

	Player string `json:"player,omitempty"`
	Killer string `json:"killer,omitempty"`
	World  string `json:"world,omitempty"`

	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`
	Z float64 `json:"z,omitempty"`
}
