package domain

import (
	"errors"
	"fmt"
)

// Таксономия ошибок ядра. Все ошибки восстановимы: вызывающая сторона
// сама решает, что показать пользователю.
var (
	// ErrInvalidState - переход нарушает предусловие (не активна, уже активна, не та фаза сессии)
	ErrInvalidState = errors.New("invalid state")
	// ErrNotReady - следующий мир еще не сгенерирован
	ErrNotReady = errors.New("next world not ready")
	// ErrResource - ошибка создания/удаления мира, файлового ввода-вывода
	ErrResource = errors.New("resource error")
	// ErrNotification - внешний получатель событий недоступен
	ErrNotification = errors.New("notification failed")
)

// Причины отказа в выборе охотника (ответы источнику выбора)
var (
	ErrNoActiveAttempt   = fmt.Errorf("%w: no active game in progress", ErrInvalidState)
	ErrAttemptPaused     = fmt.Errorf("%w: game is active but paused", ErrInvalidState)
	ErrSessionInProgress = fmt.Errorf("%w: a hunt is already in progress", ErrInvalidState)
	ErrTargetOffline     = errors.New("streamer is currently not online")
)

// InvalidStatef оборачивает ErrInvalidState с описанием
func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// ResourceErrorf оборачивает причину в ErrResource
func ResourceErrorf(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrResource, fmt.Sprintf(format, args...), err)
}
