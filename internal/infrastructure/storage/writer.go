package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"hunt-server/internal/domain"
	"hunt-server/pkg/logger"

	"github.com/gofrs/flock"
)

const (
	// FileVersion - версия формата файла истории
	FileVersion = 1

	lockRetryDelay = 20 * time.Millisecond
	lockTimeout    = 5 * time.Second
)

// historyFile - точное представление файла истории на диске
type historyFile struct {
	Version  int                    `json:"version"`
	Attempts []domain.AttemptRecord `json:"attempts"`
}

// HistoryStore владеет файлом истории попыток.
// Запись всегда целиком (перезапись, а не дописывание) под эксклюзивной
// блокировкой файла, поэтому читатели видят либо старую, либо новую версию.
type HistoryStore struct {
	path string
	mu   sync.Mutex // flock не защищает от гонок внутри процесса
	lock *flock.Flock
}

func NewHistoryStore(path string) *HistoryStore {
	return &HistoryStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Save сохраняет всю историю. Ошибки логируются и не возвращаются:
// переход состояния игры не откатывается из-за сбоя диска.
func (s *HistoryStore) Save(ctx context.Context, history []domain.AttemptRecord) {
	log := logger.For("history").WithField("path", s.path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(ctx, history); err != nil {
		log.WithError(err).Error("Failed to save attempt history")
		return
	}
	log.WithField("attempts", len(history)).Debug("Attempt history saved")
}

func (s *HistoryStore) write(ctx context.Context, history []domain.AttemptRecord) error {
	// 1. Создаем папку, если нет
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return domain.ResourceErrorf(err, "create data dir")
	}

	if history == nil {
		history = []domain.AttemptRecord{}
	}
	data, err := json.MarshalIndent(historyFile{Version: FileVersion, Attempts: history}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	// 2. Эксклюзивная блокировка
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return domain.ResourceErrorf(err, "lock history file")
	}
	if !locked {
		return fmt.Errorf("%w: history file is locked by another process", domain.ErrResource)
	}
	defer func() { _ = s.lock.Unlock() }()

	// 3. Пишем во временный файл и атомарно подменяем
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return domain.ResourceErrorf(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return domain.ResourceErrorf(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return domain.ResourceErrorf(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return domain.ResourceErrorf(err, "close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return domain.ResourceErrorf(err, "replace history file")
	}
	return nil
}
