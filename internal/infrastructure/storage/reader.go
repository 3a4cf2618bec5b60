package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"hunt-server/internal/domain"
	"hunt-server/pkg/logger"
)

// Load читает историю. Отсутствующий или испорченный файл - это пустая
// история ("прошлых попыток нет"), а не ошибка.
func (s *HistoryStore) Load(ctx context.Context) []domain.AttemptRecord {
	log := logger.For("history").WithField("path", s.path)

	s.mu.Lock()
	history, err := s.read(ctx)
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		log.Info("No attempt history found, starting fresh")
		return []domain.AttemptRecord{}
	}
	if err != nil {
		log.WithError(err).Warn("Failed to load attempt history, starting fresh")
		return []domain.AttemptRecord{}
	}

	log.WithField("attempts", len(history)).Info("Loaded attempt history")
	return history
}

func (s *HistoryStore) read(ctx context.Context) ([]domain.AttemptRecord, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := s.lock.TryRLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock history: %w", err)
	}
	if locked {
		defer func() { _ = s.lock.Unlock() }()
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func decode(data []byte) ([]domain.AttemptRecord, error) {
	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}

	// Файлы без версии пишет старый формат, он совместим с первой версией
	if file.Version > FileVersion {
		return nil, fmt.Errorf("unsupported history version: %d (expected <= %d)", file.Version, FileVersion)
	}
	if file.Attempts == nil {
		return []domain.AttemptRecord{}, nil
	}
	for i := range file.Attempts {
		if file.Attempts[i].Encounters == nil {
			file.Attempts[i].Encounters = []domain.Encounter{}
		}
	}
	return file.Attempts, nil
}
