package utils

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// GenerateID создает уникальный ID (UUID v4)
func GenerateID() string {
	return uuid.NewString()
}

// ShortID - первые 8 символов ID, удобно для логов
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// StringToSeed превращает ввод пользователя в сид мира.
// Число используется как есть, любая другая строка хешируется.
func StringToSeed(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
