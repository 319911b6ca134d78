package storage

import (
	"context"
	"errors"
)

// ErrNotFound возвращается, когда ключ отсутствует в хранилище
var ErrNotFound = errors.New("key not found")

// Ключи сохраненного состояния сессии
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// Storage - сохраняемое состояние сессии клиента (аналог localStorage):
// токен и сериализованная запись текущего пользователя.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
