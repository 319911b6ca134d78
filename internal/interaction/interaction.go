// Package interaction - компоненты действий над постом: лайк, сохранение,
// комментарий, редактирование. Каждый сначала меняет локальное состояние,
// затем вызывает API и по ответу либо сверяет состояние с хранилищем и
// рассылает событие, либо откатывается.
package interaction

import (
	"errors"

	"github.com/ButyrinIA/casefeed/internal/feed"
	"github.com/ButyrinIA/casefeed/internal/logger"
	"github.com/ButyrinIA/casefeed/internal/models"
	"go.uber.org/zap"
)

// MaxAttachments - предел вложений у поста и у комментария
const MaxAttachments = 10

var (
	// ErrBusy - действие уже выполняется
	ErrBusy = errors.New("action already in progress")
	// ErrForbidden - у пользователя нет прав на действие
	ErrForbidden = errors.New("not allowed")
)

// ValidationError - ошибка ввода, найденная до обращения к сети
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation сообщает, что ошибка - ошибка ввода
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Store - узкий API хранилища постов, которым пользуются компоненты
type Store interface {
	Post(id string) (models.Post, bool)
	SyncPostUpdate(id string, patch models.PostPatch) bool
	InsertPost(p models.Post) bool
	RemovePost(id string) bool
	AttachComment(c models.Comment) bool
	RemoveComment(postID, commentID string) bool
}

// Emitter - исходящие события канала; доставка не гарантируется
type Emitter interface {
	Emit(kind feed.EventKind, payload any)
}

// Env - общие зависимости компонентов
type Env struct {
	Store   Store
	Channel Emitter
	Logger  *zap.Logger
}

func (e Env) log() *zap.Logger {
	return logger.OrNop(e.Logger)
}

func (e Env) emit(kind feed.EventKind, payload any) {
	if e.Channel != nil {
		e.Channel.Emit(kind, payload)
	}
}
