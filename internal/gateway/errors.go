package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound - сущность удалена или никогда не существовала (например, пост
// удален другой сессией). Проверяется через errors.Is.
var ErrNotFound = errors.New("not found")

// APIError - сервер ответил кодом, отличным от 2xx
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// TransportError - запрос не дошел до сервера или ответ не удалось прочитать
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport сообщает, что ошибка сетевая (таймаут, отказ в соединении)
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
