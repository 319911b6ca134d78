package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ButyrinIA/casefeed/internal/models"
	"github.com/ButyrinIA/casefeed/internal/storage"
	"github.com/golang-jwt/jwt/v5"
)

// Session - сохраняемое состояние сессии: токен и запись текущего пользователя.
// Любой компонент может читать и писать его; запись пользователя
// сериализуется в JSON так же, как ее хранит веб-клиент.
type Session struct {
	store storage.Storage
	// mu сериализует read-modify-write над записью пользователя
	mu sync.Mutex
}

func New(store storage.Storage) *Session {
	return &Session{store: store}
}

// Token возвращает сохраненный токен или пустую строку, если входа не было
func (s *Session) Token(ctx context.Context) (string, error) {
	data, err := s.store.Get(ctx, storage.KeyToken)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return string(data), nil
}

// Login сохраняет токен и пользователя после успешного входа
func (s *Session) Login(ctx context.Context, token string, user models.User) error {
	if err := s.store.Set(ctx, storage.KeyToken, []byte(token)); err != nil {
		return err
	}
	return s.SetCurrentUser(ctx, user)
}

// Logout удаляет токен и пользователя
func (s *Session) Logout(ctx context.Context) error {
	if err := s.store.Delete(ctx, storage.KeyToken); err != nil {
		return err
	}
	return s.store.Delete(ctx, storage.KeyUser)
}

// CurrentUser читает запись пользователя; если ее нет, возвращается пустой пользователь
func (s *Session) CurrentUser(ctx context.Context) (models.User, error) {
	data, err := s.store.Get(ctx, storage.KeyUser)
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, nil
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	var u models.User
	if err := json.Unmarshal(data, &u); err != nil {
		return models.User{}, fmt.Errorf("failed to decode user: %w", err)
	}
	return u, nil
}

func (s *Session) SetCurrentUser(ctx context.Context, u models.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	return s.store.Set(ctx, storage.KeyUser, data)
}

// UserID возвращает идентификатор текущего пользователя. Если запись
// пользователя не содержит id, он берется из claims токена.
func (s *Session) UserID(ctx context.Context) (string, error) {
	u, err := s.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	if u.ID != "" {
		return u.ID, nil
	}
	token, err := s.Token(ctx)
	if err != nil || token == "" {
		return "", err
	}
	claims, err := ParseClaims(token)
	if err != nil {
		return "", nil
	}
	return claims.UserID, nil
}

// SavedPosts возвращает идентификаторы сохраненных постов
func (s *Session) SavedPosts(ctx context.Context) ([]string, error) {
	u, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(u.SavedPosts), nil
}

// IsSaved сообщает, есть ли пост в сохраненных
func (s *Session) IsSaved(ctx context.Context, postID string) (bool, error) {
	saved, err := s.SavedPosts(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(saved, postID), nil
}

// SetSaved добавляет или убирает пост из набора сохраненных
func (s *Session) SetSaved(ctx context.Context, postID string, saved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.CurrentUser(ctx)
	if err != nil {
		return err
	}
	has := slices.Contains(u.SavedPosts, postID)
	switch {
	case saved && !has:
		u.SavedPosts = append(u.SavedPosts, postID)
	case !saved && has:
		u.SavedPosts = slices.DeleteFunc(u.SavedPosts, func(id string) bool { return id == postID })
	default:
		return nil
	}
	return s.SetCurrentUser(ctx, u)
}

// Claims - поля токена, которые нужны клиенту
type Claims struct {
	UserID    string
	ExpiresAt time.Time
}

// Expired сообщает, истек ли срок действия токена к моменту now
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// ParseClaims читает claims без проверки подписи: ключ знает только сервер,
// клиенту нужен лишь идентификатор и срок действия.
func ParseClaims(token string) (Claims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse token: %w", err)
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("unexpected claims type")
	}

	var c Claims
	for _, key := range []string{"user_id", "id", "_id", "sub"} {
		if v, ok := mc[key].(string); ok && v != "" {
			c.UserID = v
			break
		}
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}
