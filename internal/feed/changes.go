package feed

// ChangeKind - вид изменения хранилища
type ChangeKind string

const (
	ChangeReloaded ChangeKind = "reloaded"
	ChangeInserted ChangeKind = "inserted"
	ChangeUpdated  ChangeKind = "updated"
	ChangeRemoved  ChangeKind = "removed"
	// ChangeComments - у поста добавлен или удален комментарий
	ChangeComments ChangeKind = "comments"
)

// Change - уведомление подписчику. Содержимое поста подписчик читает сам
// через Post/Feed/Recent, чтобы всегда видеть последнее состояние.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	PostID string     `json:"postId,omitempty"`
}

// Subscribe возвращает канал изменений и функцию отписки. Медленный
// подписчик теряет уведомления: отправка не блокирует хранилище.
func (s *Store) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Change, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
	return ch, cancel
}

// publish вызывается под s.mu
func (s *Store) publish(c Change) {
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
