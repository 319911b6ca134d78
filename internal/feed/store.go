package feed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/ButyrinIA/casefeed/internal/logger"
	"github.com/ButyrinIA/casefeed/internal/models"
	"go.uber.org/zap"
)

// PostSource - откуда хранилище берет полный список постов при перезагрузке
type PostSource interface {
	ListPosts(ctx context.Context) ([]models.Post, error)
}

// Store - единственный источник правды о постах, видимых клиенту. Сводит
// вместе три потока: полные перезагрузки с сервера, события реального
// времени и оптимистичные локальные правки компонентов.
//
// Хранилище владеет обоими представлениями ленты: feed (перемешанный один
// раз на перезагрузку) и recent (по createdAt по убыванию). Читатели
// получают копии, писатели проходят через методы хранилища.
type Store struct {
	src PostSource
	log *zap.Logger

	mu     sync.RWMutex
	posts  map[string]*models.Post
	feed   []string
	recent []string
	rng    *rand.Rand
	saved  map[string]struct{}

	// reloading - число перезагрузок в пути. Пока оно > 0, вставки и
	// удаления запоминаются, чтобы запоздавший ответ сервера их не откатил.
	reloading int
	arrived   map[string]struct{}
	removed   map[string]struct{}

	subs    map[int]chan Change
	nextSub int
}

// Option настраивает Store
type Option func(*Store)

// WithRand задает источник случайности для перемешивания ленты
func WithRand(r *rand.Rand) Option {
	return func(s *Store) { s.rng = r }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = logger.OrNop(log) }
}

// WithSavedPosts передает набор сохраненных постов, прочитанный из сессии
// один раз при создании хранилища
func WithSavedPosts(ids []string) Option {
	return func(s *Store) {
		for _, id := range ids {
			s.saved[id] = struct{}{}
		}
	}
}

func NewStore(src PostSource, opts ...Option) *Store {
	s := &Store{
		src:     src,
		log:     zap.NewNop(),
		posts:   make(map[string]*models.Post),
		saved:   make(map[string]struct{}),
		arrived: make(map[string]struct{}),
		removed: make(map[string]struct{}),
		subs:    make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Reload загружает все посты и сливает их с текущими (см. Reconcile).
// При ошибке коллекция не меняется, ошибка возвращается вызывающему.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.reloading++
	s.mu.Unlock()

	posts, err := s.src.ListPosts(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloading--
	defer func() {
		if s.reloading == 0 {
			clear(s.arrived)
			clear(s.removed)
		}
	}()

	if err != nil {
		s.log.Warn("reload failed", zap.Error(err))
		return fmt.Errorf("failed to reload posts: %w", err)
	}

	next := make(map[string]*models.Post, len(posts))
	order := make([]string, 0, len(posts))
	for _, p := range posts {
		if p.ID == "" {
			continue
		}
		if _, dup := next[p.ID]; dup {
			continue
		}
		if _, gone := s.removed[p.ID]; gone {
			continue
		}
		merged := Reconcile(p, s.posts[p.ID])
		next[p.ID] = &merged
		order = append(order, p.ID)
	}

	// посты, пришедшие событиями во время перезагрузки, сервер мог еще не увидеть
	var kept []string
	for _, id := range s.feed {
		if _, ok := s.arrived[id]; !ok {
			continue
		}
		if _, ok := next[id]; ok {
			continue
		}
		if p, ok := s.posts[id]; ok {
			next[id] = p
			kept = append(kept, id)
		}
	}

	s.rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	feed := append(kept, order...)

	recent := make([]string, 0, len(feed))
	recent = append(recent, kept...)
	for _, p := range posts {
		if _, ok := next[p.ID]; ok && !contains(recent, p.ID) {
			recent = append(recent, p.ID)
		}
	}

	s.posts = next
	s.feed = feed
	s.recent = recent
	s.sortRecent()

	s.log.Debug("posts reloaded", zap.Int("count", len(s.posts)), zap.Int("kept_live", len(kept)))
	s.publish(Change{Kind: ChangeReloaded})
	return nil
}

// ApplyRemoteEvent применяет одно событие канала. Неизвестные виды событий
// игнорируются. Возвращает true, если состояние изменилось.
func (s *Store) ApplyRemoteEvent(ev Event) bool {
	switch ev.Kind {
	case PostCreated:
		if ev.Post == nil {
			return false
		}
		return s.InsertPost(*ev.Post)
	case PostUpdated:
		if ev.Patch == nil {
			return false
		}
		return s.SyncPostUpdate(ev.PostID, *ev.Patch)
	case PostDeleted:
		return s.RemovePost(ev.PostID)
	case CommentCreated:
		if ev.Comment == nil {
			return false
		}
		return s.AttachComment(*ev.Comment)
	case CommentDeleted:
		if ev.Comment == nil {
			return false
		}
		return s.RemoveComment(ev.Comment.PostID, ev.Comment.ID)
	case PostLiked:
		return s.ReplaceLikes(ev.PostID, ev.Likes)
	}
	s.log.Debug("ignoring unknown event", zap.String("kind", string(ev.Kind)))
	return false
}

// InsertPost добавляет пост в начало обоих представлений. Повторная вставка
// поста с тем же id ничего не делает.
func (s *Store) InsertPost(p models.Post) bool {
	if p.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[p.ID]; exists {
		return false
	}
	stored := p.Clone()
	if stored.Likes == nil {
		stored.Likes = models.RefList{}
	}
	s.posts[p.ID] = &stored
	s.feed = append([]string{p.ID}, s.feed...)
	s.recent = append([]string{p.ID}, s.recent...)
	s.sortRecent()

	if s.reloading > 0 {
		s.arrived[p.ID] = struct{}{}
	}
	delete(s.removed, p.ID)

	s.publish(Change{Kind: ChangeInserted, PostID: p.ID})
	return true
}

// RemovePost удаляет пост из обоих представлений
func (s *Store) RemovePost(postID string) bool {
	if postID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reloading > 0 {
		s.removed[postID] = struct{}{}
	}
	delete(s.arrived, postID)

	if _, exists := s.posts[postID]; !exists {
		return false
	}
	delete(s.posts, postID)
	s.feed = without(s.feed, postID)
	s.recent = without(s.recent, postID)

	s.publish(Change{Kind: ChangeRemoved, PostID: postID})
	return true
}

// SyncPostUpdate сливает переданные поля в пост. Порядок представлений не
// меняется. Если поста нет, ничего не происходит.
func (s *Store) SyncPostUpdate(postID string, patch models.PostPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok || patch.Empty() {
		return false
	}
	patch.ApplyTo(p)

	s.publish(Change{Kind: ChangeUpdated, PostID: postID})
	return true
}

// AttachComment прикрепляет комментарий к посту c.PostID. Комментарий с уже
// известным id игнорируется. Счетчик увеличивается на 1, а если его не было,
// становится равен длине нового списка.
func (s *Store) AttachComment(c models.Comment) bool {
	if c.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[c.PostID]
	if !ok {
		return false
	}
	for _, existing := range p.Comments {
		if existing.ID == c.ID {
			return false
		}
	}
	p.Comments = append(p.Comments, c.Clone())
	if p.CommentsCount != nil {
		p.CommentsCount = models.IntPtr(*p.CommentsCount + 1)
	} else {
		p.CommentsCount = models.IntPtr(len(p.Comments))
	}

	s.publish(Change{Kind: ChangeComments, PostID: p.ID})
	return true
}

// RemoveComment удаляет комментарий и уменьшает счетчик (не ниже нуля).
// Если комментария в списке нет, ничего не меняется. Пустой postID -
// комментарий ищется во всех постах.
func (s *Store) RemoveComment(postID, commentID string) bool {
	if commentID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var p *models.Post
	idx := -1
	if postID != "" {
		if candidate, ok := s.posts[postID]; ok {
			p, idx = candidate, commentIndex(candidate.Comments, commentID)
		}
	} else {
		for _, candidate := range s.posts {
			if i := commentIndex(candidate.Comments, commentID); i >= 0 {
				p, idx = candidate, i
				break
			}
		}
	}
	if p == nil || idx < 0 {
		return false
	}

	p.Comments = append(p.Comments[:idx:idx], p.Comments[idx+1:]...)
	if p.CommentsCount != nil {
		p.CommentsCount = models.IntPtr(max(0, *p.CommentsCount-1))
	} else {
		p.CommentsCount = models.IntPtr(len(p.Comments))
	}

	s.publish(Change{Kind: ChangeComments, PostID: p.ID})
	return true
}

// ReplaceLikes заменяет список лайкнувших и пересчитывает счетчик как его
// длину. nil оставляет текущий список.
func (s *Store) ReplaceLikes(postID string, likes []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return false
	}
	if likes != nil {
		p.Likes = append(models.RefList{}, likes...)
	}
	p.LikesCount = models.IntPtr(len(p.Likes))

	s.publish(Change{Kind: ChangeUpdated, PostID: postID})
	return true
}

// Feed возвращает посты в перемешанном порядке ленты
func (s *Store) Feed() []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(s.feed)
}

// Recent возвращает посты от новых к старым
func (s *Store) Recent() []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(s.recent)
}

// Post возвращает копию поста по id
func (s *Store) Post(id string) (models.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return models.Post{}, false
	}
	return p.Clone(), true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// Loading сообщает, идет ли перезагрузка
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reloading > 0
}

// IsSaved сообщает, был ли пост сохранен на момент создания хранилища
func (s *Store) IsSaved(postID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.saved[postID]
	return ok
}

func (s *Store) snapshot(ids []string) []models.Post {
	out := make([]models.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.posts[id]; ok {
			out = append(out, p.Clone())
		}
	}
	return out
}

// sortRecent - устойчивая сортировка: при равном createdAt сохраняется
// текущий порядок (порядок сервера или порядок вставки)
func (s *Store) sortRecent() {
	sort.SliceStable(s.recent, func(i, j int) bool {
		return s.posts[s.recent[i]].CreatedAt.After(s.posts[s.recent[j]].CreatedAt)
	})
}

func commentIndex(comments []models.Comment, id string) int {
	for i, c := range comments {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
