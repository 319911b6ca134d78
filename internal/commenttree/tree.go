package commenttree

import (
	"sync"

	"github.com/ButyrinIA/casefeed/internal/models"
)

const (
	// MaxDepth - глубина вложенности при показе; комментарий верхнего
	// уровня имеет глубину 1, у комментария на глубине MaxDepth ответы не
	// раскрываются
	MaxDepth = 3
	// PageSize - сколько комментариев верхнего уровня показывается сразу
	// и добавляется по "view more"
	PageSize = 2
)

// Node - комментарий в дереве показа
type Node struct {
	Comment models.Comment `json:"comment"`
	Depth   int            `json:"depth"`
	Replies []*Node        `json:"replies,omitempty"`
	// HiddenReplies - ответы, скрытые свернутым списком
	HiddenReplies int  `json:"hiddenReplies,omitempty"`
	Expanded      bool `json:"expanded,omitempty"`
}

// Build строит полностью раскрытое дерево с ограничением глубины
func Build(comments []models.Comment) []*Node {
	return build(comments, -1, func(string) bool { return true })
}

func build(comments []models.Comment, limit int, expanded func(id string) bool) []*Node {
	children := make(map[string][]models.Comment)
	var roots []models.Comment
	for _, c := range comments {
		if !c.IsReply() {
			roots = append(roots, c)
			continue
		}
		children[*c.ParentID] = append(children[*c.ParentID], c)
	}
	if limit >= 0 && limit < len(roots) {
		roots = roots[:limit]
	}

	var grow func(c models.Comment, depth int) *Node
	grow = func(c models.Comment, depth int) *Node {
		n := &Node{Comment: c, Depth: depth}
		if depth >= MaxDepth {
			return n
		}
		replies := children[c.ID]
		n.Expanded = expanded(c.ID)
		if !n.Expanded && len(replies) > 1 {
			n.HiddenReplies = len(replies) - 1
			replies = replies[:1]
		}
		for _, r := range replies {
			n.Replies = append(n.Replies, grow(r, depth+1))
		}
		return n
	}

	out := make([]*Node, 0, len(roots))
	for _, r := range roots {
		out = append(out, grow(r, 1))
	}
	return out
}

// View - состояние показа комментариев одного поста: сколько комментариев
// верхнего уровня открыто и какие списки ответов раскрыты
type View struct {
	mu       sync.Mutex
	comments []models.Comment
	visible  int
	expanded map[string]bool
}

func NewView(comments []models.Comment) *View {
	v := &View{visible: PageSize, expanded: make(map[string]bool)}
	v.SetComments(comments)
	return v
}

// SetComments заменяет список, сохраняя состояние раскрытия
func (v *View) SetComments(comments []models.Comment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.comments = make([]models.Comment, len(comments))
	for i, c := range comments {
		v.comments[i] = c.Clone()
	}
}

// Empty - комментариев нет, показывается "No comments"
func (v *View) Empty() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.comments) == 0
}

// Tree возвращает видимую часть дерева
func (v *View) Tree() []*Node {
	v.mu.Lock()
	defer v.mu.Unlock()
	return build(v.comments, v.visible, func(id string) bool { return v.expanded[id] })
}

func (v *View) roots() int {
	n := 0
	for _, c := range v.comments {
		if !c.IsReply() {
			n++
		}
	}
	return n
}

// Remaining - сколько комментариев верхнего уровня еще скрыто
func (v *View) Remaining() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return max(0, v.roots()-v.visible)
}

// CanShowLess - открыто больше начальной страницы
func (v *View) CanShowLess() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible > PageSize
}

func (v *View) ViewMore() {
	v.mu.Lock()
	v.visible += PageSize
	v.mu.Unlock()
}

func (v *View) ShowAll() {
	v.mu.Lock()
	v.visible = max(PageSize, v.roots())
	v.mu.Unlock()
}

func (v *View) ShowLess() {
	v.mu.Lock()
	v.visible = PageSize
	v.mu.Unlock()
}

// ToggleReplies раскрывает или сворачивает ответы комментария
func (v *View) ToggleReplies(commentID string) {
	v.mu.Lock()
	v.expanded[commentID] = !v.expanded[commentID]
	v.mu.Unlock()
}
