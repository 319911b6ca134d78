package feed

import (
	"strings"

	"github.com/ButyrinIA/casefeed/internal/models"
)

// FilterOptions - фильтр главной страницы. Пустые поля не ограничивают выборку.
type FilterOptions struct {
	Categories []string
	Query      string
}

// Filter оставляет посты, у которых есть хотя бы одна из выбранных категорий
// и в заголовке, тексте или имени автора встречается строка поиска
// (без учета регистра). Порядок входного среза сохраняется.
func Filter(posts []models.Post, opts FilterOptions) []models.Post {
	query := strings.ToLower(strings.TrimSpace(opts.Query))
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if len(opts.Categories) > 0 && !matchesCategory(p, opts.Categories) {
			continue
		}
		if query != "" && !matchesQuery(p, query) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesCategory(p models.Post, categories []string) bool {
	for _, c := range categories {
		if p.Categories.Contains(c) {
			return true
		}
	}
	return false
}

func matchesQuery(p models.Post, query string) bool {
	return strings.Contains(strings.ToLower(p.Title), query) ||
		strings.Contains(strings.ToLower(p.Content), query) ||
		strings.Contains(strings.ToLower(p.User.FullName), query)
}
