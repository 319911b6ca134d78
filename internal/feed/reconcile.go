package feed

import "github.com/ButyrinIA/casefeed/internal/models"

// Reconcile сливает пост из ответа сервера с локально хранимой версией.
//
// Приоритет счетчиков:
//   - лайки: likesCount сервера, если > 0; иначе длина серверного списка likes,
//     если > 0; иначе локальное значение; иначе 0.
//   - комментарии: commentsCount сервера, если > 0; иначе длина встроенного
//     списка комментариев, если > 0; иначе максимум из локального счетчика и
//     длины локального списка; иначе 0.
//
// Если счетчик лайков взят локально, вместе с ним сохраняется и локальный
// список likes. Список комментариев заменяется, только если сервер прислал
// непустой список.
// Остальные поля берутся с сервера.
//
// Ноль от сервера трактуется как "нет данных". Это приближение: сервер
// может отставать от событий, пришедших пока перезагрузка была в пути, но
// настоящее обнуление счетчика так не увидеть до следующей перезагрузки.
func Reconcile(server models.Post, local *models.Post) models.Post {
	out := server.Clone()

	likes := 0
	switch {
	case server.LikesCount != nil && *server.LikesCount > 0:
		likes = *server.LikesCount
	case len(server.Likes) > 0:
		likes = len(server.Likes)
	case local != nil:
		likes = local.LikeTotal()
		out.Likes = local.Clone().Likes
	}
	out.LikesCount = models.IntPtr(likes)

	comments := 0
	switch {
	case server.CommentsCount != nil && *server.CommentsCount > 0:
		comments = *server.CommentsCount
	case len(server.Comments) > 0:
		comments = len(server.Comments)
	case local != nil:
		comments = max(local.CommentTotal(), len(local.Comments))
	}
	out.CommentsCount = models.IntPtr(comments)

	if len(server.Comments) == 0 {
		out.Comments = nil
		if local != nil && local.Comments != nil {
			out.Comments = local.Clone().Comments
		}
	}
	if out.Likes == nil {
		out.Likes = models.RefList{}
	}
	return out
}
