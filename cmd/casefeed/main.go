package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ButyrinIA/casefeed/internal/commenttree"
	"github.com/ButyrinIA/casefeed/internal/config"
	"github.com/ButyrinIA/casefeed/internal/feed"
	"github.com/ButyrinIA/casefeed/internal/gateway"
	"github.com/ButyrinIA/casefeed/internal/logger"
	"github.com/ButyrinIA/casefeed/internal/models"
	"github.com/ButyrinIA/casefeed/internal/notifications"
	"github.com/ButyrinIA/casefeed/internal/realtime"
	"github.com/ButyrinIA/casefeed/internal/render"
	"github.com/ButyrinIA/casefeed/internal/server"
	"github.com/ButyrinIA/casefeed/internal/session"
	"github.com/ButyrinIA/casefeed/internal/storage"
	"github.com/ButyrinIA/casefeed/internal/storage/memory"
	"github.com/ButyrinIA/casefeed/internal/storage/postgres"
	"github.com/ButyrinIA/casefeed/internal/storage/redis"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	storageType := flag.String("storage", "", "хранилище сессии: memory, postgres или redis (перекрывает конфиг)")
	token := flag.String("token", "", "сохранить токен в сессии перед запуском")
	serve := flag.Bool("serve", false, "запустить локальную HTTP-оболочку")
	category := flag.String("category", "", "фильтр по категории для вывода ленты")
	query := flag.String("q", "", "строка поиска для вывода ленты")
	commentsOf := flag.String("comments", "", "вывести комментарии постов (id через запятую)")
	allComments := flag.Bool("all-comments", false, "с -comments: раскрыть все комментарии и ответы")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Не удалось загрузить конфигурацию: %v", err)
	}
	if *storageType != "" {
		cfg.Storage.Type = *storageType
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Неверный тип хранилища: %v", err)
		}
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Не удалось создать логгер: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to open session storage", zap.Error(err))
	}
	defer store.Close()

	sess := session.New(store)
	if *token != "" {
		if err := login(ctx, sess, *token); err != nil {
			zl.Fatal("failed to save token", zap.Error(err))
		}
	}

	client := gateway.New(gateway.Options{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.Timeout,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		Logger:            zl,
	}, sess)

	saved, err := sess.SavedPosts(ctx)
	if err != nil {
		zl.Warn("failed to read saved posts", zap.Error(err))
	}
	posts := feed.NewStore(client, feed.WithLogger(zl), feed.WithSavedPosts(saved))

	channel := realtime.NewManager(realtime.Options{
		URL:              cfg.Realtime.URL,
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		Logger:           zl,
	}, sess, posts)
	defer channel.Disconnect()

	if _, err := channel.Get(ctx); err != nil {
		zl.Warn("realtime channel unavailable, live updates disabled", zap.Error(err))
	}
	if err := posts.Reload(ctx); err != nil {
		zl.Error("initial reload failed", zap.Error(err))
	}

	if ids := splitList(*commentsOf); len(ids) > 0 && !*serve {
		loader := gateway.NewCommentLoader(client, 10*time.Millisecond)
		printComments(ctx, loader, ids, *allComments, zl)
		return
	}
	if !*serve {
		printFeed(posts, feed.FilterOptions{Categories: splitList(*category), Query: *query})
		return
	}

	srv := server.New(cfg.Server.Port, server.Deps{
		Store:    posts,
		API:      client,
		Comments: gateway.NewCommentLoader(client, 10*time.Millisecond),
		Session:  sess,
		Channel:  channel,
		Inbox:    notifications.NewInbox(client, zl),
		Logger:   zl,
	})
	zl.Info("Запуск сервера", zap.String("port", cfg.Server.Port))
	if err := srv.Run(ctx); err != nil {
		zl.Fatal("Не удалось запустить сервер", zap.Error(err))
	}
}

func openStorage(ctx context.Context, cfg *config.Config, zl *zap.Logger) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case "postgres":
		zl.Info("Инициализация хранилища PostgreSQL")
		return postgres.New(ctx, cfg.Storage.Postgres.DSN, "casefeed")
	case "redis":
		zl.Info("Инициализация хранилища Redis")
		return redis.New(ctx, redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Prefix:   cfg.Storage.Redis.Prefix,
		})
	case "memory":
		zl.Info("Инициализация хранилища Memory")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
}

// login сохраняет токен; запись пользователя строится из claims токена
func login(ctx context.Context, sess *session.Session, token string) error {
	claims, err := session.ParseClaims(token)
	if err != nil {
		return err
	}
	if claims.Expired(time.Now()) {
		return fmt.Errorf("token expired at %s", claims.ExpiresAt.Format(time.RFC3339))
	}
	user, err := sess.CurrentUser(ctx)
	if err != nil || user.ID != claims.UserID {
		user = models.User{ID: claims.UserID}
	}
	return sess.Login(ctx, token, user)
}

func printFeed(posts *feed.Store, opts feed.FilterOptions) {
	now := time.Now()
	list := feed.Filter(posts.Recent(), opts)
	if len(list) == 0 {
		fmt.Println("No posts")
		return
	}
	for _, p := range list {
		saved := ""
		if posts.IsSaved(p.ID) {
			saved = " [saved]"
		}
		fmt.Printf("%s  %s%s\n", p.ID, p.Title, saved)
		fmt.Printf("    %s · %s · %d likes · %d comments\n",
			strings.Join(p.Categories, ", "), render.TimeAgo(p.CreatedAt, now), p.LikeTotal(), p.CommentTotal())
	}
}

// printComments загружает комментарии постов одной пачкой и выводит
// дерево каждого поста
func printComments(ctx context.Context, loader *gateway.CommentLoader, ids []string, all bool, zl *zap.Logger) {
	byPost, errs := loader.LoadMany(ctx, ids)
	now := time.Now()
	for _, id := range ids {
		fmt.Printf("== %s\n", id)
		if err, ok := errs[id]; ok {
			zl.Warn("failed to load comments", zap.String("post_id", id), zap.Error(err))
			continue
		}
		view := commenttree.NewView(byPost[id])
		if all {
			view.ShowAll()
			for _, n := range commenttree.Build(byPost[id]) {
				expandAll(view, n)
			}
		}
		if err := view.Render(os.Stdout, now); err != nil {
			zl.Warn("failed to print comments", zap.Error(err))
		}
	}
}

func expandAll(view *commenttree.View, n *commenttree.Node) {
	if len(n.Replies) > 1 {
		view.ToggleReplies(n.Comment.ID)
	}
	for _, r := range n.Replies {
		expandAll(view, r)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
