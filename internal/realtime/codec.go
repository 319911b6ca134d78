package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ButyrinIA/casefeed/internal/feed"
	"github.com/ButyrinIA/casefeed/internal/models"
)

// envelope - кадр канала: имя события и его данные
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode упаковывает исходящее событие в кадр
func Encode(kind feed.EventKind, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return json.Marshal(envelope{Event: string(kind), Data: data})
}

// Decode разбирает входящий кадр. Для неизвестного события возвращается
// Event только с Kind, без ошибки: решать, что с ним делать, хранилищу.
func Decode(frame []byte) (feed.Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return feed.Event{}, fmt.Errorf("invalid frame: %w", err)
	}
	if env.Event == "" {
		return feed.Event{}, errors.New("frame without event name")
	}

	ev := feed.Event{Kind: feed.EventKind(env.Event)}
	if !ev.Kind.Known() {
		return ev, nil
	}

	var err error
	switch ev.Kind {
	case feed.PostCreated:
		var p models.Post
		if err = json.Unmarshal(env.Data, &p); err == nil {
			ev.Post, ev.PostID = &p, p.ID
		}
	case feed.PostUpdated:
		ev.PostID, ev.Patch, err = decodePatch(env.Data)
	case feed.PostDeleted:
		var id models.Ref
		if err = json.Unmarshal(env.Data, &id); err == nil {
			ev.PostID = string(id)
		}
	case feed.CommentCreated, feed.CommentDeleted:
		var c models.Comment
		if err = json.Unmarshal(env.Data, &c); err == nil {
			ev.Comment, ev.PostID = &c, c.PostID
		}
	case feed.PostLiked:
		var aux struct {
			ID     string         `json:"_id"`
			PostID string         `json:"postId"`
			Likes  models.RefList `json:"likes"`
		}
		if err = json.Unmarshal(env.Data, &aux); err == nil {
			ev.PostID = aux.ID
			if ev.PostID == "" {
				ev.PostID = aux.PostID
			}
			if aux.Likes != nil {
				ev.Likes = []string(aux.Likes)
			}
		}
	}
	if err != nil {
		return feed.Event{}, fmt.Errorf("invalid %s payload: %w", ev.Kind, err)
	}
	return ev, nil
}

func decodePatch(data json.RawMessage) (string, *models.PostPatch, error) {
	var patch models.PostPatch
	if err := json.Unmarshal(data, &patch); err != nil {
		return "", nil, err
	}
	var aux struct {
		ID           string `json:"_id"`
		CommentCount *int   `json:"commentCount"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return "", nil, err
	}
	if patch.CommentsCount == nil && aux.CommentCount != nil {
		patch.CommentsCount = aux.CommentCount
	}
	return aux.ID, &patch, nil
}
