package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=10" validate:"gte=1,lte=250"`
}

type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// Paginate trims the look-ahead row and builds the page info for items
// ordered newest first.
func Paginate[T any](items []*T, limit int, cursorOf func(*T) (string, time.Time)) ([]*T, PageInfo) {
	if limit <= 0 {
		limit = 10
	}
	if len(items) <= limit {
		return items, PageInfo{}
	}

	items = items[:limit]
	id, createdAt := cursorOf(items[len(items)-1])
	token, err := EncodeCursor(Cursor{ID: id, CreatedAt: createdAt.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return items, PageInfo{HasMore: true}
	}
	return items, PageInfo{NextPageToken: token, HasMore: true}
}
