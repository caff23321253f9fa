package model

import "time"

// VisitEvent — событие "slug разрешён в активную запись". Публикуется
// резолвером и обрабатывается трекером посещений асинхронно; путь
// разрешения от него никогда не зависит.
type VisitEvent struct {
	Slug      string
	Owner     Owner
	IP        string
	UserAgent string
	Referer   string
	VisitedAt time.Time
}

// VisitRecord представляет одну строку таблицы url_visits.
type VisitRecord struct {
	ID        string    `json:"id"`
	URLID     uint64    `json:"url_id"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Referer   string    `json:"referer,omitempty"`
	VisitedAt time.Time `json:"visited_at"`
}
