package model

import "time"

// Status определяет состояние записи URL.
type Status string

const (
	// StatusActive — запись ведёт на актуальный контент.
	StatusActive Status = "active"
	// StatusRedirect — запись перенаправляет на другой slug.
	StatusRedirect Status = "redirect"
	// StatusInactive — запись существует, но контент скрыт (404 для читателя).
	StatusInactive Status = "inactive"
)

// Type определяет вид сущности, которой принадлежит URL.
type Type string

const (
	TypeEntity   Type = "entity"
	TypeCategory Type = "category"
	TypeSeller   Type = "seller"
	TypeMenu     Type = "menu"
	TypeBrand    Type = "brand"
	TypePage     Type = "page"
	TypeBlog     Type = "blog"
	TypeRedirect Type = "redirect"
)

// Owner — полиморфная ссылка на владельца записи: (тип сущности, id).
// Для редиректов, созданных вручную, используется сентинел-владелец.
type Owner struct {
	Type Type
	ID   int64
}

// SentinelOwner возвращает владельца для записей без реальной сущности
// (редиректы, созданные руками или координатором переименования).
func SentinelOwner() Owner {
	return Owner{Type: TypeRedirect, ID: 0}
}

// IsSentinel сообщает, что запись не принадлежит реальной сущности.
func (o Owner) IsSentinel() bool {
	return o.Type == TypeRedirect && o.ID == 0
}

// URLRecord представляет одну строку таблицы urls.
//
// Инвариант: среди неудалённых записей slug глобально уникален, а у одной
// сущности (Owner) не может быть больше одной записи.
type URLRecord struct {
	ID             uint64            `json:"id"`
	Slug           string            `json:"slug"`
	Owner          Owner             `json:"owner"`
	Type           Type              `json:"type"`
	Status         Status            `json:"status"`
	RedirectTo     string            `json:"redirect_to,omitempty"`
	RedirectCode   int               `json:"redirect_code,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
	Visits         int64             `json:"visits"`
	LastVisitedAt  *time.Time        `json:"last_visited_at,omitempty"`
	LastModifiedAt time.Time         `json:"last_modified_at"`
	Created        time.Time         `json:"created"`
}

// IsRedirect сообщает, что запись является ребром графа редиректов.
func (u *URLRecord) IsRedirect() bool {
	return u.Status == StatusRedirect && u.RedirectTo != ""
}

// FullPath возвращает путь записи с ведущим слэшем.
func (u *URLRecord) FullPath() string {
	if len(u.Slug) > 0 && u.Slug[0] == '/' {
		return u.Slug
	}
	return "/" + u.Slug
}

// SeoMetadata возвращает метаданные записи поверх значений по умолчанию.
func (u *URLRecord) SeoMetadata() map[string]string {
	meta := map[string]string{
		"og_type":      "website",
		"twitter_card": "summary_large_image",
	}
	for k, v := range u.Meta {
		meta[k] = v
	}
	return meta
}

// ShouldIndex сообщает, попадает ли запись в sitemap: только активные.
func (u *URLRecord) ShouldIndex() bool {
	return u.Status == StatusActive
}

// Clone возвращает глубокую копию записи. Хранилища отдают и принимают
// копии, чтобы вызывающий код не менял их внутреннее состояние.
func (u *URLRecord) Clone() *URLRecord {
	c := *u
	if u.Meta != nil {
		c.Meta = make(map[string]string, len(u.Meta))
		for k, v := range u.Meta {
			c.Meta[k] = v
		}
	}
	if u.LastVisitedAt != nil {
		t := *u.LastVisitedAt
		c.LastVisitedAt = &t
	}
	return &c
}
