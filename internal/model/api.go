package model

// CreateRedirectRequest — тело запроса POST /api/redirects.
type CreateRedirectRequest struct {
	FromSlug string `json:"from_slug"`
	ToSlug   string `json:"to_slug"`
	Code     int    `json:"code,omitempty"`
}

// ResolveRequest — тело запроса POST /api/urls/resolve.
type ResolveRequest struct {
	Slug string `json:"slug"`
}

// ResolveResponse — ответ API с итоговой записью.
type ResolveResponse struct {
	Slug   string            `json:"slug"`
	Status Status            `json:"status"`
	Type   Type              `json:"type"`
	Meta   map[string]string `json:"meta,omitempty"`
}
