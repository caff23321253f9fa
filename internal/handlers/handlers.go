package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/Totarae/URLManager/internal/auth"
	"github.com/Totarae/URLManager/internal/model"
	"github.com/Totarae/URLManager/internal/service"
	"github.com/Totarae/URLManager/internal/sitemap"
	"github.com/Totarae/URLManager/internal/storage"
	"go.uber.org/zap"
)

// Handler — HTTP-фронт движка: публичное разрешение slug, sitemap и
// админский API. Сам по себе тонкий: вся семантика в service.Resolver.
type Handler struct {
	Resolver      *service.Resolver
	Sitemap       *sitemap.Generator
	Auth          *auth.Auth
	Logger        *zap.Logger
	TrustedSubnet string
}

// NewHandler создаёт обработчики поверх резолвера.
func NewHandler(resolver *service.Resolver, sm *sitemap.Generator, authService *auth.Auth, logger *zap.Logger, trustedSubnet string) *Handler {
	return &Handler{
		Resolver:      resolver,
		Sitemap:       sm,
		Auth:          authService,
		Logger:        logger,
		TrustedSubnet: trustedSubnet,
	}
}

// ResolveSlug обслуживает публичные GET-запросы: один шаг разрешения.
// Редирект отдаётся как 30x с Location — следующий хоп придёт новым
// запросом браузера; query string переносится на цель.
func (h *Handler) ResolveSlug(res http.ResponseWriter, req *http.Request) {
	// Первый контакт получает identity-куку; она же пропуск в админский API.
	h.Auth.GetOrSetUserID(res, req)

	slug := strings.Trim(req.URL.Path, "/")
	if slug == "" {
		http.NotFound(res, req)
		return
	}

	visit := &model.VisitEvent{
		IP:        clientIP(req),
		UserAgent: req.UserAgent(),
		Referer:   req.Referer(),
	}

	result, err := h.Resolver.Resolve(req.Context(), slug, visit)
	if err != nil {
		h.Logger.Error("Ошибка разрешения slug", zap.String("slug", slug), zap.Error(err))
		http.Error(res, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	switch result.Outcome {
	case model.OutcomeRedirect:
		location := "/" + strings.TrimPrefix(result.RedirectTo, "/")
		if q := req.URL.RawQuery; q != "" {
			location += "?" + q
		}
		res.Header().Set("Location", location)
		res.WriteHeader(result.RedirectCode)
	case model.OutcomeActive:
		writeJSON(res, http.StatusOK, model.ResolveResponse{
			Slug:   result.Record.Slug,
			Status: result.Record.Status,
			Type:   result.Record.Type,
			Meta:   result.Record.SeoMetadata(),
		})
	default:
		http.NotFound(res, req)
	}
}

// ResolveFull — POST /api/urls/resolve: полное разрешение цепочки для
// sitemap-инструментов и админки.
func (h *Handler) ResolveFull(res http.ResponseWriter, req *http.Request) {
	var body model.ResolveRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Slug == "" {
		http.Error(res, "Bad Request", http.StatusBadRequest)
		return
	}

	rec, err := h.Resolver.ResolveFully(req.Context(), body.Slug)
	switch {
	case err == nil:
		writeJSON(res, http.StatusOK, model.ResolveResponse{
			Slug:   rec.Slug,
			Status: rec.Status,
			Type:   rec.Type,
			Meta:   rec.SeoMetadata(),
		})
	case errors.Is(err, storage.ErrNotFound):
		http.NotFound(res, req)
	case errors.Is(err, service.ErrDepthExceeded):
		// Отдельный код, чтобы мониторинг отличал вероятный цикл от 404.
		http.Error(res, "Loop Detected", http.StatusLoopDetected)
	default:
		h.Logger.Error("Ошибка полного разрешения", zap.String("slug", body.Slug), zap.Error(err))
		http.Error(res, "Internal Server Error", http.StatusInternalServerError)
	}
}

// CreateRedirect — POST /api/redirects: ручное создание редиректа.
func (h *Handler) CreateRedirect(res http.ResponseWriter, req *http.Request) {
	if _, ok := h.Auth.ValidateUserID(req); !ok {
		http.Error(res, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body model.CreateRedirectRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(res, "Bad Request", http.StatusBadRequest)
		return
	}
	if body.FromSlug == "" || body.ToSlug == "" {
		http.Error(res, "from_slug and to_slug are required", http.StatusBadRequest)
		return
	}

	rec, err := h.Resolver.CreateRedirect(req.Context(), body.FromSlug, body.ToSlug, body.Code)
	if err != nil {
		var circular *service.CircularRedirectError
		switch {
		case errors.As(err, &circular):
			writeJSON(res, http.StatusConflict, map[string]any{
				"error": circular.Error(),
				"chain": circular.Chain,
			})
		case errors.Is(err, storage.ErrDuplicateSlug):
			http.Error(res, "Conflict", http.StatusConflict)
		default:
			h.Logger.Error("Ошибка создания редиректа", zap.Error(err))
			http.Error(res, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(res, http.StatusCreated, rec)
}

// SitemapXML — GET /sitemap.xml.
func (h *Handler) SitemapXML(res http.ResponseWriter, req *http.Request) {
	body, err := h.Sitemap.Generate(req.Context())
	if err != nil {
		h.Logger.Error("Ошибка генерации sitemap", zap.Error(err))
		http.Error(res, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	res.Header().Set("Content-Type", "application/xml; charset=utf-8")
	res.WriteHeader(http.StatusOK)
	res.Write(body)
}

// Stats — GET /api/internal/stats, доступен только из доверенной подсети.
func (h *Handler) Stats(res http.ResponseWriter, req *http.Request) {
	if !h.trusted(req) {
		http.Error(res, "Forbidden", http.StatusForbidden)
		return
	}

	st, err := h.Resolver.Stats(req.Context())
	if err != nil {
		http.Error(res, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(res, http.StatusOK, st)
}

// Ping — GET /ping: доступность хранилища.
func (h *Handler) Ping(res http.ResponseWriter, req *http.Request) {
	if err := h.Resolver.Ping(req.Context()); err != nil {
		http.Error(res, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	res.WriteHeader(http.StatusOK)
}

// trusted проверяет X-Real-IP против доверенной подсети.
func (h *Handler) trusted(req *http.Request) bool {
	if h.TrustedSubnet == "" {
		return false
	}

	_, subnet, err := net.ParseCIDR(h.TrustedSubnet)
	if err != nil {
		h.Logger.Warn("Некорректная доверенная подсеть", zap.String("subnet", h.TrustedSubnet))
		return false
	}

	ip := net.ParseIP(req.Header.Get("X-Real-IP"))
	return ip != nil && subnet.Contains(ip)
}

func clientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func writeJSON(res http.ResponseWriter, status int, v any) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(status)
	json.NewEncoder(res).Encode(v)
}
