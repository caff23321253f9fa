package router

import (
	"github.com/Totarae/URLManager/internal/handlers"
	"github.com/Totarae/URLManager/internal/middleware"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// NewRouter создаёт и настраивает маршрутизатор
func NewRouter(handler *handlers.Handler, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.LoggingMiddleware(logger)) // Подключаем логирование
	r.Use(middleware.GzipMiddleware)            // Gzip-сжатие

	r.Get("/ping", handler.Ping)
	r.Get("/sitemap.xml", handler.SitemapXML)

	r.Route("/api", func(api chi.Router) {
		api.Post("/redirects", handler.CreateRedirect)
		api.Post("/urls/resolve", handler.ResolveFull)
		api.Get("/internal/stats", handler.Stats)
	})

	// Всё остальное — публичное разрешение slug, включая вложенные пути
	// вида products/red-shoes.
	r.Get("/*", handler.ResolveSlug)

	return r
}
