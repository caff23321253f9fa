package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/Totarae/URLManager/internal/model"
	"github.com/Totarae/URLManager/internal/storage"
	"go.uber.org/zap"
)

const xmlns = "http://www.sitemaps.org/schemas/sitemap/0.9"

// Приоритеты по типу сущности; для прочих действует defaultPriority.
var priorities = map[model.Type]string{
	model.TypeEntity:   "0.8",
	model.TypeCategory: "0.9",
	model.TypeSeller:   "0.7",
	model.TypeMenu:     "0.6",
	model.TypeBrand:    "0.7",
	model.TypePage:     "0.6",
	model.TypeBlog:     "0.6",
}

const (
	defaultPriority   = "0.5"
	defaultChangefreq = "weekly"
)

type urlEntry struct {
	XMLName    xml.Name `xml:"url"`
	Loc        string   `xml:"loc"`
	LastMod    string   `xml:"lastmod,omitempty"`
	ChangeFreq string   `xml:"changefreq"`
	Priority   string   `xml:"priority"`
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	Xmlns   string     `xml:"xmlns,attr"`
	URLs    []urlEntry `xml:"url"`
}

// Generator собирает sitemap.xml из активных записей хранилища.
// Редиректы и неактивные записи в индекс не попадают.
type Generator struct {
	store   storage.Store
	logger  *zap.Logger
	baseURL string
}

// NewGenerator создаёт генератор; baseURL — абсолютный префикс ссылок.
func NewGenerator(store storage.Store, logger *zap.Logger, baseURL string) *Generator {
	return &Generator{
		store:   store,
		logger:  logger,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Generate возвращает готовый XML-документ sitemap.
func (g *Generator) Generate(ctx context.Context) ([]byte, error) {
	records, err := g.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("sitemap: %w", err)
	}

	set := urlSet{Xmlns: xmlns, URLs: make([]urlEntry, 0, len(records))}
	for _, rec := range records {
		if !rec.ShouldIndex() {
			continue
		}

		entry := urlEntry{
			Loc:        g.baseURL + rec.FullPath(),
			ChangeFreq: defaultChangefreq,
			Priority:   priorityFor(rec.Type),
		}
		if !rec.LastModifiedAt.IsZero() {
			entry.LastMod = rec.LastModifiedAt.Format(time.RFC3339)
		}
		set.URLs = append(set.URLs, entry)
	}

	body, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("sitemap: %w", err)
	}

	g.logger.Info("sitemap сгенерирован", zap.Int("urls", len(set.URLs)))
	return append([]byte(xml.Header), body...), nil
}

func priorityFor(t model.Type) string {
	if p, ok := priorities[t]; ok {
		return p
	}
	return defaultPriority
}
