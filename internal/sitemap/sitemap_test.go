package sitemap_test

import (
	"context"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/Totarae/URLManager/internal/model"
	"github.com/Totarae/URLManager/internal/sitemap"
	"github.com/Totarae/URLManager/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

type sitemapDoc struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

func saveRecord(t *testing.T, store *storage.MemStore, slug string, typ model.Type, status model.Status, id int64) {
	t.Helper()
	err := store.Save(context.Background(), &model.URLRecord{
		Slug:           slug,
		Owner:          model.Owner{Type: typ, ID: id},
		Type:           typ,
		Status:         status,
		LastModifiedAt: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

// В индекс попадают только активные записи: редиректы и скрытые — нет.
func TestGenerate_OnlyActive(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()

	saveRecord(t, store, "categories/shoes", model.TypeCategory, model.StatusActive, 1)
	saveRecord(t, store, "pages/draft", model.TypePage, model.StatusInactive, 2)
	_, err := store.UpsertRedirect(ctx, "old-shoes", "categories/shoes", 301)
	require.NoError(t, err)

	g := sitemap.NewGenerator(store, zap.NewNop(), "https://example.com")
	body, err := g.Generate(ctx)
	require.NoError(t, err)

	var doc sitemapDoc
	require.NoError(t, xml.Unmarshal(body, &doc))
	require.Len(t, doc.URLs, 1)
	assert.Equal(t, "https://example.com/categories/shoes", doc.URLs[0].Loc)
}

func TestGenerate_PriorityByType(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()

	saveRecord(t, store, "categories/shoes", model.TypeCategory, model.StatusActive, 1)
	saveRecord(t, store, "products/boots", model.TypeEntity, model.StatusActive, 2)
	saveRecord(t, store, "misc", model.Type("landing"), model.StatusActive, 3)

	g := sitemap.NewGenerator(store, zap.NewNop(), "https://example.com")
	body, err := g.Generate(ctx)
	require.NoError(t, err)

	var doc sitemapDoc
	require.NoError(t, xml.Unmarshal(body, &doc))
	require.Len(t, doc.URLs, 3)

	byLoc := make(map[string]sitemapURL, len(doc.URLs))
	for _, u := range doc.URLs {
		byLoc[u.Loc] = u
	}

	assert.Equal(t, "0.9", byLoc["https://example.com/categories/shoes"].Priority)
	assert.Equal(t, "0.8", byLoc["https://example.com/products/boots"].Priority)
	// Тип без явного приоритета получает значение по умолчанию.
	assert.Equal(t, "0.5", byLoc["https://example.com/misc"].Priority)
}

func TestGenerate_Document(t *testing.T) {
	store := storage.NewMemStore("")
	saveRecord(t, store, "blog/post", model.TypeBlog, model.StatusActive, 1)

	g := sitemap.NewGenerator(store, zap.NewNop(), "https://example.com/")
	body, err := g.Generate(context.Background())
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.HasPrefix(text, xml.Header))
	assert.Contains(t, text, `xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"`)
	assert.Contains(t, text, "<changefreq>weekly</changefreq>")
	assert.Contains(t, text, "<lastmod>2026-01-15T12:00:00Z</lastmod>")
	// Хвостовой слэш baseURL не удваивается.
	assert.Contains(t, text, "<loc>https://example.com/blog/post</loc>")
}

func TestGenerate_Empty(t *testing.T) {
	store := storage.NewMemStore("")
	g := sitemap.NewGenerator(store, zap.NewNop(), "https://example.com")

	body, err := g.Generate(context.Background())
	require.NoError(t, err)

	var doc sitemapDoc
	require.NoError(t, xml.Unmarshal(body, &doc))
	assert.Empty(t, doc.URLs)
}
