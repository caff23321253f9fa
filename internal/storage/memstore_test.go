package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Totarae/URLManager/internal/model"
	"github.com/Totarae/URLManager/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(slug string, owner model.Owner) *model.URLRecord {
	return &model.URLRecord{
		Slug:           slug,
		Owner:          owner,
		Type:           owner.Type,
		Status:         model.StatusActive,
		LastModifiedAt: time.Now(),
	}
}

func TestMemStore_SaveAndGet(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()
	owner := model.Owner{Type: model.TypePage, ID: 1}

	rec := newRecord("pages/about", owner)
	require.NoError(t, store.Save(ctx, rec))
	assert.NotZero(t, rec.ID)

	got, err := store.Get(ctx, "pages/about")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, owner, got.Owner)

	byOwner, err := store.GetByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byOwner.ID)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// Get отдаёт копию: мутация результата не трогает хранилище.
func TestMemStore_GetReturnsClone(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newRecord("a", model.Owner{Type: model.TypePage, ID: 1})))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	got.Status = model.StatusInactive

	again, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, again.Status)
}

func TestMemStore_DuplicateSlug(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newRecord("dup", model.Owner{Type: model.TypePage, ID: 1})))
	err := store.Save(ctx, newRecord("dup", model.Owner{Type: model.TypePage, ID: 2}))
	assert.ErrorIs(t, err, storage.ErrDuplicateSlug)
}

// У одного владельца не может быть двух записей.
func TestMemStore_DuplicateOwner(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()
	owner := model.Owner{Type: model.TypePage, ID: 1}

	require.NoError(t, store.Save(ctx, newRecord("one", owner)))
	err := store.Save(ctx, newRecord("two", owner))
	assert.ErrorIs(t, err, storage.ErrDuplicateSlug)
}

func TestMemStore_Update(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()

	rec := newRecord("before", model.Owner{Type: model.TypePage, ID: 1})
	require.NoError(t, store.Save(ctx, rec))

	rec.Slug = "after"
	rec.Status = model.StatusInactive
	require.NoError(t, store.Update(ctx, rec))

	_, err := store.Get(ctx, "before")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := store.Get(ctx, "after")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, got.Status)
}

// Конвертация живой записи в редирект сохраняет владельца и ID.
func TestMemStore_UpsertRedirectConvertsInPlace(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()
	owner := model.Owner{Type: model.TypeEntity, ID: 7}

	rec := newRecord("live", owner)
	require.NoError(t, store.Save(ctx, rec))

	converted, err := store.UpsertRedirect(ctx, "live", "elsewhere", 301)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, converted.ID)
	assert.Equal(t, owner, converted.Owner)
	assert.Equal(t, model.StatusRedirect, converted.Status)
	assert.Equal(t, "elsewhere", converted.RedirectTo)

	// Владельческий индекс продолжает указывать на запись.
	byOwner, err := store.GetByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byOwner.ID)
}

// Несуществующий slug получает запись с сентинел-владельцем.
func TestMemStore_UpsertRedirectCreatesSentinel(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()

	rec, err := store.UpsertRedirect(ctx, "gone", "here", 302)
	require.NoError(t, err)
	assert.True(t, rec.Owner.IsSentinel())
	assert.Equal(t, model.TypeRedirect, rec.Type)
	assert.Equal(t, 302, rec.RedirectCode)
}

func TestMemStore_Rename(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()
	owner := model.Owner{Type: model.TypeEntity, ID: 3}

	require.NoError(t, store.Save(ctx, newRecord("old", owner)))
	require.NoError(t, store.Rename(ctx, owner, "old", "new", 301))

	moved, err := store.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, owner, moved.Owner)
	assert.Equal(t, model.StatusActive, moved.Status)

	redirect, err := store.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRedirect, redirect.Status)
	assert.Equal(t, "new", redirect.RedirectTo)
	assert.True(t, redirect.Owner.IsSentinel())
}

func TestMemStore_RenameErrors(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()
	owner := model.Owner{Type: model.TypeEntity, ID: 3}

	require.NoError(t, store.Save(ctx, newRecord("mine", owner)))
	require.NoError(t, store.Save(ctx, newRecord("taken", model.Owner{Type: model.TypePage, ID: 4})))

	// Занятый целевой slug: ни одна из двух мутаций не применяется.
	err := store.Rename(ctx, owner, "mine", "taken", 301)
	assert.ErrorIs(t, err, storage.ErrDuplicateSlug)

	got, err := store.Get(ctx, "mine")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)

	// Несовпадение старого slug с фактическим.
	err = store.Rename(ctx, owner, "stale", "fresh", 301)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Неизвестный владелец.
	err = store.Rename(ctx, model.Owner{Type: model.TypeBlog, ID: 99}, "mine", "fresh", 301)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemStore_DeleteByOwner(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()
	owner := model.Owner{Type: model.TypeEntity, ID: 5}

	require.NoError(t, store.Save(ctx, newRecord("doomed", owner)))
	require.NoError(t, store.DeleteByOwner(ctx, owner))

	_, err := store.Get(ctx, "doomed")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.DeleteByOwner(ctx, owner)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemStore_RecordVisit(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()

	rec := newRecord("popular", model.Owner{Type: model.TypePage, ID: 6})
	require.NoError(t, store.Save(ctx, rec))

	now := time.Now()
	require.NoError(t, store.RecordVisit(ctx, "popular", &model.VisitRecord{
		ID:        "v1",
		IP:        "10.0.0.1",
		VisitedAt: now,
	}))
	require.NoError(t, store.RecordVisit(ctx, "popular", &model.VisitRecord{
		ID:        "v2",
		IP:        "10.0.0.2",
		VisitedAt: now.Add(time.Second),
	}))

	got, err := store.Get(ctx, "popular")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Visits)
	require.NotNil(t, got.LastVisitedAt)

	visitLog := store.VisitLog()
	require.Len(t, visitLog, 2)
	assert.Equal(t, rec.ID, visitLog[0].URLID)
	assert.Equal(t, "10.0.0.2", visitLog[1].IP)

	err = store.RecordVisit(ctx, "missing", &model.VisitRecord{ID: "v3", VisitedAt: now})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemStore_ListActive(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newRecord("alive", model.Owner{Type: model.TypePage, ID: 1})))
	hidden := newRecord("hidden", model.Owner{Type: model.TypePage, ID: 2})
	hidden.Status = model.StatusInactive
	require.NoError(t, store.Save(ctx, hidden))
	_, err := store.UpsertRedirect(ctx, "moved", "alive", 301)
	require.NoError(t, err)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alive", active[0].Slug)
}

func TestMemStore_Stats(t *testing.T) {
	store := storage.NewMemStore("")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newRecord("a", model.Owner{Type: model.TypePage, ID: 1})))
	_, err := store.UpsertRedirect(ctx, "b", "a", 301)
	require.NoError(t, err)
	require.NoError(t, store.RecordVisit(ctx, "a", &model.VisitRecord{ID: "v1", VisitedAt: time.Now()}))

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.URLs)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.Redirects)
	assert.Equal(t, int64(1), st.Visits)
}

// Журнал: состояние переживает перезапуск, включая удаления.
func TestMemStore_FileJournal(t *testing.T) {
	file := filepath.Join(t.TempDir(), "urls.journal")
	ctx := context.Background()
	owner := model.Owner{Type: model.TypeEntity, ID: 1}
	gone := model.Owner{Type: model.TypeEntity, ID: 2}

	store := storage.NewMemStore(file)
	require.NoError(t, store.Save(ctx, newRecord("kept", owner)))
	require.NoError(t, store.Save(ctx, newRecord("erased", gone)))
	require.NoError(t, store.Rename(ctx, owner, "kept", "kept-v2", 301))
	require.NoError(t, store.DeleteByOwner(ctx, gone))

	reloaded := storage.NewMemStore(file)

	rec, err := reloaded.Get(ctx, "kept-v2")
	require.NoError(t, err)
	assert.Equal(t, owner, rec.Owner)
	assert.Equal(t, model.StatusActive, rec.Status)

	redirect, err := reloaded.Get(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, "kept-v2", redirect.RedirectTo)

	_, err = reloaded.Get(ctx, "erased")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Счётчик ID продолжает с места остановки: новый slug не пересечётся
	// по ID с проигранными записями.
	fresh := newRecord("fresh", model.Owner{Type: model.TypeEntity, ID: 3})
	require.NoError(t, reloaded.Save(ctx, fresh))
	assert.Greater(t, fresh.ID, rec.ID)
}

func TestMemStore_Ping(t *testing.T) {
	store := storage.NewMemStore("")
	assert.NoError(t, store.Ping(context.Background()))
}
