package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Totarae/URLManager/internal/database"
	"github.com/Totarae/URLManager/internal/model"
	"github.com/Totarae/URLManager/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation — код PostgreSQL для нарушения unique-ограничения.
// Так проигравший из двух конкурентных писателей получает видимый отказ.
const uniqueViolation = "23505"

// URLRepository реализует storage.Store поверх PostgreSQL.
type URLRepository struct {
	DB *database.DB
}

var _ storage.Store = (*URLRepository)(nil)

// NewURLRepository создаёт новый экземпляр URLRepository.
func NewURLRepository(db *database.DB) *URLRepository {
	return &URLRepository{DB: db}
}

const recordColumns = `id, slug, urable_type, urable_id, type, status,
	COALESCE(redirect_to, ''), COALESCE(redirect_code, 0), COALESCE(meta, '{}'),
	visits, last_visited_at, last_modified_at, created`

// scanRecord читает одну строку urls в модель.
func scanRecord(row pgx.Row) (*model.URLRecord, error) {
	rec := &model.URLRecord{}
	var rawMeta []byte
	err := row.Scan(
		&rec.ID, &rec.Slug, &rec.Owner.Type, &rec.Owner.ID, &rec.Type, &rec.Status,
		&rec.RedirectTo, &rec.RedirectCode, &rawMeta,
		&rec.Visits, &rec.LastVisitedAt, &rec.LastModifiedAt, &rec.Created,
	)
	if err != nil {
		return nil, err
	}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &rec.Meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
	}
	if len(rec.Meta) == 0 {
		rec.Meta = nil
	}
	return rec, nil
}

func metaJSON(meta map[string]string) ([]byte, error) {
	if meta == nil {
		meta = map[string]string{}
	}
	return json.Marshal(meta)
}

// mapWriteErr переводит ошибки PostgreSQL в ошибки хранилища.
func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrDuplicateSlug
	}
	return err
}

// Get извлекает запись по slug.
func (r *URLRepository) Get(ctx context.Context, slug string) (*model.URLRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM urls WHERE slug = $1`
	rec, err := scanRecord(r.DB.Pool.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return rec, nil
}

// GetByOwner извлекает запись, принадлежащую сущности.
func (r *URLRepository) GetByOwner(ctx context.Context, owner model.Owner) (*model.URLRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM urls WHERE urable_type = $1 AND urable_id = $2`
	rec, err := scanRecord(r.DB.Pool.QueryRow(ctx, query, owner.Type, owner.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return rec, nil
}

// Save вставляет новую запись. Конфликт по slug или владельцу приходит от
// уникальных индексов и возвращается как ErrDuplicateSlug.
func (r *URLRepository) Save(ctx context.Context, rec *model.URLRecord) error {
	meta, err := metaJSON(rec.Meta)
	if err != nil {
		return err
	}

	query := `INSERT INTO urls (slug, urable_type, urable_id, type, status,
	              redirect_to, redirect_code, meta, last_modified_at, created)
	          VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, 0), $8, $9, $10)
	          RETURNING id`

	if rec.Created.IsZero() {
		rec.Created = time.Now()
	}
	err = r.DB.Pool.QueryRow(ctx, query,
		rec.Slug, rec.Owner.Type, rec.Owner.ID, rec.Type, rec.Status,
		rec.RedirectTo, rec.RedirectCode, meta, rec.LastModifiedAt, rec.Created,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("database insert error: %w", mapWriteErr(err))
	}
	return nil
}

// Update перезаписывает поля существующей записи по её ID.
func (r *URLRepository) Update(ctx context.Context, rec *model.URLRecord) error {
	meta, err := metaJSON(rec.Meta)
	if err != nil {
		return err
	}

	query := `UPDATE urls SET slug = $2, type = $3, status = $4,
	              redirect_to = NULLIF($5, ''), redirect_code = NULLIF($6, 0),
	              meta = $7, last_modified_at = $8
	          WHERE id = $1`

	tag, err := r.DB.Pool.Exec(ctx, query,
		rec.ID, rec.Slug, rec.Type, rec.Status,
		rec.RedirectTo, rec.RedirectCode, meta, rec.LastModifiedAt)
	if err != nil {
		return fmt.Errorf("database update error: %w", mapWriteErr(err))
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const upsertRedirectQuery = `
	INSERT INTO urls (slug, urable_type, urable_id, type, status,
	                  redirect_to, redirect_code, last_modified_at, created)
	VALUES ($1, $2, $3, 'redirect', 'redirect', $4, $5, now(), now())
	ON CONFLICT (slug) DO UPDATE SET
	    type = 'redirect',
	    status = 'redirect',
	    redirect_to = EXCLUDED.redirect_to,
	    redirect_code = EXCLUDED.redirect_code,
	    last_modified_at = now()
	RETURNING ` + recordColumns

// UpsertRedirect атомарно ставит редирект на slug from одним запросом:
// существующая запись конвертируется на месте (владелец сохраняется),
// отсутствующая создаётся с сентинел-владельцем.
func (r *URLRepository) UpsertRedirect(ctx context.Context, from, to string, code int) (*model.URLRecord, error) {
	sentinel := model.SentinelOwner()
	rec, err := scanRecord(r.DB.Pool.QueryRow(ctx, upsertRedirectQuery,
		from, sentinel.Type, sentinel.ID, to, code))
	if err != nil {
		return nil, fmt.Errorf("upsert redirect: %w", mapWriteErr(err))
	}
	return rec, nil
}

// Rename в одной транзакции переносит запись владельца на новый slug и
// ставит редирект со старого. Порядок существенный: сначала освобождается
// старый slug, иначе upsert превратил бы в редирект живую запись.
func (r *URLRepository) Rename(ctx context.Context, owner model.Owner, oldSlug, newSlug string, code int) error {
	tx, err := r.DB.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE urls SET slug = $3, last_modified_at = now()
		 WHERE urable_type = $1 AND urable_id = $2 AND slug = $4`,
		owner.Type, owner.ID, newSlug, oldSlug)
	if err != nil {
		return fmt.Errorf("rename: %w", mapWriteErr(err))
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	sentinel := model.SentinelOwner()
	if _, err := tx.Exec(ctx, upsertRedirectQuery,
		oldSlug, sentinel.Type, sentinel.ID, newSlug, code); err != nil {
		return fmt.Errorf("rename redirect: %w", mapWriteErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteByOwner каскадно удаляет запись сущности. Строки url_visits
// уходят по FK, редиректы на её старые slug остаются висеть.
func (r *URLRepository) DeleteByOwner(ctx context.Context, owner model.Owner) error {
	tag, err := r.DB.Pool.Exec(ctx,
		`DELETE FROM urls WHERE urable_type = $1 AND urable_id = $2`,
		owner.Type, owner.ID)
	if err != nil {
		return fmt.Errorf("delete by owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordVisit инкрементирует счётчики и пишет строку визита в одной
// транзакции. Вызывается только фоновым трекером.
func (r *URLRepository) RecordVisit(ctx context.Context, slug string, visit *model.VisitRecord) error {
	tx, err := r.DB.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var urlID uint64
	err = tx.QueryRow(ctx,
		`UPDATE urls SET visits = visits + 1, last_visited_at = $2
		 WHERE slug = $1 RETURNING id`,
		slug, visit.VisitedAt).Scan(&urlID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("record visit: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO url_visits (id, url_id, ip, user_agent, referer, visited_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6)`,
		visit.ID, urlID, visit.IP, visit.UserAgent, visit.Referer, visit.VisitedAt)
	if err != nil {
		return fmt.Errorf("record visit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListActive возвращает активные записи для sitemap.
func (r *URLRepository) ListActive(ctx context.Context) ([]*model.URLRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM urls WHERE status = 'active' ORDER BY slug`
	rows, err := r.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	defer rows.Close()

	var results []*model.URLRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// SlugExists — точечная проверка занятости slug.
func (r *URLRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.DB.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM urls WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

// Stats возвращает агрегаты по таблице urls.
func (r *URLRepository) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	err := r.DB.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'active'),
		       COUNT(*) FILTER (WHERE status = 'redirect'),
		       COALESCE(SUM(visits), 0)
		FROM urls`).Scan(&st.URLs, &st.Active, &st.Redirects, &st.Visits)
	if err != nil {
		return model.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Ping проверяет доступность базы данных.
func (r *URLRepository) Ping(ctx context.Context) error {
	_, err := r.DB.Pool.Exec(ctx, "SELECT 1")
	return err
}
