package storage

import (
	"context"
	"errors"

	"github.com/Totarae/URLManager/internal/model"
)

// Ошибки хранилища. Обе локальны и восстановимы: вызывающий код получает
// отказ конкретной операции, процесс продолжает работать.
var (
	// ErrNotFound — slug отсутствует среди неудалённых записей.
	ErrNotFound = errors.New("url not found")
	// ErrDuplicateSlug — нарушение уникальности slug или владельца;
	// проигравший из двух конкурентных писателей получает эту ошибку.
	ErrDuplicateSlug = errors.New("duplicate slug")
)

// Store определяет контракт хранилища записей URL. Реализации: PostgreSQL
// (repositories.URLRepository) и in-memory с журналом в файле (MemStore).
//
// Чтения — точечные и безопасны для параллельного вызова. Мутации
// сериализуются на уровне уникальных ограничений: кто не успел, получает
// ErrDuplicateSlug, а не тихо испорченное состояние.
type Store interface {
	// Get возвращает запись по slug.
	Get(ctx context.Context, slug string) (*model.URLRecord, error)
	// GetByOwner возвращает запись, принадлежащую сущности.
	GetByOwner(ctx context.Context, owner model.Owner) (*model.URLRecord, error)
	// Save вставляет новую запись; занятый slug или владелец — ErrDuplicateSlug.
	Save(ctx context.Context, rec *model.URLRecord) error
	// Update перезаписывает поля существующей записи по её ID.
	Update(ctx context.Context, rec *model.URLRecord) error
	// UpsertRedirect атомарно ставит редирект на slug from: существующая
	// запись конвертируется на месте, отсутствующая — создаётся с
	// сентинел-владельцем. Повторный вызов с теми же аргументами идемпотентен.
	UpsertRedirect(ctx context.Context, from, to string, code int) (*model.URLRecord, error)
	// Rename атомарно переносит принадлежащую owner запись со slug oldSlug
	// на newSlug и ставит редирект oldSlug -> newSlug. Либо происходят оба
	// шага, либо ни одного.
	Rename(ctx context.Context, owner model.Owner, oldSlug, newSlug string, code int) error
	// DeleteByOwner каскадно удаляет запись сущности. Редиректы на её
	// старые slug остаются и разрешаются в not-found на чтении.
	DeleteByOwner(ctx context.Context, owner model.Owner) error
	// RecordVisit инкрементирует счётчик посещений и пишет строку визита.
	RecordVisit(ctx context.Context, slug string, visit *model.VisitRecord) error
	// ListActive возвращает активные записи для генерации sitemap.
	ListActive(ctx context.Context) ([]*model.URLRecord, error)
	// SlugExists — точечная проверка занятости slug.
	SlugExists(ctx context.Context, slug string) (bool, error)
	// Stats возвращает агрегаты для служебного эндпоинта.
	Stats(ctx context.Context) (model.Stats, error)
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}
