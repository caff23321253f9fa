package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Totarae/URLManager/internal/model"
	"github.com/Totarae/URLManager/internal/storage"
	"go.uber.org/zap"
)

// VisitSink принимает события "slug разрешён". Реализация (visits.Tracker)
// обязана не блокировать: путь разрешения не ждёт записи посещений.
type VisitSink interface {
	Track(ev model.VisitEvent)
}

// Entity — то, что слой сущностей обязан сообщить о себе движку URL.
// Вместо скрытой шины событий слой сущностей явно зовёт OnEntity*-хуки.
type Entity interface {
	// URLOwner возвращает полиморфную ссылку (тип, id).
	URLOwner() model.Owner
	// CanonicalPath возвращает желаемый slug, например "products/red-shoes".
	CanonicalPath() string
	// IsActiveForURL сообщает, должен ли URL отдавать контент.
	IsActiveForURL() bool
}

// Resolver — ядро движка: разрешение slug, детектор циклов, координатор
// переименований и создание редиректов. Читающие методы безопасны для
// параллельного вызова; пишущие сериализуются уникальными ограничениями
// хранилища.
type Resolver struct {
	store       storage.Store
	logger      *zap.Logger
	visits      VisitSink
	maxDepth    int
	defaultCode int
}

// NewResolver создаёт резолвер. visits может быть nil — тогда события
// посещений не публикуются. Нулевые maxDepth/defaultCode заменяются
// значениями по умолчанию (5 и 301).
func NewResolver(store storage.Store, logger *zap.Logger, visits VisitSink, maxDepth, defaultCode int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = 5
	}
	if defaultCode == 0 {
		defaultCode = 301
	}
	return &Resolver{
		store:       store,
		logger:      logger,
		visits:      visits,
		maxDepth:    maxDepth,
		defaultCode: defaultCode,
	}
}

// Resolve разрешает slug за один шаг. Редирект не раскручивается: HTTP-слой
// отвечает 30x, следующий хоп придёт отдельным запросом браузера.
//
// visit — метаданные запроса для трекера посещений; nil для внутренних
// вызовов. Событие публикуется только для активной записи.
func (r *Resolver) Resolve(ctx context.Context, slug string, visit *model.VisitEvent) (model.ResolutionResult, error) {
	rec, err := r.store.Get(ctx, slug)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.ResolutionResult{Outcome: model.OutcomeNotFound}, nil
		}
		return model.ResolutionResult{}, fmt.Errorf("resolve %q: %w", slug, err)
	}

	switch rec.Status {
	case model.StatusActive:
		if r.visits != nil && visit != nil {
			ev := *visit
			ev.Slug = rec.Slug
			ev.Owner = rec.Owner
			if ev.VisitedAt.IsZero() {
				ev.VisitedAt = time.Now()
			}
			r.visits.Track(ev)
		}
		return model.ResolutionResult{Outcome: model.OutcomeActive, Record: rec}, nil
	case model.StatusRedirect:
		code := rec.RedirectCode
		if code == 0 {
			code = r.defaultCode
		}
		return model.ResolutionResult{
			Outcome:      model.OutcomeRedirect,
			Record:       rec,
			RedirectTo:   rec.RedirectTo,
			RedirectCode: code,
		}, nil
	default:
		return model.ResolutionResult{Outcome: model.OutcomeNotFound}, nil
	}
}

// ResolveFully идёт по цепочке редиректов до первой активной записи.
// Для sitemap и админских инструментов, которым нужен финальный контент.
//
// Лимит хопов — защита в глубину: инвариант ацикличности держится на
// проверке при записи, но ручная правка данных может его сломать. Тогда
// вызов вернёт ErrDepthExceeded, а не зависнет.
func (r *Resolver) ResolveFully(ctx context.Context, slug string) (*model.URLRecord, error) {
	cur := slug
	for hop := 0; hop <= r.maxDepth; hop++ {
		rec, err := r.store.Get(ctx, cur)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				if hop > 0 {
					// Владелец цели удалён, а редирект остался висеть.
					r.logger.Warn("редирект ведёт на несуществующий slug",
						zap.String("slug", slug),
						zap.String("dangling", cur))
				}
				return nil, fmt.Errorf("resolve %q: %w", slug, storage.ErrNotFound)
			}
			return nil, fmt.Errorf("resolve %q: %w", slug, err)
		}

		switch rec.Status {
		case model.StatusActive:
			return rec, nil
		case model.StatusRedirect:
			cur = rec.RedirectTo
		default:
			return nil, fmt.Errorf("resolve %q: %w", slug, storage.ErrNotFound)
		}
	}

	return nil, fmt.Errorf("resolve %q after %d hops: %w", slug, r.maxDepth, ErrDepthExceeded)
}

// WouldCreateCycle проверяет, замкнёт ли ребро from -> to цикл в графе
// редиректов. Исходящая степень каждого узла не больше единицы, поэтому
// проверка — обход связного списка от to, не общий поиск по графу.
func (r *Resolver) WouldCreateCycle(ctx context.Context, from, to string) (bool, error) {
	chain, err := r.detectChain(ctx, from, to)
	if err != nil {
		return false, err
	}
	return chain != nil, nil
}

// detectChain возвращает цепочку to -> ... -> from, если ребро from -> to
// замкнуло бы цикл, иначе nil. Обход ограничен maxDepth хопами.
func (r *Resolver) detectChain(ctx context.Context, from, to string) ([]string, error) {
	cur := to
	chain := make([]string, 0, r.maxDepth+1)

	for hop := 0; hop <= r.maxDepth; hop++ {
		chain = append(chain, cur)
		if cur == from {
			return chain, nil
		}

		rec, err := r.store.Get(ctx, cur)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("detect chain from %q: %w", to, err)
		}
		if !rec.IsRedirect() {
			return nil, nil
		}
		cur = rec.RedirectTo
	}

	// Обход упёрся в лимит, не дойдя до from: ребро цикл не замкнёт,
	// а от существующей аномальной цепочки защищает лимит ResolveFully.
	return nil, nil
}

// CreateRedirect ставит редирект from -> to. Существующая запись на from
// конвертируется в редирект на месте (так живую страницу превращают в
// редирект), отсутствующая создаётся с сентинел-владельцем.
//
// Проверка цикла обязательна и встроена сюда: у вызывающего кода нет
// способа её обойти. code == 0 означает код по умолчанию.
func (r *Resolver) CreateRedirect(ctx context.Context, from, to string, code int) (*model.URLRecord, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("create redirect: empty slug")
	}
	if code == 0 {
		code = r.defaultCode
	}

	chain, err := r.detectChain(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if chain != nil {
		return nil, &CircularRedirectError{Chain: chain}
	}

	rec, err := r.store.UpsertRedirect(ctx, from, to, code)
	if err != nil {
		return nil, fmt.Errorf("create redirect %q -> %q: %w", from, to, err)
	}

	r.logger.Info("создан редирект",
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("code", code))
	return rec, nil
}

// Rename переносит принадлежащую owner запись на newSlug, сохранив
// разрешимость старого slug: на него ставится редирект. Оба шага хранилище
// выполняет атомарно — окно "новый slug есть, редиректа нет" не наблюдаемо.
func (r *Resolver) Rename(ctx context.Context, owner model.Owner, newSlug string) error {
	rec, err := r.store.GetByOwner(ctx, owner)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	oldSlug := rec.Slug
	if oldSlug == newSlug {
		return nil
	}

	chain, err := r.detectChain(ctx, oldSlug, newSlug)
	if err != nil {
		return err
	}
	if chain != nil {
		return &CircularRedirectError{Chain: chain}
	}

	if err := r.store.Rename(ctx, owner, oldSlug, newSlug, r.defaultCode); err != nil {
		return fmt.Errorf("rename %q -> %q: %w", oldSlug, newSlug, err)
	}

	r.logger.Info("slug переименован",
		zap.String("old", oldSlug),
		zap.String("new", newSlug))
	return nil
}

// OnEntityCreated создаёт запись URL для новой сущности. Если желаемый
// slug занят, подбирается уникальный с числовым суффиксом. Повторный вызов
// для той же сущности обновляет её запись, а не плодит дубликаты.
func (r *Resolver) OnEntityCreated(ctx context.Context, e Entity) (*model.URLRecord, error) {
	owner := e.URLOwner()

	status := model.StatusInactive
	if e.IsActiveForURL() {
		status = model.StatusActive
	}

	if existing, err := r.store.GetByOwner(ctx, owner); err == nil {
		existing.Status = status
		existing.LastModifiedAt = time.Now()
		if err := r.store.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("on entity created: %w", err)
		}
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("on entity created: %w", err)
	}

	slug, err := r.GenerateUniqueSlug(ctx, e.CanonicalPath())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rec := &model.URLRecord{
		Slug:           slug,
		Owner:          owner,
		Type:           owner.Type,
		Status:         status,
		LastModifiedAt: now,
		Created:        now,
	}
	if err := r.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("on entity created: %w", err)
	}

	r.logger.Info("создан URL для сущности",
		zap.String("slug", slug),
		zap.String("owner_type", string(owner.Type)),
		zap.Int64("owner_id", owner.ID))
	return rec, nil
}

// OnEntityStatusChanged переключает запись между active и inactive вслед
// за флагом активности сущности.
func (r *Resolver) OnEntityStatusChanged(ctx context.Context, e Entity) error {
	rec, err := r.store.GetByOwner(ctx, e.URLOwner())
	if err != nil {
		return fmt.Errorf("on entity status changed: %w", err)
	}

	if e.IsActiveForURL() {
		rec.Status = model.StatusActive
	} else {
		rec.Status = model.StatusInactive
	}
	rec.LastModifiedAt = time.Now()

	if err := r.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("on entity status changed: %w", err)
	}
	return nil
}

// OnEntityRenamed вызывается слоем сущностей после смены канонического
// пути. Делегирует координатору переименования.
func (r *Resolver) OnEntityRenamed(ctx context.Context, e Entity) error {
	return r.Rename(ctx, e.URLOwner(), e.CanonicalPath())
}

// OnEntityDeleted удаляет запись сущности. Редиректы на её старые slug
// остаются висеть и разрешаются в not-found.
func (r *Resolver) OnEntityDeleted(ctx context.Context, e Entity) error {
	err := r.store.DeleteByOwner(ctx, e.URLOwner())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("on entity deleted: %w", err)
	}
	return nil
}

// GenerateUniqueSlug нормализует желаемый путь и при занятости подбирает
// вариант с суффиксом -2, -3 и так далее.
func (r *Resolver) GenerateUniqueSlug(ctx context.Context, path string) (string, error) {
	base := Slugify(path)
	if base == "" {
		return "", fmt.Errorf("generate slug: empty path")
	}

	slug := base
	for n := 2; ; n++ {
		exists, err := r.store.SlugExists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("generate slug: %w", err)
		}
		if !exists {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(n)
	}
}

// Stats возвращает агрегаты хранилища.
func (r *Resolver) Stats(ctx context.Context) (model.Stats, error) {
	st, err := r.store.Stats(ctx)
	if err != nil {
		r.logger.Error("Failed to retrieve stats", zap.Error(err))
		return model.Stats{}, err
	}
	return st, nil
}

// Ping проверяет доступность хранилища.
func (r *Resolver) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// Slugify приводит путь к виду slug: латиница и цифры в нижнем регистре,
// сегменты через "/", остальное схлопывается в дефисы.
func Slugify(path string) string {
	var b strings.Builder
	lastDash := true // срезает ведущие дефисы

	for _, r := range strings.ToLower(strings.Trim(path, "/")) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case r == '/':
			b.WriteRune('/')
			lastDash = true
		default:
			if !lastDash {
				b.WriteRune('-')
				lastDash = true
			}
		}
	}

	return strings.Trim(b.String(), "-")
}
