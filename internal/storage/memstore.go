package storage

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/Totarae/URLManager/internal/model"
)

// journalEntry — одна строка файлового журнала. Журнал пишется append-only,
// при старте записи проигрываются по порядку: последняя версия побеждает.
type journalEntry struct {
	Op     string           `json:"op"` // "put" или "del"
	Slug   string           `json:"slug,omitempty"`
	Record *model.URLRecord `json:"record,omitempty"`
}

// MemStore — потокобезопасное in-memory хранилище записей URL с
// опциональным журналом в файле. Используется в режимах file/in-memory
// и в тестах вместо PostgreSQL.
type MemStore struct {
	mu      sync.RWMutex
	bySlug  map[string]*model.URLRecord
	byID    map[uint64]string
	byOwner map[model.Owner]string
	visits  []*model.VisitRecord
	nextID  uint64
	file    string
}

var _ Store = (*MemStore)(nil)

// NewMemStore создаёт хранилище; file == "" отключает журнал.
func NewMemStore(file string) *MemStore {
	s := &MemStore{
		bySlug:  make(map[string]*model.URLRecord),
		byID:    make(map[uint64]string),
		byOwner: make(map[model.Owner]string),
		file:    file,
	}

	if err := s.loadFromFile(); err != nil {
		log.Printf("Ошибка загрузки журнала из файла: %v", err)
	}

	return s
}

// Get возвращает копию записи по slug.
func (s *MemStore) Get(_ context.Context, slug string) (*model.URLRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.bySlug[slug]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// GetByOwner возвращает копию записи, принадлежащей сущности.
func (s *MemStore) GetByOwner(_ context.Context, owner model.Owner) (*model.URLRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slug, ok := s.byOwner[owner]
	if !ok {
		return nil, ErrNotFound
	}
	return s.bySlug[slug].Clone(), nil
}

// Save вставляет новую запись. Занятый slug или второй URL у того же
// владельца — ErrDuplicateSlug.
func (s *MemStore) Save(_ context.Context, rec *model.URLRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySlug[rec.Slug]; exists {
		return ErrDuplicateSlug
	}
	if !rec.Owner.IsSentinel() {
		if _, exists := s.byOwner[rec.Owner]; exists {
			return ErrDuplicateSlug
		}
	}

	s.nextID++
	rec.ID = s.nextID
	if rec.Created.IsZero() {
		rec.Created = time.Now()
	}

	s.put(rec.Clone())
	return nil
}

// Update перезаписывает существующую запись по ID, в том числе при смене slug.
func (s *MemStore) Update(_ context.Context, rec *model.URLRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldSlug, ok := s.byID[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if rec.Slug != oldSlug {
		if _, exists := s.bySlug[rec.Slug]; exists {
			return ErrDuplicateSlug
		}
		s.removeKeys(s.bySlug[oldSlug])
	}

	s.put(rec.Clone())
	return nil
}

// UpsertRedirect ставит редирект на slug from: существующая запись
// конвертируется на месте (владелец сохраняется), отсутствующая создаётся
// с сентинел-владельцем. Идемпотентна.
func (s *MemStore) UpsertRedirect(_ context.Context, from, to string, code int) (*model.URLRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upsertRedirectLocked(from, to, code)
}

func (s *MemStore) upsertRedirectLocked(from, to string, code int) (*model.URLRecord, error) {
	now := time.Now()

	if existing, ok := s.bySlug[from]; ok {
		rec := existing.Clone()
		rec.Status = model.StatusRedirect
		rec.Type = model.TypeRedirect
		rec.RedirectTo = to
		rec.RedirectCode = code
		rec.LastModifiedAt = now
		s.put(rec)
		return rec.Clone(), nil
	}

	s.nextID++
	rec := &model.URLRecord{
		ID:             s.nextID,
		Slug:           from,
		Owner:          model.SentinelOwner(),
		Type:           model.TypeRedirect,
		Status:         model.StatusRedirect,
		RedirectTo:     to,
		RedirectCode:   code,
		LastModifiedAt: now,
		Created:        now,
	}
	s.put(rec)
	return rec.Clone(), nil
}

// Rename атомарно переносит запись владельца на новый slug и ставит
// редирект со старого. Все проверки выполняются до первой мутации, обе
// мутации — под одной блокировкой: частичное состояние не наблюдаемо.
func (s *MemStore) Rename(_ context.Context, owner model.Owner, oldSlug, newSlug string, code int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slug, ok := s.byOwner[owner]
	if !ok || slug != oldSlug {
		return ErrNotFound
	}
	if _, exists := s.bySlug[newSlug]; exists {
		return ErrDuplicateSlug
	}

	// Шаг 1: переносим принадлежащую запись на новый slug.
	rec := s.bySlug[oldSlug].Clone()
	s.removeKeys(s.bySlug[oldSlug])
	rec.Slug = newSlug
	rec.LastModifiedAt = time.Now()
	s.put(rec)

	// Шаг 2: старый slug теперь свободен — ставим на него редирект.
	if _, err := s.upsertRedirectLocked(oldSlug, newSlug, code); err != nil {
		return err
	}
	return nil
}

// DeleteByOwner удаляет запись сущности. Редиректы, указывающие на её
// slug, намеренно не трогаются.
func (s *MemStore) DeleteByOwner(_ context.Context, owner model.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slug, ok := s.byOwner[owner]
	if !ok {
		return ErrNotFound
	}

	s.removeKeys(s.bySlug[slug])
	s.appendToFile(journalEntry{Op: "del", Slug: slug})
	return nil
}

// RecordVisit инкрементирует счётчик посещений и сохраняет строку визита.
func (s *MemStore) RecordVisit(_ context.Context, slug string, visit *model.VisitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.bySlug[slug]
	if !ok {
		return ErrNotFound
	}

	rec.Visits++
	t := visit.VisitedAt
	rec.LastVisitedAt = &t

	v := *visit
	v.URLID = rec.ID
	s.visits = append(s.visits, &v)

	s.appendToFile(journalEntry{Op: "put", Record: rec})
	return nil
}

// ListActive возвращает активные записи для sitemap.
func (s *MemStore) ListActive(_ context.Context) ([]*model.URLRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.URLRecord
	for _, rec := range s.bySlug {
		if rec.Status == model.StatusActive {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// SlugExists проверяет занятость slug.
func (s *MemStore) SlugExists(_ context.Context, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.bySlug[slug]
	return ok, nil
}

// Stats возвращает агрегаты по хранилищу.
func (s *MemStore) Stats(_ context.Context) (model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := model.Stats{URLs: len(s.bySlug)}
	for _, rec := range s.bySlug {
		switch rec.Status {
		case model.StatusActive:
			st.Active++
		case model.StatusRedirect:
			st.Redirects++
		}
		st.Visits += rec.Visits
	}
	return st, nil
}

// Ping для in-memory хранилища всегда успешен.
func (s *MemStore) Ping(_ context.Context) error {
	return nil
}

// VisitLog возвращает накопленные строки визитов (для тестов и отладки).
func (s *MemStore) VisitLog() []*model.VisitRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.VisitRecord, len(s.visits))
	copy(out, s.visits)
	return out
}

// put кладёт запись во все индексы и дописывает журнал. Вызывать под mu.
func (s *MemStore) put(rec *model.URLRecord) {
	s.bySlug[rec.Slug] = rec
	s.byID[rec.ID] = rec.Slug
	if !rec.Owner.IsSentinel() {
		s.byOwner[rec.Owner] = rec.Slug
	}
	if rec.ID > s.nextID {
		s.nextID = rec.ID
	}
	s.appendToFile(journalEntry{Op: "put", Record: rec})
}

// removeKeys выкидывает запись из всех индексов. Вызывать под mu.
func (s *MemStore) removeKeys(rec *model.URLRecord) {
	if rec == nil {
		return
	}
	delete(s.bySlug, rec.Slug)
	delete(s.byID, rec.ID)
	if !rec.Owner.IsSentinel() {
		delete(s.byOwner, rec.Owner)
	}
}

// loadFromFile проигрывает журнал при старте.
func (s *MemStore) loadFromFile() error {
	if s.file == "" {
		return nil
	}

	f, err := os.Open(s.file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Файл ещё не создан, это не ошибка
		}
		return err
	}
	defer f.Close()

	file := s.file
	s.file = "" // не дописывать журнал во время проигрывания

	decoder := json.NewDecoder(f)
	for {
		var entry journalEntry
		if err := decoder.Decode(&entry); err != nil {
			break
		}
		switch entry.Op {
		case "put":
			if entry.Record != nil {
				if old, ok := s.byID[entry.Record.ID]; ok {
					s.removeKeys(s.bySlug[old])
				}
				s.put(entry.Record)
			}
		case "del":
			s.removeKeys(s.bySlug[entry.Slug])
		}
	}

	s.file = file
	log.Printf("Загружено %d записей URL из файла %s", len(s.bySlug), s.file)
	return nil
}

// appendToFile дописывает запись журнала.
func (s *MemStore) appendToFile(entry journalEntry) {
	if s.file == "" {
		return
	}

	f, err := os.OpenFile(s.file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("Ошибка сохранения в файл: %v", err)
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("Ошибка сериализации записи журнала: %v", err)
		return
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("Ошибка записи в файл: %v", err)
	}
}
