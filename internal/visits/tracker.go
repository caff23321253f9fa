package visits

import (
	"context"
	"sync"
	"time"

	"github.com/Totarae/URLManager/internal/model"
	"github.com/Totarae/URLManager/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tracker записывает посещения асинхронно: события складываются в
// ограниченную очередь и обрабатываются фоновой горутиной. Track никогда
// не блокирует путь разрешения; при переполнении очереди событие
// отбрасывается — недосчёт допустим, корректность разрешения от счётчиков
// не зависит.
type Tracker struct {
	store  storage.Store
	logger *zap.Logger
	events chan model.VisitEvent
	wg     sync.WaitGroup
	once   sync.Once
}

// NewTracker создаёт трекер с очередью на queueSize событий.
func NewTracker(store storage.Store, logger *zap.Logger, queueSize int) *Tracker {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Tracker{
		store:  store,
		logger: logger,
		events: make(chan model.VisitEvent, queueSize),
	}
}

// Track ставит событие в очередь. Не блокирует: полная очередь — событие
// теряется с записью в лог.
func (t *Tracker) Track(ev model.VisitEvent) {
	select {
	case t.events <- ev:
	default:
		t.logger.Warn("очередь посещений переполнена, событие отброшено",
			zap.String("slug", ev.Slug))
	}
}

// Run запускает обработку очереди до отмены контекста. Оставшиеся в
// очереди события дописываются перед выходом.
func (t *Tracker) Run(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case ev := <-t.events:
				t.record(ev)
			case <-ctx.Done():
				t.drain()
				return
			}
		}
	}()
}

// Close дожидается завершения фоновой горутины.
func (t *Tracker) Close() {
	t.once.Do(func() {
		t.wg.Wait()
	})
}

func (t *Tracker) drain() {
	for {
		select {
		case ev := <-t.events:
			t.record(ev)
		default:
			return
		}
	}
}

func (t *Tracker) record(ev model.VisitEvent) {
	visitedAt := ev.VisitedAt
	if visitedAt.IsZero() {
		visitedAt = time.Now()
	}

	visit := &model.VisitRecord{
		ID:        uuid.NewString(),
		IP:        ev.IP,
		UserAgent: ev.UserAgent,
		Referer:   ev.Referer,
		VisitedAt: visitedAt,
	}

	// Запись визита не должна тянуть за собой контекст HTTP-запроса,
	// который к этому моменту уже завершён.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := t.store.RecordVisit(ctx, ev.Slug, visit); err != nil {
		t.logger.Warn("не удалось записать посещение",
			zap.String("slug", ev.Slug),
			zap.Error(err))
	}
}
