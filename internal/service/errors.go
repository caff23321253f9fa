package service

import (
	"errors"
	"strings"
)

// ErrDepthExceeded — ResolveFully упёрся в лимит хопов. Отличается от
// ErrNotFound: для мониторинга это признак цикла, просочившегося мимо
// проверки на запись (ручная правка данных или баг).
var ErrDepthExceeded = errors.New("redirect depth exceeded")

// CircularRedirectError — добавление ребра from -> to замкнуло бы цикл.
// Chain содержит всю цепочку для диагностики оператором.
type CircularRedirectError struct {
	Chain []string
}

func (e *CircularRedirectError) Error() string {
	return "circular redirect chain: " + strings.Join(e.Chain, " -> ")
}
