package model

// Outcome — исход разрешения slug за один шаг.
type Outcome string

const (
	// OutcomeActive — slug ведёт на активную запись.
	OutcomeActive Outcome = "active"
	// OutcomeRedirect — slug является редиректом; HTTP-слой отвечает 30x,
	// дальше по цепочке резолвер на этом пути не идёт.
	OutcomeRedirect Outcome = "redirect"
	// OutcomeNotFound — slug отсутствует или запись неактивна.
	OutcomeNotFound Outcome = "not_found"
)

// ResolutionResult — результат одного шага разрешения slug.
type ResolutionResult struct {
	Outcome      Outcome
	Record       *URLRecord // заполнен для active и redirect
	RedirectTo   string     // целевой slug для redirect
	RedirectCode int        // 301/302/307/308
}

// Stats — агрегаты по таблице urls для служебного эндпоинта.
type Stats struct {
	URLs      int   `json:"urls"`
	Active    int   `json:"active"`
	Redirects int   `json:"redirects"`
	Visits    int64 `json:"visits"`
}
