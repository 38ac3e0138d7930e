// Package catalog holds the read-only skill catalog: disciplines, figures
// and the ordered steps a learner practices.
package catalog

import (
	"context"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Side is the body side a step trains.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
	SideNone  Side = "none"
)

// IsValid reports whether s is a known side.
func (s Side) IsValid() bool {
	switch s {
	case SideLeft, SideRight, SideNone:
		return true
	}
	return false
}

// ParseSide reads a stored or submitted side. Empty means SideNone.
func ParseSide(raw string) (Side, error) {
	if raw == "" {
		return SideNone, nil
	}
	s := Side(raw)
	if !s.IsValid() {
		return "", shared.InvalidArgument("catalog", "ParseSide", "side", raw, "must be left, right or none")
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Discipline groups figures (aerial silks, juggling, ...).
type Discipline struct {
	ID   int64
	Name string
}

// Step is one discrete skill unit inside a figure.
type Step struct {
	ID       int64
	FigureID int64
	Order    int

	// CriticalFailureThreshold is the cumulative failure count at which a
	// learner counts as blocked on this step. Always >= 1.
	CriticalFailureThreshold int

	XPReward int
	Side     Side

	// Required steps must all be validated for the figure to count as validated.
	Required bool
}

// Figure is a named skill made of ordered steps.
type Figure struct {
	ID           int64
	DisciplineID int64
	Name         string
	Steps        []Step // ordered by Step.Order
}

// RequiredSteps returns the steps that gate figure validation. A figure
// without any required step is gated by all of its steps.
func (f Figure) RequiredSteps() []Step {
	var req []Step
	for _, s := range f.Steps {
		if s.Required {
			req = append(req, s)
		}
	}
	if len(req) == 0 {
		return f.Steps
	}
	return req
}

// ══════════════════════════════════════════════════════════════════════════════
// PORT
// ══════════════════════════════════════════════════════════════════════════════

// Catalog is the read-only view of disciplines, figures and steps. Lookups of
// unknown ids return shared.ErrNotFound.
type Catalog interface {
	GetStep(ctx context.Context, stepID int64) (Step, error)
	GetFigure(ctx context.Context, figureID int64) (Figure, error)
	// ListFigures returns every figure with its steps, ordered by figure id.
	ListFigures(ctx context.Context) ([]Figure, error)
	// ListDisciplines returns every discipline ordered by id.
	ListDisciplines(ctx context.Context) ([]Discipline, error)
}

// Index is an in-memory lookup over a full catalog listing, built once per
// read-side request.
type Index struct {
	Disciplines []Discipline
	Figures     []Figure
	steps       map[int64]Step
	figures     map[int64]Figure
}

// NewIndex indexes figures and their steps by id.
func NewIndex(disciplines []Discipline, figures []Figure) *Index {
	idx := &Index{
		Disciplines: disciplines,
		Figures:     figures,
		steps:       make(map[int64]Step),
		figures:     make(map[int64]Figure, len(figures)),
	}
	for _, f := range figures {
		idx.figures[f.ID] = f
		for _, s := range f.Steps {
			idx.steps[s.ID] = s
		}
	}
	return idx
}

// LoadIndex reads the whole catalog.
func LoadIndex(ctx context.Context, c Catalog) (*Index, error) {
	disciplines, err := c.ListDisciplines(ctx)
	if err != nil {
		return nil, err
	}
	figures, err := c.ListFigures(ctx)
	if err != nil {
		return nil, err
	}
	return NewIndex(disciplines, figures), nil
}

// Step returns the step with id, if known.
func (i *Index) Step(id int64) (Step, bool) {
	s, ok := i.steps[id]
	return s, ok
}

// Figure returns the figure with id, if known.
func (i *Index) Figure(id int64) (Figure, bool) {
	f, ok := i.figures[id]
	return f, ok
}

// DisciplineOf returns the discipline id of the figure owning step id.
func (i *Index) DisciplineOf(stepID int64) (int64, bool) {
	s, ok := i.steps[stepID]
	if !ok {
		return 0, false
	}
	f, ok := i.figures[s.FigureID]
	if !ok {
		return 0, false
	}
	return f.DisciplineID, true
}
