// Package statistics aggregates a learner's validations into the profile
// figures shown on the progression dashboard.
package statistics

import (
	"math"
	"sort"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
)

// RadarPoint is the completion ratio of one discipline.
type RadarPoint struct {
	DisciplineID   int64
	DisciplineName string
	Validated      int
	Total          int
	Ratio          float64
}

// Laterality compares validated left-side and right-side steps.
type Laterality struct {
	Left      int
	Right     int
	Imbalance float64 // |Left-Right| / max(Left+Right, 1)
}

// Profile is the statistics summary of one user.
type Profile struct {
	FiguresValidated int
	// StepsValidated counts validation rows across all progressions.
	StepsValidated int
	// XPTotal sums XPReward over distinct validated steps.
	XPTotal    int
	Radar      []RadarPoint
	Laterality Laterality
}

// Compute derives the profile from the catalog and the user's validations.
func Compute(idx *catalog.Index, validations []validation.Validation) Profile {
	validated := make(map[int64]struct{}, len(validations))
	for _, v := range validations {
		validated[v.StepID] = struct{}{}
	}

	p := Profile{
		StepsValidated: len(validations),
		XPTotal:        XP(idx, validated),
		Radar:          radar(idx, validated),
		Laterality:     laterality(idx, validated),
	}
	for _, f := range idx.Figures {
		if FigureValidated(f, validated) {
			p.FiguresValidated++
		}
	}
	return p
}

// FigureValidated reports whether every gating step of f is validated.
// Figures without steps never count.
func FigureValidated(f catalog.Figure, validated map[int64]struct{}) bool {
	gate := f.RequiredSteps()
	if len(gate) == 0 {
		return false
	}
	for _, s := range gate {
		if _, ok := validated[s.ID]; !ok {
			return false
		}
	}
	return true
}

// XP sums the reward of each distinct validated step once. Steps missing
// from the catalog contribute nothing.
func XP(idx *catalog.Index, validated map[int64]struct{}) int {
	total := 0
	for id := range validated {
		if s, ok := idx.Step(id); ok {
			total += s.XPReward
		}
	}
	return total
}

func radar(idx *catalog.Index, validated map[int64]struct{}) []RadarPoint {
	byDiscipline := make(map[int64]*RadarPoint)
	for _, f := range idx.Figures {
		for _, s := range f.Steps {
			pt, ok := byDiscipline[f.DisciplineID]
			if !ok {
				pt = &RadarPoint{DisciplineID: f.DisciplineID}
				byDiscipline[f.DisciplineID] = pt
			}
			pt.Total++
			if _, ok := validated[s.ID]; ok {
				pt.Validated++
			}
		}
	}

	names := make(map[int64]string, len(idx.Disciplines))
	for _, d := range idx.Disciplines {
		names[d.ID] = d.Name
	}

	points := make([]RadarPoint, 0, len(byDiscipline))
	for id, pt := range byDiscipline {
		pt.DisciplineName = names[id]
		pt.Ratio = float64(pt.Validated) / float64(pt.Total)
		points = append(points, *pt)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].DisciplineID < points[j].DisciplineID })
	return points
}

func laterality(idx *catalog.Index, validated map[int64]struct{}) Laterality {
	var l Laterality
	for id := range validated {
		s, ok := idx.Step(id)
		if !ok {
			continue
		}
		switch validation.SideFromStep(s.Side) {
		case validation.SideLeft:
			l.Left++
		case validation.SideRight:
			l.Right++
		}
	}
	l.Imbalance = math.Abs(float64(l.Left-l.Right)) / math.Max(float64(l.Left+l.Right), 1)
	return l
}
