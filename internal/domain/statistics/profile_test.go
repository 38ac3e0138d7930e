package statistics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
)

// Two disciplines:
//
//	1 "Aerial silks": figure 10 (steps 101 req L 10xp, 102 req R 20xp, 103 optional 5xp)
//	2 "Juggling":     figure 20 (steps 201, 202, none required, 15xp each)
//	                  figure 30 (no steps)
func testIndex() *catalog.Index {
	return catalog.NewIndex(
		[]catalog.Discipline{{ID: 1, Name: "Aerial silks"}, {ID: 2, Name: "Juggling"}},
		[]catalog.Figure{
			{ID: 10, DisciplineID: 1, Name: "Foot lock", Steps: []catalog.Step{
				{ID: 101, FigureID: 10, Order: 1, XPReward: 10, Side: catalog.SideLeft, Required: true, CriticalFailureThreshold: 3},
				{ID: 102, FigureID: 10, Order: 2, XPReward: 20, Side: catalog.SideRight, Required: true, CriticalFailureThreshold: 3},
				{ID: 103, FigureID: 10, Order: 3, XPReward: 5, Side: catalog.SideNone, CriticalFailureThreshold: 3},
			}},
			{ID: 20, DisciplineID: 2, Name: "Cascade", Steps: []catalog.Step{
				{ID: 201, FigureID: 20, Order: 1, XPReward: 15, Side: catalog.SideLeft, CriticalFailureThreshold: 2},
				{ID: 202, FigureID: 20, Order: 2, XPReward: 15, Side: catalog.SideLeft, CriticalFailureThreshold: 2},
			}},
			{ID: 30, DisciplineID: 2, Name: "Empty"},
		},
	)
}

func val(stepID, progressionID int64) validation.Validation {
	return validation.Validation{
		UserID: 1, StepID: stepID, ProgressionID: progressionID,
		ValidatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCompute_Empty(t *testing.T) {
	p := Compute(testIndex(), nil)

	assert.Equal(t, 0, p.FiguresValidated)
	assert.Equal(t, 0, p.StepsValidated)
	assert.Equal(t, 0, p.XPTotal)
	assert.Equal(t, Laterality{}, p.Laterality)
	require.Len(t, p.Radar, 2)
	assert.Equal(t, 0.0, p.Radar[0].Ratio)
}

func TestCompute_RequiredStepsGateFigure(t *testing.T) {
	p := Compute(testIndex(), []validation.Validation{val(101, 1), val(102, 1)})

	assert.Equal(t, 1, p.FiguresValidated, "optional step 103 does not gate figure 10")
	assert.Equal(t, 30, p.XPTotal)
	assert.Equal(t, Laterality{Left: 1, Right: 1, Imbalance: 0}, p.Laterality)
}

func TestCompute_FigureWithoutRequiredStepsNeedsAllSteps(t *testing.T) {
	idx := testIndex()

	p := Compute(idx, []validation.Validation{val(201, 1)})
	assert.Equal(t, 0, p.FiguresValidated)

	p = Compute(idx, []validation.Validation{val(201, 1), val(202, 1)})
	assert.Equal(t, 1, p.FiguresValidated, "empty figure 30 never counts")
}

func TestCompute_XPCountsEachStepOnce(t *testing.T) {
	one := Compute(testIndex(), []validation.Validation{val(102, 1)})
	many := Compute(testIndex(), []validation.Validation{val(102, 1), val(102, 2), val(102, 3)})

	assert.Equal(t, 20, one.XPTotal)
	assert.Equal(t, one.XPTotal, many.XPTotal)
	assert.Equal(t, 3, many.StepsValidated)
	assert.Equal(t, Laterality{Right: 1, Imbalance: 1}, many.Laterality)
}

func TestCompute_RadarOrderedByDiscipline(t *testing.T) {
	p := Compute(testIndex(), []validation.Validation{val(101, 1), val(201, 1), val(202, 4), val(103, 1)})

	require.Len(t, p.Radar, 2)
	assert.Equal(t, RadarPoint{DisciplineID: 1, DisciplineName: "Aerial silks", Validated: 2, Total: 3, Ratio: 2.0 / 3.0}, p.Radar[0])
	assert.Equal(t, RadarPoint{DisciplineID: 2, DisciplineName: "Juggling", Validated: 2, Total: 2, Ratio: 1}, p.Radar[1])

	// Left: 101, 201, 202. Right: none. 103 has no side.
	assert.Equal(t, 3, p.Laterality.Left)
	assert.Equal(t, 0, p.Laterality.Right)
	assert.InDelta(t, 1.0, p.Laterality.Imbalance, 1e-12)
}

func TestCompute_UnknownStepIgnoredForXP(t *testing.T) {
	p := Compute(testIndex(), []validation.Validation{val(999, 1)})

	assert.Equal(t, 1, p.StepsValidated)
	assert.Equal(t, 0, p.XPTotal)
}
