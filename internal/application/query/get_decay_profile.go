package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/attempt"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/decay"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/user"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
	"github.com/Keldarne/cirque-app-sub003/pkg/metrics"
	"github.com/Keldarne/cirque-app-sub003/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DECAY PROFILE QUERY
// Classifies each validated step by how long ago the learner last showed
// it. The reference time of a step is the later of its first validation
// and its most recent successful attempt.
// ══════════════════════════════════════════════════════════════════════════════

// GetDecayProfileQuery selects the user.
type GetDecayProfileQuery struct {
	UserID int64
}

// Validate checks the query.
func (q GetDecayProfileQuery) Validate() error {
	return shared.RequireID("decay", "Query", "user_id", q.UserID)
}

// StepDecayDTO is the freshness of one validated step.
type StepDecayDTO struct {
	StepID       int64     `json:"step_id"`
	FigureID     int64     `json:"figure_id"`
	DisciplineID int64     `json:"discipline_id"`
	Bucket       string    `json:"bucket"`
	ValidatedAt  time.Time `json:"validated_at"`
	ReferenceAt  time.Time `json:"reference_at"`
	ElapsedDays  float64   `json:"elapsed_days"`
}

// GetDecayProfileResult counts validated steps per bucket. Steps lists every
// validated step, stalest first.
type GetDecayProfileResult struct {
	UserID int64          `json:"user_id"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
	Steps  []StepDecayDTO `json:"steps"`
	AsOf   time.Time      `json:"as_of"`
}

// GetDecayProfileHandler handles GetDecayProfileQuery.
type GetDecayProfileHandler struct {
	users       user.Directory
	catalog     catalog.Catalog
	validations validation.Repository
	attempts    attempt.Ledger
	policy      decay.Policy
	clock       timeutil.Clock
	metrics     *metrics.Manager
}

// GetDecayProfileDeps wires the handler. Clock and Metrics are optional; a
// zero Policy falls back to the default thresholds.
type GetDecayProfileDeps struct {
	Users       user.Directory
	Catalog     catalog.Catalog
	Validations validation.Repository
	Attempts    attempt.Ledger
	Policy      decay.Policy
	Clock       timeutil.Clock
	Metrics     *metrics.Manager
}

// NewGetDecayProfileHandler creates a new GetDecayProfileHandler.
func NewGetDecayProfileHandler(d GetDecayProfileDeps) *GetDecayProfileHandler {
	if d.Policy.Default == (decay.Thresholds{}) {
		d.Policy.Default = decay.DefaultThresholds()
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock
	}
	return &GetDecayProfileHandler{
		users:       d.Users,
		catalog:     d.Catalog,
		validations: d.Validations,
		attempts:    d.Attempts,
		policy:      d.Policy,
		clock:       d.Clock,
		metrics:     d.Metrics,
	}
}

// Handle executes the query.
func (h *GetDecayProfileHandler) Handle(ctx context.Context, q GetDecayProfileQuery) (*GetDecayProfileResult, error) {
	start := time.Now()
	defer func() { h.metrics.ObserveOperation("get_decay_profile", time.Since(start)) }()

	if err := q.Validate(); err != nil {
		return nil, err
	}
	if _, err := h.users.GetUser(ctx, q.UserID); err != nil {
		return nil, fmt.Errorf("get_decay_profile: get user: %w", err)
	}
	idx, err := catalog.LoadIndex(ctx, h.catalog)
	if err != nil {
		return nil, fmt.Errorf("get_decay_profile: load catalog: %w", err)
	}
	vs, err := h.validations.ListByUser(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_decay_profile: list validations: %w", err)
	}
	successes, err := h.attempts.List(ctx, attempt.Query{UserID: q.UserID, SucceededOnly: true})
	if err != nil {
		return nil, fmt.Errorf("get_decay_profile: list successes: %w", err)
	}

	lastSuccess := make(map[int64]time.Time)
	for _, a := range successes {
		lastSuccess[a.StepID] = timeutil.Later(lastSuccess[a.StepID], a.OccurredAt)
	}

	now := h.clock.Now()
	counts := decay.NewCounts()
	steps := make([]StepDecayDTO, 0, len(vs))
	for stepID, v := range validation.FirstByStep(vs) {
		ref := timeutil.Later(v.ValidatedAt, lastSuccess[stepID])
		dto := StepDecayDTO{
			StepID:      stepID,
			ValidatedAt: v.ValidatedAt,
			ReferenceAt: ref,
			ElapsedDays: timeutil.ElapsedDays(ref, now),
		}
		thresholds := h.policy.Default
		if step, ok := idx.Step(stepID); ok {
			dto.FigureID = step.FigureID
			if d, ok := idx.DisciplineOf(stepID); ok {
				dto.DisciplineID = d
				thresholds = h.policy.For(d)
			}
		}
		b := decay.Classify(ref, now, thresholds)
		dto.Bucket = string(b)
		counts[b]++
		steps = append(steps, dto)
	}

	sort.Slice(steps, func(i, j int) bool {
		if !steps[i].ReferenceAt.Equal(steps[j].ReferenceAt) {
			return steps[i].ReferenceAt.Before(steps[j].ReferenceAt)
		}
		return steps[i].StepID < steps[j].StepID
	})

	out := make(map[string]int, len(counts))
	for b, n := range counts {
		out[string(b)] = n
	}
	return &GetDecayProfileResult{
		UserID: q.UserID,
		Counts: out,
		Total:  counts.Total(),
		Steps:  steps,
		AsOf:   now,
	}, nil
}
