package query

import (
	"context"
	"fmt"
	"time"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/statistics"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/user"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
	"github.com/Keldarne/cirque-app-sub003/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE STATISTICS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetProfileStatisticsQuery selects the user whose profile is summarized.
type GetProfileStatisticsQuery struct {
	UserID int64
}

// Validate checks the query.
func (q GetProfileStatisticsQuery) Validate() error {
	return shared.RequireID("statistics", "Query", "user_id", q.UserID)
}

// RadarPointDTO is one discipline axis of the radar chart.
type RadarPointDTO struct {
	DisciplineID   int64   `json:"discipline_id"`
	DisciplineName string  `json:"discipline_name"`
	Validated      int     `json:"validated"`
	Total          int     `json:"total"`
	Ratio          float64 `json:"ratio"`
}

// LateralityDTO compares left and right validated steps.
type LateralityDTO struct {
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Imbalance float64 `json:"imbalance"`
}

// GetProfileStatisticsResult is the profile summary.
type GetProfileStatisticsResult struct {
	UserID           int64           `json:"user_id"`
	DisplayName      string          `json:"display_name"`
	FiguresValidated int             `json:"figures_validated"`
	StepsValidated   int             `json:"steps_validated"`
	XPTotal          int             `json:"xp_total"`
	Radar            []RadarPointDTO `json:"radar"`
	Laterality       LateralityDTO   `json:"laterality"`
}

// GetProfileStatisticsHandler handles GetProfileStatisticsQuery.
type GetProfileStatisticsHandler struct {
	users       user.Directory
	catalog     catalog.Catalog
	validations validation.Repository
	metrics     *metrics.Manager
}

// NewGetProfileStatisticsHandler creates a new GetProfileStatisticsHandler.
func NewGetProfileStatisticsHandler(
	users user.Directory,
	cat catalog.Catalog,
	validations validation.Repository,
	m *metrics.Manager,
) *GetProfileStatisticsHandler {
	return &GetProfileStatisticsHandler{
		users:       users,
		catalog:     cat,
		validations: validations,
		metrics:     m,
	}
}

// Handle executes the query.
func (h *GetProfileStatisticsHandler) Handle(ctx context.Context, q GetProfileStatisticsQuery) (*GetProfileStatisticsResult, error) {
	start := time.Now()
	defer func() { h.metrics.ObserveOperation("get_profile_statistics", time.Since(start)) }()

	if err := q.Validate(); err != nil {
		return nil, err
	}
	u, err := h.users.GetUser(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_profile_statistics: get user: %w", err)
	}
	idx, err := catalog.LoadIndex(ctx, h.catalog)
	if err != nil {
		return nil, fmt.Errorf("get_profile_statistics: load catalog: %w", err)
	}
	vs, err := h.validations.ListByUser(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_profile_statistics: list validations: %w", err)
	}

	p := statistics.Compute(idx, vs)

	radar := make([]RadarPointDTO, len(p.Radar))
	for i, pt := range p.Radar {
		radar[i] = RadarPointDTO(pt)
	}
	return &GetProfileStatisticsResult{
		UserID:           u.ID,
		DisplayName:      u.DisplayName,
		FiguresValidated: p.FiguresValidated,
		StepsValidated:   p.StepsValidated,
		XPTotal:          p.XPTotal,
		Radar:            radar,
		Laterality:       LateralityDTO(p.Laterality),
	}, nil
}
