package command

import (
	"context"
	"fmt"
	"time"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/attempt"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/leaderboard"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/progress"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/user"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
	"github.com/Keldarne/cirque-app-sub003/pkg/logger"
	"github.com/Keldarne/cirque-app-sub003/pkg/metrics"
	"github.com/Keldarne/cirque-app-sub003/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ATTEMPT COMMAND
// Appends a practice attempt to the ledger and, on success, validates the
// step for the progression in the same transaction.
// ══════════════════════════════════════════════════════════════════════════════

// RecordAttemptCommand contains the data of one practice attempt.
type RecordAttemptCommand struct {
	UserID        int64
	StepID        int64
	ProgressionID int64
	Succeeded     bool

	// Note is optional free text, at most 2000 characters.
	Note              string
	SharedWithTeacher bool
}

// Validate validates the command.
func (c RecordAttemptCommand) Validate() error {
	return shared.RequireIDs("attempt", "Record",
		shared.ID("user_id", c.UserID),
		shared.ID("step_id", c.StepID),
		shared.ID("progression_id", c.ProgressionID),
	)
}

// RecordAttemptResult contains the outcome of recording an attempt.
type RecordAttemptResult struct {
	Attempt attempt.Attempt

	// TotalFailures counts failing attempts for (user, step) across all
	// progressions, including this one.
	TotalFailures     int
	CriticalThreshold int

	// IsBlocked is advisory: the attempt was recorded either way.
	IsBlocked bool

	// Validation is set when the attempt succeeded.
	Validation     *validation.Validation
	NewlyValidated bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordAttemptHandler handles the RecordAttemptCommand.
type RecordAttemptHandler struct {
	uow     progress.UnitOfWork
	catalog catalog.Catalog
	users   user.Directory

	// Optional collaborators.
	cache   leaderboard.Cache
	metrics *metrics.Manager
	log     *logger.Logger
	clock   timeutil.Clock
}

// RecordAttemptDeps wires the handler. Cache, Metrics, Logger and Clock are optional.
type RecordAttemptDeps struct {
	UnitOfWork progress.UnitOfWork
	Catalog    catalog.Catalog
	Users      user.Directory
	Cache      leaderboard.Cache
	Metrics    *metrics.Manager
	Logger     *logger.Logger
	Clock      timeutil.Clock
}

// NewRecordAttemptHandler creates a new RecordAttemptHandler.
func NewRecordAttemptHandler(d RecordAttemptDeps) *RecordAttemptHandler {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock
	}
	return &RecordAttemptHandler{
		uow:     d.UnitOfWork,
		catalog: d.Catalog,
		users:   d.Users,
		cache:   d.Cache,
		metrics: d.Metrics,
		log:     d.Logger.With(logger.Component("record_attempt")),
		clock:   d.Clock,
	}
}

// Handle executes the record attempt command.
func (h *RecordAttemptHandler) Handle(ctx context.Context, cmd RecordAttemptCommand) (*RecordAttemptResult, error) {
	start := time.Now()
	defer func() { h.metrics.ObserveOperation("record_attempt", time.Since(start)) }()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if _, err := h.users.GetUser(ctx, cmd.UserID); err != nil {
		return nil, fmt.Errorf("record_attempt: get user: %w", err)
	}
	step, err := h.catalog.GetStep(ctx, cmd.StepID)
	if err != nil {
		return nil, fmt.Errorf("record_attempt: get step: %w", err)
	}

	a, err := attempt.NewAttempt(cmd.UserID, cmd.StepID, cmd.ProgressionID,
		cmd.Succeeded, cmd.Note, cmd.SharedWithTeacher, h.clock.Now())
	if err != nil {
		return nil, err
	}

	var (
		failures int
		outcome  EnsureOutcome
	)
	err = h.uow.WithinTx(ctx, func(ctx context.Context, tx progress.Tx) error {
		// A retried transaction starts from a clean attempt copy.
		rec := *a
		if err := tx.Attempts.Append(ctx, &rec); err != nil {
			return fmt.Errorf("append attempt: %w", err)
		}
		n, err := tx.Attempts.CountFailures(ctx, cmd.UserID, cmd.StepID)
		if err != nil {
			return fmt.Errorf("count failures: %w", err)
		}
		var out EnsureOutcome
		if rec.Succeeded {
			k := validation.Key{UserID: cmd.UserID, StepID: cmd.StepID, ProgressionID: cmd.ProgressionID}
			if out, err = EnsureValidated(ctx, tx.Validations, k, step, rec.OccurredAt); err != nil {
				return err
			}
		}
		*a, failures, outcome = rec, n, out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record_attempt: %w", err)
	}

	result := &RecordAttemptResult{
		Attempt:           *a,
		TotalFailures:     failures,
		CriticalThreshold: step.CriticalFailureThreshold,
		IsBlocked:         attempt.IsBlocked(a.Succeeded, failures, step.CriticalFailureThreshold),
	}
	if a.Succeeded {
		v := outcome.Validation
		result.Validation = &v
		result.NewlyValidated = outcome.Created
	}

	h.metrics.RecordAttempt(a.Succeeded, result.IsBlocked)
	log := h.log.With(logger.UserID(cmd.UserID), logger.StepID(cmd.StepID), logger.ProgressionID(cmd.ProgressionID))
	if result.IsBlocked {
		log.Info("learner blocked on step",
			logger.Int("total_failures", failures),
			logger.Int("critical_threshold", step.CriticalFailureThreshold))
	}
	if outcome.RecoveredConflict {
		h.metrics.RecordConflictRecovered()
		log.Debug("validation created concurrently, using existing row")
	}
	if result.NewlyValidated {
		h.metrics.RecordValidationCreated()
		log.Info("step validated", logger.XPAmount(step.XPReward))
		h.invalidateLeaderboards(ctx)
	}

	return result, nil
}

// invalidateLeaderboards drops cached boards after XP changed. Errors are
// logged; stale boards expire with the cache TTL.
func (h *RecordAttemptHandler) invalidateLeaderboards(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateAll(ctx); err != nil {
		h.log.Warn("failed to invalidate leaderboard cache", logger.Err(err))
	}
}
