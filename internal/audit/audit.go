// Package audit scans the assignment store for invariant violations left by
// races, partial failures or direct external writes, and repairs them through
// the same transactional paths live traffic uses. It never runs inline on the
// accept/decline hot path.
package audit

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"staffline/internal/domain"
	"staffline/internal/engine"
)

// ActorID attributes repair events in the audit trail.
const ActorID = "auditor"

var ErrSweepInProgress = errors.New("sweep already in progress")

type Auditor struct {
	Engine engine.Engine
	Log    *log.Logger

	sweeping atomic.Bool
}

func New(e engine.Engine) *Auditor {
	return &Auditor{Engine: e}
}

func (a *Auditor) logger() *log.Logger {
	if a.Log != nil {
		return a.Log
	}
	return log.Default()
}

// Scan enumerates requests violating the store invariants.
func (a *Auditor) Scan(ctx context.Context) ([]domain.Violation, error) {
	return a.Engine.Repo.ListViolations(ctx)
}

// Repair fixes a single violation idempotently. Orphaned accepted rows are
// demoted to searching; AI rows are auto-bound to their profile id (which
// also releases a wrong binding). The repair predicates re-check inside each
// transaction, so running against live traffic is safe: whoever commits
// first wins and the loser no-ops.
func (a *Auditor) Repair(ctx context.Context, v domain.Violation) error {
	switch v.Kind {
	case domain.ViolationOrphanAccepted:
		req, _, err := a.Engine.RepairOrphan(ctx, v.RequestID, ActorID)
		if err != nil {
			return err
		}
		a.logger().Printf("audit: demoted orphaned request %s to %s", v.RequestID, req.Status)
		if req.IsAIRequest && req.Status == domain.StatusSearching {
			return a.autoBind(ctx, v.RequestID)
		}
		return nil
	case domain.ViolationAIUnbound, domain.ViolationAIMisbound:
		return a.autoBind(ctx, v.RequestID)
	default:
		return errors.New("unknown violation kind " + v.Kind)
	}
}

func (a *Auditor) autoBind(ctx context.Context, requestID string) error {
	req, _, err := a.Engine.AutoBindAI(ctx, requestID, ActorID)
	if err != nil {
		var it engine.InvalidTransitionError
		if errors.As(err, &it) {
			// withdrawn or hidden since the scan; nothing to repair
			return nil
		}
		return err
	}
	a.logger().Printf("audit: auto-bound AI request %s to %s", requestID, req.ProfileID)
	return nil
}

// Report summarizes one sweep.
type Report struct {
	Scanned  int      `json:"scanned"`
	Repaired int      `json:"repaired"`
	Failed   []string `json:"failed,omitempty"`
}

// Sweep runs scan + repair once. Only one sweep is active at a time;
// overlapping calls fail with ErrSweepInProgress rather than queue.
func (a *Auditor) Sweep(ctx context.Context) (Report, error) {
	if !a.sweeping.CompareAndSwap(false, true) {
		return Report{}, ErrSweepInProgress
	}
	defer a.sweeping.Store(false)

	violations, err := a.Scan(ctx)
	if err != nil {
		return Report{}, err
	}
	report := Report{Scanned: len(violations)}
	for _, v := range violations {
		if err := a.Repair(ctx, v); err != nil {
			a.logger().Printf("audit: repair %s (%s) failed: %v", v.RequestID, v.Kind, err)
			report.Failed = append(report.Failed, v.RequestID)
			continue
		}
		report.Repaired++
	}
	return report, nil
}
