package actions

import (
	"context"
	"log/slog"
	"time"

	"github.com/fentz26/drover/internal/models"
	"github.com/fentz26/drover/internal/screen"
)

// Engage is the built-in passive engagement action: it browses the home feed
// without touching other profiles. It doubles as the fallback when no other
// action qualifies and as the reference implementation of the contract.
type Engage struct {
	classifier screen.Classifier
	log        *slog.Logger

	// Scrolls is how many feed interactions one invocation performs.
	Scrolls int
}

// NewEngage creates the passive engagement action.
func NewEngage(classifier screen.Classifier, log *slog.Logger) *Engage {
	return &Engage{classifier: classifier, log: log, Scrolls: 5}
}

// Kind implements Action.
func (e *Engage) Kind() models.ActionKind { return models.ActionEngage }

// Run implements Action. Each scroll is one sub-step: it checks the screen is
// still usable, logs the attempt through the ledger, and stops early on
// cancellation.
func (e *Engage) Run(ctx context.Context, req Request) (Result, error) {
	var res Result
	now := time.Now()

	budget := e.Scrolls
	if req.Budget > 0 && req.Budget < budget {
		budget = req.Budget
	}

	target, err := req.Limiter.SessionTarget(models.ActionEngage, now)
	if err != nil {
		return res, err
	}
	if target == 0 {
		res.Success = true
		res.Message = "daily engage budget exhausted"
		return res, nil
	}
	if target < budget {
		budget = target
	}

	for i := 0; i < budget; i++ {
		if err := ctx.Err(); err != nil {
			res.Message = "cancelled"
			return res, nil
		}

		snap, err := req.Conn.Snapshot(ctx)
		if err != nil {
			res.Errored++
			if noteErr := req.Limiter.NoteResult(models.ActionEngage, "", false, err.Error()); noteErr != nil {
				return res, noteErr
			}
			continue
		}
		if st := e.classifier.Classify(snap); st == screen.StatePopupDialog {
			res.Skipped++
			continue
		}

		res.Attempted++
		if err := req.Limiter.NoteResult(models.ActionEngage, "", true, ""); err != nil {
			return res, err
		}
		res.Succeeded++
	}

	res.Success = res.Errored == 0
	return res, nil
}
