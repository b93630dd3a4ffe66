package access

import (
	"fmt"
	"time"

	"github.com/and161185/loandocs/internal/model"
)

// Observer is notified of denials (metrics, audit).
type Observer interface {
	Denied(a Action, r Reason)
}

// Guard applies Evaluate with the evaluation-time clock and reports denials.
type Guard struct {
	now      func() time.Time
	observer Observer
}

// NewGuard constructs a guard. A nil clock defaults to time.Now; observer may be nil.
func NewGuard(now func() time.Time, observer Observer) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{now: now, observer: observer}
}

// Check returns nil when allowed, or a wrapped errs.ErrForbidden / errs.ErrExpired.
func (g *Guard) Check(p Principal, a Action, target *model.Order) error {
	d := Evaluate(p, a, target, g.now())
	if d.Allowed {
		return nil
	}
	if g.observer != nil {
		g.observer.Denied(a, d.Reason)
	}
	return fmt.Errorf("%s: %w", a, d.Err())
}
