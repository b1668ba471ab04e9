// Package budget enforces the per-turn ceiling on model calls. The ceiling,
// not any upstream heuristic, is the hard backstop against a misbehaving turn
// silently spending unbounded calls.
package budget

import (
	"errors"
	"fmt"
)

// #region errors

// ErrBudgetExceeded marks a call-budget overrun. It indicates a logic bug or
// misconfiguration and is terminal for the turn.
var ErrBudgetExceeded = errors.New("call budget exceeded")

// #endregion errors

// #region accounting

// Accounting tracks model calls for a single turn. Created fresh per turn
// attempt, owned exclusively by that attempt, discarded at turn end.
type Accounting struct {
	limit        int
	answerCalls  int
	reflectCalls int
}

// NewAccounting creates per-turn accounting. The limit is 1 without
// self-reflection (one answer call) and 2 with it (answer + reflect).
func NewAccounting(reflectionEnabled bool) *Accounting {
	limit := 1
	if reflectionEnabled {
		limit = 2
	}
	return &Accounting{limit: limit}
}

// #endregion accounting

// #region consume

// ConsumeAnswerCall spends one answer call. Overrunning the budget fails the
// call immediately rather than silently over-spending.
func (a *Accounting) ConsumeAnswerCall() error {
	a.answerCalls++
	return a.check()
}

// ConsumeReflectCall spends one reflect call.
func (a *Accounting) ConsumeReflectCall() error {
	a.reflectCalls++
	return a.check()
}

func (a *Accounting) check() error {
	if a.answerCalls+a.reflectCalls > a.limit {
		return fmt.Errorf("%w: answer_calls=%d reflect_calls=%d limit=%d",
			ErrBudgetExceeded, a.answerCalls, a.reflectCalls, a.limit)
	}
	return nil
}

// #endregion consume

// #region accessors

// Limit returns the per-turn call ceiling.
func (a *Accounting) Limit() int { return a.limit }

// AnswerCalls returns the number of answer calls consumed so far.
func (a *Accounting) AnswerCalls() int { return a.answerCalls }

// ReflectCalls returns the number of reflect calls consumed so far.
func (a *Accounting) ReflectCalls() int { return a.reflectCalls }

// #endregion accessors
