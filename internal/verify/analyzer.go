// Package verify bounds turn execution: it classifies raised errors,
// retries the whole turn while the caps allow it, and escalates with an
// auditable terminal error once they are exhausted.
package verify

import (
	"errors"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/persona-controller/internal/budget"
	"github.com/danielpatrickdp/persona-controller/internal/policy"
)

// #region failure-class

// FailureClass categorizes why turn execution failed.
type FailureClass string

const (
	FailurePolicyLimit          FailureClass = "policy_limit"
	FailureQuotaExhausted       FailureClass = "quota_exhausted"
	FailureNonRetryableProvider FailureClass = "non_retryable_provider_error"
	FailureTransient            FailureClass = "transient_failure"
)

// #endregion failure-class

// #region analysis

// Analysis is the derived classification of one raised error. Recomputed per
// error, never stored.
type Analysis struct {
	Class     FailureClass
	Retryable bool
}

// #endregion analysis

// #region analyze

// Analyze classifies a turn-execution error via message-pattern heuristics.
// Intentionally conservative: anything not recognized as a policy, quota, or
// 4xx failure is assumed transient and retried. The caps, not this
// classifier, are the actual safety backstop.
func Analyze(err error) Analysis {
	if errors.Is(err, policy.ErrDenied) || errors.Is(err, budget.ErrBudgetExceeded) {
		return Analysis{Class: FailurePolicyLimit, Retryable: false}
	}

	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "action limit exceeded") || strings.Contains(msg, "daily cost limit exceeded") {
		return Analysis{Class: FailurePolicyLimit, Retryable: false}
	}

	if strings.Contains(msg, "insufficient_quota") ||
		strings.Contains(msg, "exceeded your current quota") ||
		(strings.Contains(msg, "429") && strings.Contains(msg, "billing")) {
		return Analysis{Class: FailureQuotaExhausted, Retryable: false}
	}

	for _, status := range httpStatusTokens(msg) {
		if status >= 400 && status < 500 && status != 408 && status != 429 {
			return Analysis{Class: FailureNonRetryableProvider, Retryable: false}
		}
	}

	return Analysis{Class: FailureTransient, Retryable: true}
}

// #endregion analyze

// #region status-tokens

// httpStatusTokens extracts candidate HTTP statuses from an error message.
// Tokens are maximal digit runs; only exactly-3-digit runs count, so "42900"
// never parses as 429.
func httpStatusTokens(msg string) []int {
	var out []int
	runStart := -1
	flush := func(end int) {
		if runStart < 0 {
			return
		}
		if end-runStart == 3 {
			if n, err := strconv.Atoi(msg[runStart:end]); err == nil {
				out = append(out, n)
			}
		}
		runStart = -1
	}
	for i, r := range msg {
		if r >= '0' && r <= '9' {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flush(i)
	}
	flush(len(msg))
	return out
}

// #endregion status-tokens
