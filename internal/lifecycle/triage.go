package lifecycle

import "github.com/newsloom/newsloom/internal/model"

// TriageOutcome is the triage policy's verdict for one signal.
type TriageOutcome string

const (
	// TriageApprove routes the signal straight to synthesis.
	TriageApprove TriageOutcome = "approve"
	// TriageReview routes the signal to manual review.
	TriageReview TriageOutcome = "review"
)

// Triage decides whether a signal auto-approves. It is a pure function of
// the signal's confidence and the owning source's reliability against the
// configured thresholds; no hidden state, so it tests in isolation.
func Triage(rules model.ApprovalRules, confidence, sourceReliability float64) TriageOutcome {
	if !rules.AutoApprovalEnabled {
		return TriageReview
	}
	if confidence >= rules.ConfidenceThreshold && sourceReliability >= rules.ReliabilityThreshold {
		return TriageApprove
	}
	return TriageReview
}

// StatusFor maps a triage outcome to the signal status the automated path
// assigns.
func StatusFor(outcome TriageOutcome) model.SignalStatus {
	if outcome == TriageApprove {
		return model.SignalApproved
	}
	return model.SignalFlagged
}
